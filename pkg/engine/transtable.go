package engine

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"

	. "github.com/chesnaught/chesnaught/pkg/common"
)

const (
	boundLower = 1 << iota
	boundUpper
)

const boundExact = boundLower | boundUpper

const (
	bucketSlots  = 4
	maxPageSlots = 1024
	maxShards    = 64
	hashFullSize = 1000
	maxGen       = 63
)

// 16 bytes. check holds key^data so a torn pair never validates.
type ttSlot struct {
	check atomic.Uint64
	data  atomic.Uint64
}

type ttPage []ttSlot

type ttShard struct {
	mu    sync.Mutex
	pages []atomic.Pointer[ttPage]
}

var (
	slotBytes        = int(unsafe.Sizeof(ttSlot{}))
	shardHeaderBytes = int(unsafe.Sizeof(ttShard{}))
	pagePointerBytes = int(unsafe.Sizeof(atomic.Pointer[ttPage]{}))
	tableHeaderBytes = int(unsafe.Sizeof(transTable{}))
)

// transTable is sharded and paged. Pages are allocated on first write, so
// resident memory grows with use and never exceeds the configured capacity.
type transTable struct {
	capacity   int
	slots      int
	pageSlots  int
	pageShift  uint
	shardShift uint
	shards     []ttShard
	meta       int
	gen        atomic.Uint32
	pages      atomic.Int64
	degraded   atomic.Bool
	alloc      func(bytes int) error
	logger     zerolog.Logger
}

// ttLayout returns the largest table that fits capacity bytes.
func ttLayout(capacity int) (slots, pageSlots, shards, meta int) {
	for s := 1 << 40; s >= bucketSlots; s >>= 1 {
		var ps = Min(s, maxPageSlots)
		var pages = s / ps
		var sh = Min(pages, maxShards)
		var m = tableHeaderBytes + sh*shardHeaderBytes + pages*pagePointerBytes
		if s*slotBytes+m <= capacity {
			return s, ps, sh, m
		}
	}
	return 0, 0, 0, tableHeaderBytes
}

func newTransTable(capacity int, alloc func(bytes int) error, logger zerolog.Logger) *transTable {
	var slots, pageSlots, shards, meta = ttLayout(capacity)
	var tt = &transTable{
		capacity:  capacity,
		slots:     slots,
		pageSlots: pageSlots,
		meta:      meta,
		alloc:     alloc,
		logger:    logger,
	}
	if slots == 0 {
		return tt
	}
	tt.pageShift = log2(pageSlots)
	tt.shardShift = log2(shards)
	tt.shards = make([]ttShard, shards)
	var pagesPerShard = slots / pageSlots / shards
	for i := range tt.shards {
		tt.shards[i].pages = make([]atomic.Pointer[ttPage], pagesPerShard)
	}
	return tt
}

func log2(x int) uint {
	var n uint
	for x > 1 {
		x >>= 1
		n++
	}
	return n
}

func (tt *transTable) Capacity() int {
	return tt.capacity
}

func (tt *transTable) ResidentBytes() int {
	return int(tt.pages.Load())*tt.pageSlots*slotBytes + tt.meta
}

func (tt *transTable) NewSearch() {
	tt.gen.Store((tt.gen.Load() + 1) & maxGen)
}

func (tt *transTable) Clear() {
	for i := range tt.shards {
		var shard = &tt.shards[i]
		shard.mu.Lock()
		for j := range shard.pages {
			shard.pages[j].Store(nil)
		}
		shard.mu.Unlock()
	}
	tt.pages.Store(0)
	tt.gen.Store(0)
	tt.degraded.Store(false)
}

func (tt *transTable) locate(key uint64) (shard *ttShard, page *atomic.Pointer[ttPage], offset int) {
	var index = int(key) & (tt.slots - 1) &^ (bucketSlots - 1)
	var pageIndex = index >> tt.pageShift
	shard = &tt.shards[pageIndex&(len(tt.shards)-1)]
	page = &shard.pages[pageIndex>>tt.shardShift]
	offset = index & (tt.pageSlots - 1)
	return
}

func (tt *transTable) Read(key uint64) (depth, value, bound int, move Move, ok bool) {
	if tt.slots == 0 {
		return
	}
	var _, pp, offset = tt.locate(key)
	var page = pp.Load()
	if page == nil {
		return
	}
	var bucket = (*page)[offset : offset+bucketSlots]
	for i := range bucket {
		var data = bucket[i].data.Load()
		if data == 0 || bucket[i].check.Load()^data != key {
			continue
		}
		depth, value, bound, move, _ = unpackEntry(data)
		ok = true
		return
	}
	return
}

func (tt *transTable) Update(key uint64, depth, value, bound int, move Move) {
	if tt.slots == 0 {
		return
	}
	var shard, pp, offset = tt.locate(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	var page = pp.Load()
	if page == nil {
		page = tt.allocPage()
		if page == nil {
			return
		}
		pp.Store(page)
	}

	var gen = int(tt.gen.Load())
	var bucket = (*page)[offset : offset+bucketSlots]
	var victim *ttSlot
	var victimPriority = 0
	for i := range bucket {
		var slot = &bucket[i]
		var data = slot.data.Load()
		if data == 0 {
			if victim == nil || victimPriority > emptyPriority {
				victim = slot
				victimPriority = emptyPriority
			}
			continue
		}
		var oldDepth, _, _, oldMove, oldGen = unpackEntry(data)
		if slot.check.Load()^data == key {
			if !(depth >= oldDepth-3 || bound == boundExact) {
				return
			}
			if move == MoveEmpty {
				move = oldMove
			}
			victim = slot
			break
		}
		var age = (gen - oldGen) & maxGen
		var priority = oldDepth - 8*age
		if victim == nil || priority < victimPriority {
			victim = slot
			victimPriority = priority
		}
	}
	var data = packEntry(depth, value, bound, move, gen)
	victim.check.Store(key ^ data)
	victim.data.Store(data)
}

const emptyPriority = -1 << 30

func (tt *transTable) allocPage() *ttPage {
	if tt.degraded.Load() {
		return nil
	}
	var bytes = tt.pageSlots * slotBytes
	if tt.alloc != nil {
		if err := tt.alloc(bytes); err != nil {
			if tt.degraded.CompareAndSwap(false, true) {
				tt.logger.Warn().Err(err).
					Int("resident", tt.ResidentBytes()).
					Msg("transposition table stopped growing")
			}
			return nil
		}
	}
	var page = make(ttPage, tt.pageSlots)
	tt.pages.Add(1)
	return &page
}

// HashFull returns the permille of sampled slots written in the current search.
func (tt *transTable) HashFull() int {
	var sample = Min(hashFullSize, tt.slots)
	if sample == 0 {
		return 0
	}
	var gen = int(tt.gen.Load())
	var count = 0
	for i := 0; i < sample; i++ {
		var pageIndex = i >> tt.pageShift
		var shard = &tt.shards[pageIndex&(len(tt.shards)-1)]
		var page = shard.pages[pageIndex>>tt.shardShift].Load()
		if page == nil {
			i |= tt.pageSlots - 1
			continue
		}
		var data = (*page)[i&(tt.pageSlots-1)].data.Load()
		if data != 0 {
			if _, _, _, _, g := unpackEntry(data); g == gen {
				count++
			}
		}
	}
	return count * 1000 / sample
}

// value 0-31, move 32-47, depth 48-55, bound 56-57, generation 58-63.
func packEntry(depth, value, bound int, move Move, gen int) uint64 {
	return uint64(uint32(int32(value))) |
		uint64(move)<<32 |
		uint64(uint8(Max(0, Min(depth, 255))))<<48 |
		uint64(bound&3)<<56 |
		uint64(gen&maxGen)<<58
}

func unpackEntry(data uint64) (depth, value, bound int, move Move, gen int) {
	value = int(int32(uint32(data)))
	move = Move(data >> 32)
	depth = int(uint8(data >> 48))
	bound = int(data>>56) & 3
	gen = int(data >> 58)
	return
}
