package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	. "github.com/chesnaught/chesnaught/pkg/common"
)

var ErrTreeAllocation = errors.New("search tree allocation failed")

const (
	chunkNodes    = 4096
	treeMaxHeight = 4
	nodeNone      = -1
)

const (
	nodeExpanding = 1 << iota
	nodeExpanded
	nodeTerminal
)

// node is one materialised position. parent is an index into the same
// arena and never keeps anything alive.
type node struct {
	key    atomic.Uint64
	result atomic.Uint64 // depth<<32 | uint32(value), 0 if nothing proven
	visits atomic.Int64
	static atomic.Int32 // from the parent's point of view
	state  atomic.Uint32
	parent int32
	first  int32
	count  int32
	move   Move
}

type chunk [chunkNodes]node

func (n *node) hasState(flag uint32) bool {
	return n.state.Load()&flag != 0
}

func (n *node) setState(flag uint32) bool {
	for {
		var old = n.state.Load()
		if old&flag != 0 {
			return false
		}
		if n.state.CompareAndSwap(old, old|flag) {
			return true
		}
	}
}

func (n *node) Result() (depth, value int, ok bool) {
	var r = n.result.Load()
	if r == 0 {
		return 0, 0, false
	}
	return int(r >> 32), int(int32(uint32(r))), true
}

// storeResult keeps the deepest proven value.
func (n *node) storeResult(depth, value int) {
	var r = uint64(depth)<<32 | uint64(uint32(int32(value)))
	for {
		var old = n.result.Load()
		if old != 0 && int(old>>32) > depth {
			return
		}
		if n.result.CompareAndSwap(old, r) {
			return
		}
	}
}

// tree is the materialised top of the search. Nodes are allocated in chunks
// from a fixed directory; a block of siblings never crosses a chunk.
type tree struct {
	mu       sync.Mutex
	chunks   []atomic.Pointer[chunk]
	used     int32
	maxNodes int32
	sealed   bool
	pool     *chunkPool
	alloc    func(chunk int) error
}

func newTree(root *Position, maxNodes int, pool *chunkPool, alloc func(chunk int) error,
	evaluate func(*Position) int) (*tree, error) {
	var count = (maxNodes + chunkNodes - 1) / chunkNodes
	var t = &tree{
		chunks:   make([]atomic.Pointer[chunk], count),
		maxNodes: int32(maxNodes),
		pool:     pool,
		alloc:    alloc,
	}
	var index, ok = t.allocate(1)
	if !ok {
		return nil, fmt.Errorf("root node: %w", ErrTreeAllocation)
	}
	var r = t.node(index)
	r.parent = nodeNone
	r.first = nodeNone
	r.key.Store(root.Key)
	if !t.expand(index, root) && len(root.Moves()) != 0 {
		return nil, fmt.Errorf("root children: %w", ErrTreeAllocation)
	}
	if len(root.Moves()) == 0 {
		r.setState(nodeTerminal)
	} else {
		t.expandWithStatics(index, root, evaluate)
	}
	return t, nil
}

func (t *tree) root() *node {
	return t.node(0)
}

func (t *tree) node(index int32) *node {
	var c = t.chunks[index/chunkNodes].Load()
	return &c[index%chunkNodes]
}

func (t *tree) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.used)
}

func (t *tree) allocate(n int) (int32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed || n > chunkNodes || t.used+int32(n) > t.maxNodes {
		return 0, false
	}
	var offset = t.used % chunkNodes
	if offset != 0 && offset+int32(n) > chunkNodes {
		t.used += chunkNodes - offset
		if t.used+int32(n) > t.maxNodes {
			return 0, false
		}
	}
	var ci = t.used / chunkNodes
	if int(ci) >= len(t.chunks) {
		return 0, false
	}
	if t.chunks[ci].Load() == nil {
		if t.alloc != nil {
			if err := t.alloc(int(ci)); err != nil {
				return 0, false
			}
		}
		t.chunks[ci].Store(t.pool.get())
	}
	var index = t.used
	t.used += int32(n)
	return index, true
}

// expand materialises the children of a node in move generation order and
// stores their static values. Only one caller wins.
func (t *tree) expand(index int32, p *Position) bool {
	var n = t.node(index)
	if n.hasState(nodeExpanded) {
		return true
	}
	var moves = p.Moves()
	if len(moves) == 0 || !n.setState(nodeExpanding) {
		return false
	}
	var first, ok = t.allocate(len(moves))
	if !ok {
		return false
	}
	for i, m := range moves {
		var child = t.node(first + int32(i))
		child.parent = index
		child.first = nodeNone
		child.move = m
	}
	n.first = first
	n.count = int32(len(moves))
	n.setState(nodeExpanded)
	return true
}

// expandWithStatics is used at the root, where children statics decide the
// initial move order and the answer when no iteration completes.
func (t *tree) expandWithStatics(index int32, p *Position, evaluate func(*Position) int) {
	var n = t.node(index)
	for i := int32(0); i < n.count; i++ {
		var child = t.node(n.first + i)
		var cp = p.MakeMoveAt(int(i))
		child.key.Store(cp.Key)
		var static int
		if cp.IsCheckmate() {
			child.setState(nodeTerminal)
			static = winIn(1)
		} else if cp.IsStalemate() {
			child.setState(nodeTerminal)
			static = valueDraw
		} else {
			static = -evaluate(cp)
		}
		child.static.Store(int32(static))
	}
}

func (t *tree) children(index int32) (first, count int32, ok bool) {
	var n = t.node(index)
	if !n.hasState(nodeExpanded) {
		return 0, 0, false
	}
	return n.first, n.count, true
}

// detach seals the tree: no allocation succeeds afterwards.
func (t *tree) detach() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
	return int(t.used)
}

// selectBest picks among root children: deepest proven result, then value,
// then static value, then generation order.
func (t *tree) selectBest(allowed func(Move) bool) (Move, int, bool) {
	var first, count, ok = t.children(0)
	if !ok {
		return MoveEmpty, 0, false
	}
	var (
		found     bool
		best      Move
		bestDepth int
		bestValue int
		bestStat  int
	)
	for i := first; i < first+count; i++ {
		var n = t.node(i)
		if allowed != nil && !allowed(n.move) {
			continue
		}
		var depth, value, _ = n.Result()
		var static = int(n.static.Load())
		if !found ||
			depth > bestDepth ||
			depth == bestDepth && value > bestValue ||
			depth == bestDepth && value == bestValue && static > bestStat {
			found = true
			best = n.move
			bestDepth = depth
			bestValue = value
			bestStat = static
		}
	}
	if bestDepth == 0 {
		bestValue = bestStat
	}
	return best, bestValue, found
}

// bestChild returns the move of the child with the deepest proven value.
func (t *tree) bestChild(index int32) Move {
	var first, count, ok = t.children(index)
	if !ok {
		return MoveEmpty
	}
	var best = MoveEmpty
	var bestDepth, bestValue int
	for i := first; i < first+count; i++ {
		var n = t.node(i)
		var depth, value, proven = n.Result()
		if !proven {
			continue
		}
		if best == MoveEmpty || depth > bestDepth || depth == bestDepth && value > bestValue {
			best = n.move
			bestDepth = depth
			bestValue = value
		}
	}
	return best
}
