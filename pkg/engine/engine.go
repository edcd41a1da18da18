package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	. "github.com/chesnaught/chesnaught/pkg/common"
)

var ErrEngineStopped = errors.New("engine stopped")

type State int32

const (
	StateIdle State = iota
	StateSearching
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type ReportKind int

const (
	ReportProgress ReportKind = iota
	ReportBestMove
	ReportReady
	ReportInfo
	ReportFatal
)

// Report is everything the engine tells the outside world, in order.
type Report struct {
	Kind    ReportKind
	Info    SearchInfo
	Message string
	Err     error
}

type Stats struct {
	State          State
	Generation     uint64
	TableBytes     int
	TableCapacity  int
	TreesReleased  int64
	NodesReleased  int64
	MaxConcurrency int32
}

type request interface{}

type (
	goRequest        struct{ params SearchParams }
	stopRequest      struct{}
	ponderHitRequest struct{}
	configureRequest struct{ options Options }
	clearRequest     struct{}
	readyRequest     struct{}
	statsRequest     struct{ reply chan<- Stats }
)

type event interface{}

type (
	poolDone struct {
		generation uint64
		err        error
	}
	timerExpired struct{ generation uint64 }
	limitReached struct{ generation uint64 }
)

// Engine owns the search state machine. All state below is touched only by
// the controller goroutine started in Run.
type Engine struct {
	logger    zerolog.Logger
	requests  chan request
	events    chan event
	outbox    *queue[Report]
	reports   chan Report
	done      chan struct{}
	pool      *chunkPool
	collector *collector

	options     Options
	state       State
	generation  uint64
	tt          *transTable
	threads     []*thread
	current     *search
	timerCancel context.CancelFunc
	ponderLimit LimitsType
	pending     *goRequest
	pendingStop bool
	deferred    []request

	pageAlloc  func(bytes int) error
	chunkAlloc func(chunk int) error
	active     atomic.Int32
	maxActive  atomic.Int32
}

func NewEngine(options Options, logger zerolog.Logger) *Engine {
	var pool = newChunkPool(chunkPoolSize)
	return &Engine{
		logger:    logger.With().Str("component", "engine").Logger(),
		requests:  make(chan request),
		events:    make(chan event),
		outbox:    newQueue[Report](),
		reports:   make(chan Report),
		done:      make(chan struct{}),
		pool:      pool,
		collector: newCollector(pool, logger.With().Str("component", "collector").Logger()),
		options:   options,
	}
}

// Run serves requests until ctx is cancelled or a fatal error occurs.
func (e *Engine) Run(ctx context.Context) error {
	var g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.collector.Run(gctx)
	})
	g.Go(func() error {
		return e.forward(ctx)
	})
	g.Go(func() error {
		defer close(e.done)
		return e.loop(gctx)
	})
	return g.Wait()
}

func (e *Engine) Reports() <-chan Report {
	return e.reports
}

// forward moves reports from the outbox to the reports channel. Reports
// queued before the controller exits are still delivered.
func (e *Engine) forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.outbox.Wake():
			if !e.flush(ctx) {
				return nil
			}
		case <-e.done:
			e.flush(ctx)
			return nil
		}
	}
}

func (e *Engine) flush(ctx context.Context) bool {
	for _, r := range e.outbox.Drain() {
		select {
		case e.reports <- r:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (e *Engine) send(ctx context.Context, r request) error {
	select {
	case e.requests <- r:
		return nil
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Go(ctx context.Context, params SearchParams) error {
	if len(params.Positions) == 0 {
		return errors.New("go: no position")
	}
	return e.send(ctx, goRequest{params: params})
}

func (e *Engine) Stop(ctx context.Context) error {
	return e.send(ctx, stopRequest{})
}

func (e *Engine) PonderHit(ctx context.Context) error {
	return e.send(ctx, ponderHitRequest{})
}

func (e *Engine) Configure(ctx context.Context, options Options) error {
	if err := options.Validate(); err != nil {
		return err
	}
	return e.send(ctx, configureRequest{options: options})
}

func (e *Engine) Clear(ctx context.Context) error {
	return e.send(ctx, clearRequest{})
}

// IsReady queues a ReportReady behind every report already produced.
func (e *Engine) IsReady(ctx context.Context) error {
	return e.send(ctx, readyRequest{})
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	var reply = make(chan Stats, 1)
	if err := e.send(ctx, statsRequest{reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case r := <-e.requests:
			if err := e.handleRequest(ctx, r); err != nil {
				e.shutdown()
				return err
			}
		case ev := <-e.events:
			if err := e.handleEvent(ctx, ev); err != nil {
				e.shutdown()
				return err
			}
		}
	}
}

func (e *Engine) handleRequest(ctx context.Context, r request) error {
	switch r := r.(type) {
	case goRequest:
		if e.state == StateIdle {
			return e.startSearch(ctx, r.params)
		}
		// cancel-then-wait: the newest request starts once the pool joined
		e.pending = &r
		e.pendingStop = false
		e.stopCurrent("superseded")
	case stopRequest:
		if e.state == StateSearching {
			e.stopCurrent("stop")
		} else if e.pending != nil {
			e.pendingStop = true
		}
	case ponderHitRequest:
		e.ponderHit(ctx)
	case configureRequest, clearRequest:
		if e.state != StateIdle {
			e.deferred = append(e.deferred, r)
			return nil
		}
		e.apply(r)
	case readyRequest:
		e.outbox.Push(Report{Kind: ReportReady})
	case statsRequest:
		r.reply <- e.stats()
	}
	return nil
}

func (e *Engine) handleEvent(ctx context.Context, ev event) error {
	switch ev := ev.(type) {
	case poolDone:
		if e.current == nil || ev.generation != e.current.generation {
			return nil
		}
		return e.finishSearch(ctx, ev.err)
	case timerExpired:
		if ev.generation != e.generation || e.state != StateSearching {
			e.logger.Debug().Uint64("generation", ev.generation).Msg("stale timer ignored")
			return nil
		}
		e.stopCurrent("time")
	case limitReached:
		if ev.generation == e.generation && e.state == StateSearching {
			e.stopCurrent("nodes")
		}
	}
	return nil
}

func (e *Engine) stopCurrent(reason string) {
	if e.current == nil {
		return
	}
	e.logger.Debug().
		Uint64("generation", e.current.generation).
		Str("reason", reason).
		Msg("stopping search")
	e.current.stop()
	e.state = StateStopping
}

func (e *Engine) apply(r request) {
	switch r := r.(type) {
	case configureRequest:
		if r.options.Hash != e.options.Hash {
			// the new table is built by the next search
			e.tt = nil
		}
		e.options = r.options
		e.logger.Debug().
			Int("hash", e.options.Hash).
			Int("threads", e.options.Threads).
			Msg("options applied")
	case clearRequest:
		if e.tt != nil {
			e.tt.Clear()
		}
		for _, t := range e.threads {
			t.clearHistory()
		}
	}
}

func (e *Engine) prepare() {
	if e.tt == nil || e.tt.Capacity() != e.options.hashBytes() {
		e.tt = newTransTable(e.options.hashBytes(), e.pageAlloc,
			e.logger.With().Str("component", "transtable").Logger())
	}
	if len(e.threads) != e.options.Threads {
		e.threads = make([]*thread, e.options.Threads)
		for i := range e.threads {
			e.threads[i] = newThread(i)
		}
	}
}

func (e *Engine) startSearch(ctx context.Context, params SearchParams) error {
	var start = time.Now()
	e.prepare()
	var root = params.Positions[len(params.Positions)-1]
	var tr, err = newTree(root, e.options.TreeMaxNodes, e.pool, e.chunkAlloc, e.threads[0].evaluator.Evaluate)
	if err != nil {
		e.logger.Error().Err(err).Msg("search not started")
		e.outbox.Push(Report{Kind: ReportFatal, Err: err, Message: err.Error()})
		return err
	}
	e.generation++
	e.tt.NewSearch()

	var limits = params.Limits
	var s = &search{
		ctx:         ctx,
		id:          uuid.NewString(),
		generation:  e.generation,
		options:     e.options,
		limits:      limits,
		root:        root,
		historyKeys: getHistoryKeys(params.Positions),
		tt:          e.tt,
		tree:        tr,
		threads:     e.threads,
		events:      e.events,
		start:       start,
		release:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.logger = e.logger.With().
		Uint64("generation", s.generation).
		Str("search", s.id).
		Logger()
	s.progress = func(si SearchInfo) {
		e.outbox.Push(Report{Kind: ReportProgress, Info: si})
	}
	for _, t := range s.threads {
		t.reset(s)
	}

	var tc = newTimeControl(limits, root.WhiteMove)
	if limits.Infinite || limits.Ponder {
		s.holding.Store(true)
		e.ponderLimit = limits
	} else {
		s.setDeadlines(start, tc)
		if tc.bounded() {
			e.startTimer(ctx, s.generation, tc.hard)
		}
	}

	e.current = s
	e.state = StateSearching
	var n = e.active.Add(1)
	for {
		var peak = e.maxActive.Load()
		if n <= peak || e.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	s.logger.Info().
		Int("threads", len(s.threads)).
		Int("moves", len(root.Moves())).
		Bool("infinite", limits.Infinite).
		Bool("ponder", limits.Ponder).
		Msg("search started")

	go func() {
		var err = s.run()
		s.notify(poolDone{generation: s.generation, err: err})
	}()
	return nil
}

func (e *Engine) startTimer(ctx context.Context, generation uint64, d time.Duration) {
	var timerCtx, cancel = context.WithCancel(ctx)
	e.timerCancel = cancel
	go runTimer(timerCtx, generation, d, e.events)
}

func (e *Engine) cancelTimer() {
	if e.timerCancel != nil {
		e.timerCancel()
		e.timerCancel = nil
	}
}

func (e *Engine) ponderHit(ctx context.Context) {
	var s = e.current
	if s == nil || e.state != StateSearching || !e.ponderLimit.Ponder {
		return
	}
	var limits = e.ponderLimit
	limits.Ponder = false
	e.ponderLimit = LimitsType{}
	var tc = newTimeControl(limits, s.root.WhiteMove)
	if !tc.bounded() && limits.Depth == 0 && limits.Nodes == 0 && limits.Mate == 0 {
		// nothing bounds the search, keep holding until stop
		return
	}
	if tc.bounded() {
		e.startTimer(ctx, s.generation, tc.hard)
	}
	s.ponderHit(time.Now(), tc)
	s.logger.Debug().Dur("hard", tc.hard).Msg("ponderhit")
}

func (e *Engine) finishSearch(ctx context.Context, err error) error {
	var s = e.current
	e.cancelTimer()
	e.active.Add(-1)

	var info = s.result()
	e.outbox.Push(Report{Kind: ReportBestMove, Info: info})

	s.logger.Info().
		Int("depth", info.Depth).
		Int64("nodes", info.Nodes).
		Dur("time", info.Time).
		Str("bestmove", info.BestMove.String()).
		Int("hashfull", info.HashFull).
		Msg("search finished")

	var tr = s.tree
	s.tree = nil
	tr.detach()
	e.collector.Enqueue(tr)

	e.current = nil
	e.state = StateIdle
	e.ponderLimit = LimitsType{}

	if err != nil {
		return fmt.Errorf("search %v: %w", s.id, err)
	}

	for _, r := range e.deferred {
		e.apply(r)
	}
	e.deferred = nil

	if e.pending != nil {
		var r, stopped = e.pending, e.pendingStop
		e.pending = nil
		e.pendingStop = false
		if err := e.startSearch(ctx, r.params); err != nil {
			return err
		}
		if stopped {
			e.stopCurrent("stop")
		}
	}
	return nil
}

// shutdown stops the running search and waits for its workers.
func (e *Engine) shutdown() {
	e.cancelTimer()
	if e.current != nil {
		e.current.stop()
		for waiting := true; waiting; {
			select {
			case <-e.current.done:
				waiting = false
			case <-e.events:
			}
		}
		e.active.Add(-1)
		e.current = nil
	}
	e.state = StateIdle
}

func (e *Engine) stats() Stats {
	var st = Stats{
		State:          e.state,
		Generation:     e.generation,
		TableCapacity:  e.options.hashBytes(),
		TreesReleased:  e.collector.trees.Load(),
		NodesReleased:  e.collector.nodes.Load(),
		MaxConcurrency: e.maxActive.Load(),
	}
	if e.tt != nil {
		st.TableBytes = e.tt.ResidentBytes()
	}
	return st
}
