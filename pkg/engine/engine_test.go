package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	. "github.com/chesnaught/chesnaught/pkg/common"
)

type harness struct {
	engine *Engine
	cancel context.CancelFunc
	errc   chan error
}

func startEngine(t *testing.T, options Options, setup func(e *Engine)) *harness {
	t.Helper()
	var e = NewEngine(options, zerolog.Nop())
	if setup != nil {
		setup(e)
	}
	var ctx, cancel = context.WithCancel(context.Background())
	var h = &harness{
		engine: e,
		cancel: cancel,
		errc:   make(chan error, 1),
	}
	go func() {
		h.errc <- e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.errc:
		case <-time.After(10 * time.Second):
			t.Error("engine did not shut down")
		}
	})
	return h
}

func (h *harness) goSearch(t *testing.T, limits LimitsType, positions ...*Position) {
	t.Helper()
	var err = h.engine.Go(context.Background(), SearchParams{Positions: positions, Limits: limits})
	if err != nil {
		t.Fatal(err)
	}
}

// waitBestMove returns the progress reports and the best move report.
func (h *harness) waitBestMove(t *testing.T, timeout time.Duration) ([]Report, Report) {
	t.Helper()
	var progress []Report
	var timer = time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case r := <-h.engine.Reports():
			switch r.Kind {
			case ReportProgress:
				progress = append(progress, r)
			case ReportBestMove:
				return progress, r
			case ReportFatal:
				t.Fatalf("fatal report: %v", r.Err)
			}
		case <-timer.C:
			t.Fatal("no bestmove")
		}
	}
}

func (h *harness) stats(t *testing.T) Stats {
	t.Helper()
	var st, err = h.engine.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestSearchDepthDeterministic(t *testing.T) {
	var p = mustPosition(t, "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3")
	var moves []Move
	for i := 0; i < 2; i++ {
		var h = startEngine(t, NewOptions(), nil)
		h.goSearch(t, LimitsType{Depth: 3}, p)
		var _, r = h.waitBestMove(t, time.Minute)
		if p.IndexOf(r.Info.BestMove) < 0 {
			t.Fatalf("illegal bestmove %v", r.Info.BestMove)
		}
		if r.Info.Depth != 3 {
			t.Errorf("depth %v", r.Info.Depth)
		}
		moves = append(moves, r.Info.BestMove)
	}
	if moves[0] != moves[1] {
		t.Errorf("bestmove differs: %v %v", moves[0], moves[1])
	}
}

func TestSearchRepeatableAfterClear(t *testing.T) {
	var p = mustPosition(t, "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3")
	var bestMoveAt = func(h *harness, p *Position) Move {
		h.goSearch(t, LimitsType{Depth: 4}, p)
		var _, r = h.waitBestMove(t, time.Minute)
		return r.Info.BestMove
	}

	var fresh = bestMoveAt(startEngine(t, NewOptions(), nil), p)

	var h = startEngine(t, NewOptions(), nil)
	bestMoveAt(h, mustPosition(t, InitialPositionFen, "d2d4"))
	bestMoveAt(h, p)
	if err := h.engine.Clear(context.Background()); err != nil {
		t.Fatal(err)
	}
	if again := bestMoveAt(h, p); again != fresh {
		t.Errorf("bestmove after clear %v, fresh engine %v", again, fresh)
	}
}

func TestSearchMoveTime(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen)
	var h = startEngine(t, NewOptions(), nil)
	var start = time.Now()
	h.goSearch(t, LimitsType{MoveTime: 100}, p)
	var progress, r = h.waitBestMove(t, 10*time.Second)
	var elapsed = time.Since(start)
	if elapsed > 100*time.Millisecond+2*time.Second {
		t.Errorf("bestmove after %v", elapsed)
	}
	if len(progress) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(progress); i++ {
		if progress[i].Info.Depth < progress[i-1].Info.Depth {
			t.Errorf("depth decreased: %v after %v", progress[i].Info.Depth, progress[i-1].Info.Depth)
		}
	}
	if p.IndexOf(r.Info.BestMove) < 0 {
		t.Errorf("illegal bestmove %v", r.Info.BestMove)
	}
	if r.Info.Ponder != MoveEmpty {
		var child, _ = p.MakeMove(r.Info.BestMove)
		if child.IndexOf(r.Info.Ponder) < 0 {
			t.Errorf("illegal ponder move %v", r.Info.Ponder)
		}
	}
}

func TestStopInfiniteSearch(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen, "e2e4", "e7e5")
	var h = startEngine(t, Options{Hash: 4, Threads: 2, TreeMaxNodes: defaultTreeMaxNodes}, nil)
	h.goSearch(t, LimitsType{Infinite: true}, p)

	// infinite search holds its result until stop
	select {
	case r := <-h.engine.Reports():
		if r.Kind == ReportBestMove {
			t.Fatal("bestmove before stop")
		}
	case <-time.After(50 * time.Millisecond):
	}

	var start = time.Now()
	if err := h.engine.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	var _, r = h.waitBestMove(t, 5*time.Second)
	if grace := time.Since(start); grace > 2*time.Second {
		t.Errorf("stop took %v", grace)
	}
	if p.IndexOf(r.Info.BestMove) < 0 {
		t.Errorf("illegal bestmove %v", r.Info.BestMove)
	}
	if st := h.stats(t); st.State != StateIdle {
		t.Errorf("state %v", st.State)
	}
}

func TestGoWhileSearching(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen)
	var h = startEngine(t, Options{Hash: 4, Threads: 3, TreeMaxNodes: defaultTreeMaxNodes}, nil)
	h.goSearch(t, LimitsType{Infinite: true}, p)
	time.Sleep(20 * time.Millisecond)
	h.goSearch(t, LimitsType{Depth: 2}, p)

	var _, first = h.waitBestMove(t, 10*time.Second)
	var _, second = h.waitBestMove(t, time.Minute)
	if first.Info.ID == second.Info.ID {
		t.Error("same search reported twice")
	}
	if p.IndexOf(second.Info.BestMove) < 0 {
		t.Errorf("illegal bestmove %v", second.Info.BestMove)
	}
	var st = h.stats(t)
	if st.MaxConcurrency != 1 {
		t.Errorf("max concurrent searches %v", st.MaxConcurrency)
	}
	if st.Generation != 2 {
		t.Errorf("generation %v", st.Generation)
	}
}

func TestStopBeforePendingSearchStarts(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen)
	var h = startEngine(t, NewOptions(), nil)
	h.goSearch(t, LimitsType{Infinite: true}, p)
	h.goSearch(t, LimitsType{Infinite: true}, p)
	if err := h.engine.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.waitBestMove(t, 10*time.Second)
	h.waitBestMove(t, 10*time.Second)
}

func TestHashResizeBeforeSearch(t *testing.T) {
	var h = startEngine(t, NewOptions(), nil)
	var ctx = context.Background()
	for _, hash := range []int{1, 1024} {
		var options = NewOptions()
		options.Hash = hash
		if err := h.engine.Configure(ctx, options); err != nil {
			t.Fatal(err)
		}
	}
	var st = h.stats(t)
	if st.TableBytes != 0 {
		t.Errorf("table bytes %v", st.TableBytes)
	}
	if st.TableCapacity != 1024<<20 {
		t.Errorf("table capacity %v", st.TableCapacity)
	}
}

func TestConfigureRejectsInvalidOptions(t *testing.T) {
	var h = startEngine(t, NewOptions(), nil)
	var tests = []Options{
		{Hash: 0, Threads: 1, TreeMaxNodes: defaultTreeMaxNodes},
		{Hash: MaxHash + 1, Threads: 1, TreeMaxNodes: defaultTreeMaxNodes},
		{Hash: 16, Threads: 0, TreeMaxNodes: defaultTreeMaxNodes},
		{Hash: 16, Threads: MaxThreads + 1, TreeMaxNodes: defaultTreeMaxNodes},
		{Hash: 16, Threads: 1, TreeMaxNodes: 10},
	}
	for _, options := range tests {
		if err := h.engine.Configure(context.Background(), options); !errors.Is(err, ErrInvalidOption) {
			t.Errorf("%+v: got %v", options, err)
		}
	}
}

func TestSearchTableBounded(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen)
	var options = NewOptions()
	options.Hash = 1
	var h = startEngine(t, options, nil)
	h.goSearch(t, LimitsType{Depth: 4}, p)
	h.waitBestMove(t, time.Minute)
	var st = h.stats(t)
	if st.TableBytes == 0 || st.TableBytes > st.TableCapacity {
		t.Errorf("table bytes %v capacity %v", st.TableBytes, st.TableCapacity)
	}
}

func TestSearchMateInOne(t *testing.T) {
	var p = mustPosition(t, "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1")
	var h = startEngine(t, NewOptions(), nil)
	h.goSearch(t, LimitsType{Depth: 4}, p)
	var _, r = h.waitBestMove(t, time.Minute)
	if r.Info.BestMove.String() != "a1a8" {
		t.Errorf("bestmove %v", r.Info.BestMove)
	}
	if r.Info.Score.Mate != 1 {
		t.Errorf("score %+v", r.Info.Score)
	}
}

func TestSearchMoves(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen)
	var only, _ = ParseMove("a2a3")
	var h = startEngine(t, NewOptions(), nil)
	h.goSearch(t, LimitsType{Depth: 2, SearchMoves: []Move{only}}, p)
	var _, r = h.waitBestMove(t, time.Minute)
	if r.Info.BestMove != only {
		t.Errorf("bestmove %v", r.Info.BestMove)
	}
}

func TestSearchNoLegalMoves(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen, "f2f3", "e7e5", "g2g4", "d8h4")
	var h = startEngine(t, NewOptions(), nil)
	h.goSearch(t, LimitsType{MoveTime: 1000}, p)
	var _, r = h.waitBestMove(t, 5*time.Second)
	if r.Info.BestMove != MoveEmpty {
		t.Errorf("bestmove %v", r.Info.BestMove)
	}
}

func TestSearchNodeLimit(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen)
	var h = startEngine(t, NewOptions(), nil)
	h.goSearch(t, LimitsType{Nodes: 2000}, p)
	var _, r = h.waitBestMove(t, time.Minute)
	if p.IndexOf(r.Info.BestMove) < 0 {
		t.Errorf("illegal bestmove %v", r.Info.BestMove)
	}
}

func TestSearchNoLegalMovesInfinite(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen, "f2f3", "e7e5", "g2g4", "d8h4")
	var h = startEngine(t, NewOptions(), nil)
	h.goSearch(t, LimitsType{Infinite: true}, p)
	h.waitNoBestMove(t, 100*time.Millisecond)
	if err := h.engine.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	var _, r = h.waitBestMove(t, 5*time.Second)
	if r.Info.BestMove != MoveEmpty {
		t.Errorf("bestmove %v", r.Info.BestMove)
	}
}

// waitNoBestMove fails if a bestmove arrives within d.
func (h *harness) waitNoBestMove(t *testing.T, d time.Duration) {
	t.Helper()
	var timer = time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case r := <-h.engine.Reports():
			if r.Kind == ReportBestMove {
				t.Fatal("bestmove while holding")
			}
		case <-timer.C:
			return
		}
	}
}

func TestHeldSearchIgnoresNodeLimit(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen, "e2e4")
	for _, limits := range []LimitsType{
		{Ponder: true, Nodes: 2000},
		{Infinite: true, Nodes: 2000},
	} {
		var h = startEngine(t, NewOptions(), nil)
		h.goSearch(t, limits, p)
		h.waitNoBestMove(t, 300*time.Millisecond)
		var err error
		if limits.Ponder {
			err = h.engine.PonderHit(context.Background())
		} else {
			err = h.engine.Stop(context.Background())
		}
		if err != nil {
			t.Fatal(err)
		}
		var _, r = h.waitBestMove(t, 10*time.Second)
		if p.IndexOf(r.Info.BestMove) < 0 {
			t.Errorf("%+v: illegal bestmove %v", limits, r.Info.BestMove)
		}
	}
}

func TestPonderHitMoveTime(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen, "e2e4")
	var h = startEngine(t, Options{Hash: 4, Threads: 2, TreeMaxNodes: defaultTreeMaxNodes}, nil)
	h.goSearch(t, LimitsType{Ponder: true, MoveTime: 100}, p)
	h.waitNoBestMove(t, 200*time.Millisecond)
	var start = time.Now()
	if err := h.engine.PonderHit(context.Background()); err != nil {
		t.Fatal(err)
	}
	var _, r = h.waitBestMove(t, 5*time.Second)
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("bestmove %v after ponderhit", elapsed)
	}
	if p.IndexOf(r.Info.BestMove) < 0 {
		t.Errorf("illegal bestmove %v", r.Info.BestMove)
	}
}

func TestPonderHit(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen, "d2d4")
	var h = startEngine(t, NewOptions(), nil)
	h.goSearch(t, LimitsType{Ponder: true, WhiteTime: 10000, BlackTime: 10000}, p)
	select {
	case r := <-h.engine.Reports():
		if r.Kind == ReportBestMove {
			t.Fatal("bestmove while pondering")
		}
	case <-time.After(100 * time.Millisecond):
	}
	if err := h.engine.PonderHit(context.Background()); err != nil {
		t.Fatal(err)
	}
	var _, r = h.waitBestMove(t, 10*time.Second)
	if p.IndexOf(r.Info.BestMove) < 0 {
		t.Errorf("illegal bestmove %v", r.Info.BestMove)
	}
}

func TestIsReadyWhileSearching(t *testing.T) {
	var p = mustPosition(t, InitialPositionFen)
	var h = startEngine(t, NewOptions(), nil)
	h.goSearch(t, LimitsType{Infinite: true}, p)
	if err := h.engine.IsReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	var timer = time.After(5 * time.Second)
	for ready := false; !ready; {
		select {
		case r := <-h.engine.Reports():
			ready = r.Kind == ReportReady
		case <-timer:
			t.Fatal("no ready report")
		}
	}
	h.engine.Stop(context.Background())
	h.waitBestMove(t, 5*time.Second)
}

func TestStaleTimerIgnored(t *testing.T) {
	var e = NewEngine(NewOptions(), zerolog.Nop())
	var s = &search{generation: 5, release: make(chan struct{})}
	e.current = s
	e.generation = 5
	e.state = StateSearching

	e.handleEvent(context.Background(), timerExpired{generation: 4})
	if e.state != StateSearching || s.stopped.Load() {
		t.Fatalf("stale timer stopped the search")
	}
	e.handleEvent(context.Background(), timerExpired{generation: 5})
	if e.state != StateStopping || !s.stopped.Load() {
		t.Fatalf("current timer ignored")
	}
	// a late duplicate while stopping changes nothing
	e.handleEvent(context.Background(), timerExpired{generation: 5})
	if e.state != StateStopping {
		t.Fatalf("state %v", e.state)
	}
}

func TestStressWithAllocationFailures(t *testing.T) {
	var errNoMemory = errors.New("no memory")
	var mu sync.Mutex
	var r = rand.New(rand.NewSource(4))
	var fail = func() bool {
		mu.Lock()
		defer mu.Unlock()
		return r.Intn(3) == 0
	}
	var options = Options{Hash: 2, Threads: 3, TreeMaxNodes: 3 * chunkNodes}
	var h = startEngine(t, options, func(e *Engine) {
		e.pageAlloc = func(bytes int) error {
			if fail() {
				return errNoMemory
			}
			return nil
		}
		e.chunkAlloc = func(chunk int) error {
			if chunk > 0 && fail() {
				return errNoMemory
			}
			return nil
		}
	})
	var positions = []*Position{
		mustPosition(t, InitialPositionFen),
		mustPosition(t, "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1"),
		mustPosition(t, "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1"),
	}
	for i := 0; i < 15; i++ {
		var p = positions[i%len(positions)]
		h.goSearch(t, LimitsType{Infinite: true}, p)
		time.Sleep(time.Duration(i%4) * 5 * time.Millisecond)
		if err := h.engine.Stop(context.Background()); err != nil {
			t.Fatal(err)
		}
		var _, r = h.waitBestMove(t, 10*time.Second)
		if p.IndexOf(r.Info.BestMove) < 0 {
			t.Fatalf("iteration %v: illegal bestmove %v", i, r.Info.BestMove)
		}
		if i%5 == 4 {
			if err := h.engine.Clear(context.Background()); err != nil {
				t.Fatal(err)
			}
		}
	}
	var st = h.stats(t)
	if st.TableBytes > st.TableCapacity {
		t.Errorf("table bytes %v capacity %v", st.TableBytes, st.TableCapacity)
	}
	if st.MaxConcurrency != 1 {
		t.Errorf("max concurrent searches %v", st.MaxConcurrency)
	}
}

func TestRootAllocationFailureIsFatal(t *testing.T) {
	var e = NewEngine(NewOptions(), zerolog.Nop())
	e.chunkAlloc = func(int) error {
		return errors.New("no memory")
	}
	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	var errc = make(chan error, 1)
	go func() {
		errc <- e.Run(ctx)
	}()
	var p = mustPosition(t, InitialPositionFen)
	if err := e.Go(ctx, SearchParams{Positions: []*Position{p}, Limits: LimitsType{Depth: 1}}); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-e.Reports():
		if r.Kind != ReportFatal || !errors.Is(r.Err, ErrTreeAllocation) {
			t.Fatalf("unexpected report %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no fatal report")
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrTreeAllocation) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine kept running")
	}
}
