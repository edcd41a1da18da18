package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/frand"

	. "github.com/chesnaught/chesnaught/pkg/common"
)

var errSearchTimeout = errors.New("search timeout")

type searchTask struct {
	depth         int
	startingMove  Move //for move ordering
	startingScore int  //for aspirationWindow
}

type mainLine struct {
	moves []Move
	score int
	depth int
}

// search is the state shared by the workers of one go command. Fields above
// start are fixed before the workers run; ponderhit only touches atomics.
type search struct {
	ctx         context.Context
	id          string
	generation  uint64
	options     Options
	limits      LimitsType
	root        *Position
	historyKeys map[uint64]int
	tt          *transTable
	tree        *tree
	threads     []*thread
	events      chan<- event
	progress    func(SearchInfo)
	logger      zerolog.Logger

	start        time.Time
	softDeadline atomic.Int64
	hardDeadline atomic.Int64
	holding      atomic.Bool
	stopped      atomic.Bool
	nodes        atomic.Int64
	release      chan struct{}
	releaseOnce  sync.Once
	limitOnce    sync.Once
	done         chan struct{}

	mainLine mainLine
}

func getHistoryKeys(positions []*Position) map[uint64]int {
	var result = make(map[uint64]int)
	for i := len(positions) - 1; i >= 0; i-- {
		var p = positions[i]
		result[p.Key]++
		if p.Rule50 == 0 {
			break
		}
	}
	return result
}

func (s *search) stop() {
	s.stopped.Store(true)
	s.releaseHold()
}

func (s *search) releaseHold() {
	s.releaseOnce.Do(func() {
		close(s.release)
	})
}

func (s *search) isDone() bool {
	return s.stopped.Load()
}

// ponderHit turns a held search into a timed one counted from now.
func (s *search) ponderHit(now time.Time, tc timeControl) {
	s.setDeadlines(now, tc)
	s.holding.Store(false)
	s.releaseHold()
}

func (s *search) setDeadlines(start time.Time, tc timeControl) {
	if tc.soft != 0 {
		s.softDeadline.Store(start.Add(tc.soft).UnixNano())
	}
	if tc.hard != 0 {
		s.hardDeadline.Store(start.Add(tc.hard).UnixNano())
	}
}

func (s *search) limitReached() {
	s.stop()
	s.limitOnce.Do(func() {
		s.notify(limitReached{generation: s.generation})
	})
}

func (s *search) notify(ev event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *search) onIterationComplete() {
	var line = s.mainLine
	if s.holding.Load() {
		return
	}
	if s.limits.Depth != 0 && line.depth >= s.limits.Depth {
		s.stop()
		return
	}
	if s.limits.Nodes != 0 && s.nodes.Load() >= int64(s.limits.Nodes) {
		s.stop()
		return
	}
	if s.limits.Mate != 0 {
		var score = newUciScore(line.score)
		if score.Mate > 0 && score.Mate <= s.limits.Mate {
			s.stop()
			return
		}
	}
	if line.score >= winIn(line.depth-5) ||
		line.score <= lossIn(line.depth-5) {
		s.stop()
		return
	}
	if soft := s.softDeadline.Load(); soft != 0 &&
		time.Now().UnixNano() >= soft {
		s.stop()
		return
	}
}

func (s *search) searchInfo() SearchInfo {
	return SearchInfo{
		ID:       s.id,
		Depth:    s.mainLine.depth,
		MainLine: s.mainLine.moves,
		Score:    newUciScore(s.mainLine.score),
		Nodes:    s.nodes.Load(),
		Time:     time.Since(s.start),
		HashFull: s.tt.HashFull(),
	}
}

// run is the body of the worker pool. It returns once every worker joined
// and, for held searches, the hold was released.
func (s *search) run() error {
	defer close(s.done)
	var err = lazySmp(s)
	if s.holding.Load() {
		<-s.release
	}
	return err
}

func lazySmp(s *search) error {
	var ml = s.genRootMoves()
	if len(ml) != 0 {
		s.mainLine = mainLine{
			depth: 0,
			score: int(s.tree.node(s.tree.root().first + int32(ml[0].Index)).static.Load()),
			moves: []Move{ml[0].Move},
		}
	}
	if len(ml) == 0 || len(ml) == 1 && !s.holding.Load() {
		return nil
	}

	var tasks = make(chan searchTask)
	var taskResults = make(chan mainLine)

	var g errgroup.Group
	for _, t := range s.threads {
		var t = t
		var ml = cloneMoves(ml)
		g.Go(func() error {
			return searchDepth(t, ml, tasks, taskResults)
		})
	}

	var errc = make(chan error, 1)
	go func() {
		errc <- g.Wait()
		close(taskResults)
	}()

	iterativeDeepening(s, tasks, taskResults)
	return <-errc
}

func iterativeDeepening(
	s *search,
	tasks chan<- searchTask,
	taskResults <-chan mainLine,
) {
	var searchCountByDepth [stackSize]int
	var threads = len(s.threads)
	for {
		var task = searchTask{
			depth:         s.mainLine.depth + 1, // next Iteration
			startingMove:  s.mainLine.moves[0],
			startingScore: s.mainLine.score,
		}
		if task.depth < len(searchCountByDepth) &&
			searchCountByDepth[task.depth] >= (threads+1)/2 {
			// some threads search deeper
			task.depth = s.mainLine.depth + 2
		}

		if task.depth > maxHeight ||
			s.limits.Depth != 0 && task.depth > s.limits.Depth ||
			s.isDone() {
			// no new iterations
			if tasks != nil {
				close(tasks)
				tasks = nil
			}
		}

		select {
		case taskResult, ok := <-taskResults:
			if !ok {
				// all searches finished
				return
			}
			if taskResult.depth > s.mainLine.depth {
				s.mainLine = taskResult
				s.onIterationComplete()
				if s.progress != nil && s.nodes.Load() >= int64(s.options.ProgressMinNodes) {
					s.progress(s.searchInfo())
				}
			}
		case tasks <- task:
			searchCountByDepth[task.depth]++
		}
	}
}

func searchDepth(
	t *thread,
	ml []orderedMove,
	tasks <-chan searchTask,
	taskResults chan<- mainLine,
) error {
	defer t.flushNodes()
	defer func() {
		if r := recover(); r != nil {
			if r == errSearchTimeout {
				return
			}
			panic(r)
		}
	}()

	const height = 0
	for h := 0; h <= 2; h++ {
		t.stack[h].killer1 = MoveEmpty
		t.stack[h].killer2 = MoveEmpty
	}

	for task := range tasks {
		if task.startingMove != MoveEmpty {
			var index = findMoveIndex(ml, task.startingMove)
			if index >= 0 {
				moveToBegin(ml, index)
			}
		}
		if t.id > 0 && len(ml) > 2 {
			// helpers diverge from the main thread below the first move
			var tail = ml[1:]
			frand.Shuffle(len(tail), func(i, j int) {
				tail[i], tail[j] = tail[j], tail[i]
			})
		}
		var score = aspirationWindow(t, ml, task.depth, task.startingScore)
		var moves = t.stack[height].pv.toSlice()
		if len(moves) == 0 {
			moves = []Move{ml[0].Move}
		}
		t.flushNodes()
		taskResults <- mainLine{
			depth: task.depth,
			score: score,
			moves: moves,
		}
	}
	return nil
}

// genRootMoves orders the root by the transposition table move, then by the
// static value of each child. searchmoves restricts the list.
func (s *search) genRootMoves() []orderedMove {
	var p = s.root
	var _, _, _, transMove, _ = s.tt.Read(p.Key)
	var first, _, expanded = s.tree.children(0)

	var result []orderedMove
	for i, m := range p.Moves() {
		if len(s.limits.SearchMoves) != 0 && !lo.Contains(s.limits.SearchMoves, m) {
			continue
		}
		var key int32
		if m == transMove {
			key = math.MaxInt32
		} else if expanded {
			key = s.tree.node(first + int32(i)).static.Load()
		}
		result = append(result, orderedMove{Move: m, Index: int16(i), Key: key})
	}
	sortMoves(result)
	return result
}

func findMoveIndex(ml []orderedMove, move Move) int {
	for i := range ml {
		if ml[i].Move == move {
			return i
		}
	}
	return -1
}

func moveToBegin(ml []orderedMove, index int) {
	if index == 0 {
		return
	}
	var item = ml[index]
	for i := index; i > 0; i-- {
		ml[i] = ml[i-1]
	}
	ml[0] = item
}

func cloneMoves(ml []orderedMove) []orderedMove {
	var result = make([]orderedMove, len(ml))
	copy(result, ml)
	return result
}

// result picks the move to play once every worker joined.
func (s *search) result() SearchInfo {
	var info = s.searchInfo()
	var allowed func(Move) bool
	if len(s.limits.SearchMoves) != 0 {
		allowed = func(m Move) bool {
			return lo.Contains(s.limits.SearchMoves, m)
		}
	}
	var best, value, ok = s.tree.selectBest(allowed)
	if !ok {
		info.MainLine = nil
		return info
	}
	info.BestMove = best
	if len(s.mainLine.moves) != 0 && s.mainLine.moves[0] == best {
		info.MainLine = s.mainLine.moves
	} else {
		info.MainLine = append([]Move{best}, s.transLine(best)...)
		info.Score = newUciScore(value)
	}
	if len(info.MainLine) > 1 {
		if child, ok := s.root.MakeMove(best); ok && child.IndexOf(info.MainLine[1]) >= 0 {
			info.Ponder = info.MainLine[1]
		}
	}
	return info
}

// transLine follows transposition table moves after the first move.
func (s *search) transLine(first Move) []Move {
	const maxLength = 8
	var p, ok = s.root.MakeMove(first)
	if !ok {
		return nil
	}
	var seen = map[uint64]bool{s.root.Key: true, p.Key: true}
	var result []Move
	for len(result) < maxLength {
		var _, _, _, move, found = s.tt.Read(p.Key)
		if !found || move == MoveEmpty {
			break
		}
		var child, legal = p.MakeMove(move)
		if !legal || seen[child.Key] {
			break
		}
		seen[child.Key] = true
		result = append(result, move)
		p = child
	}
	return result
}
