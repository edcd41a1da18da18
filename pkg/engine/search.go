package engine

import (
	"time"

	. "github.com/chesnaught/chesnaught/pkg/common"
	"github.com/chesnaught/chesnaught/pkg/eval"
)

const (
	pollMask     = 255
	deadlineMask = 15
)

type thread struct {
	id                  int
	search              *search
	evaluator           *eval.EvaluationService
	rootMoves           []orderedMove
	nodes               int64
	flushed             int64
	mainHistory         [1 << 13]int16
	continuationHistory [1 << 10][1 << 10]int16
	stack               [stackSize]struct {
		position       *Position
		node           int32
		moveList       [MaxMoves]orderedMove
		quietsSearched [MaxMoves]Move
		pv             pv
		staticEval     int
		killer1        Move
		killer2        Move
	}
}

type pv struct {
	items [stackSize]Move
	size  int
}

func newThread(id int) *thread {
	return &thread{
		id:        id,
		evaluator: eval.NewEvaluationService(),
	}
}

func (t *thread) reset(s *search) {
	t.search = s
	t.nodes = 0
	t.flushed = 0
	t.stack[0].position = s.root
	t.stack[0].node = 0
}

func aspirationWindow(t *thread, ml []orderedMove, depth, prevScore int) int {
	t.rootMoves = ml
	if depth >= 5 && !(prevScore <= valueLoss || prevScore >= valueWin) {
		const Window = 25 * eval.Unit
		var alpha = Max(-valueInfinity, prevScore-Window)
		var beta = Min(valueInfinity, prevScore+Window)
		var score = t.alphaBeta(alpha, beta, depth, 0)
		if score > alpha && score < beta {
			return score
		}
		if score >= beta {
			beta = valueInfinity
		}
		if score <= alpha {
			alpha = -valueInfinity
		}
		score = t.alphaBeta(alpha, beta, depth, 0)
		if score > alpha && score < beta {
			return score
		}
	}
	return t.alphaBeta(-valueInfinity, valueInfinity, depth, 0)
}

// main search method
func (t *thread) alphaBeta(alpha, beta, depth, height int) int {
	if depth <= 0 {
		return t.quiescence(alpha, beta, height)
	}
	t.clearPV(height)

	var rootNode = height == 0
	var pvNode = beta != alpha+1
	var position = t.stack[height].position
	var isCheck = position.IsCheck()
	var s = t.search
	var tr = s.tree

	if !rootNode {
		if height >= maxHeight {
			return t.evaluator.Evaluate(position)
		}
		if t.isRepeat(height) {
			return valueDraw
		}
		if isDraw(position) {
			return valueDraw
		}
		// mate distance pruning
		if winIn(height+1) <= alpha {
			return alpha
		}
		if lossIn(height+2) >= beta && !isCheck {
			return beta
		}
	}

	var nodeIndex = t.stack[height].node
	var treeMove = MoveEmpty
	if nodeIndex != nodeNone {
		var n = tr.node(nodeIndex)
		n.visits.Add(1)
		n.key.CompareAndSwap(0, position.Key)
		if height < treeMaxHeight && depth >= 2 {
			tr.expand(nodeIndex, position)
		}
		treeMove = tr.bestChild(nodeIndex)
	}

	// transposition table
	var ttDepth, ttValue, ttBound, ttMove, ttHit = s.tt.Read(position.Key)
	if ttHit {
		ttValue = valueFromTT(ttValue, height)
		if ttDepth >= depth && !pvNode && !rootNode {
			if ttValue >= beta && (ttBound&boundLower) != 0 {
				if ttMove != MoveEmpty && !position.IsCaptureOrPromotion(ttMove) {
					t.updateKiller(ttMove, height)
				}
				return ttValue
			}
			if ttValue <= alpha && (ttBound&boundUpper) != 0 {
				return ttValue
			}
		}
	}

	var staticEval = t.evaluator.Evaluate(position)
	t.stack[height].staticEval = staticEval
	var improving = height < 2 || staticEval > t.stack[height-2].staticEval

	if height+2 <= maxHeight {
		t.stack[height+2].killer1 = MoveEmpty
		t.stack[height+2].killer2 = MoveEmpty
	}

	// reverse futility pruning
	if !rootNode && !pvNode && depth <= 8 && !isCheck {
		var score = staticEval - pawnValue*depth
		if score >= beta {
			return staticEval
		}
	}

	var historyContext = t.getHistoryContext(height)
	var killer1 = t.stack[height].killer1
	var killer2 = t.stack[height].killer2
	var mi = moveIterator{
		position:  position,
		buffer:    t.stack[height].moveList[:],
		history:   historyContext,
		transMove: ttMove,
		treeMove:  treeMove,
		killer1:   killer1,
		killer2:   killer2,
	}
	if rootNode {
		mi.initRoot(t.rootMoves)
	} else {
		mi.Init()
	}

	var movesSearched = 0
	var hasLegalMove = false
	var quietsSeen = 0

	var quietsSearched = t.stack[height].quietsSearched[:0]
	var bestMove Move

	var lmp = 5 + (depth-1)*depth
	if !improving {
		lmp /= 2
	}

	var best = -valueInfinity
	var oldAlpha = alpha

	for mi.Reset(); ; {
		var om, ok = mi.Next()
		if !ok {
			break
		}
		var move = om.Move
		var isNoisy = position.IsCaptureOrPromotion(move)
		if !isNoisy {
			quietsSeen++
		}

		if depth <= 8 && best > valueLoss && hasLegalMove && !isCheck && !rootNode {
			// late-move pruning
			if !(isNoisy ||
				move == killer1 ||
				move == killer2) &&
				quietsSeen > lmp {
				continue
			}

			// futility pruning
			if !(isNoisy ||
				move == killer1 ||
				move == killer2) &&
				staticEval+pawnValue+pawnValue*depth <= alpha {
				continue
			}
		}

		t.makeMove(om, height)
		hasLegalMove = true
		var child = t.stack[height+1].position
		var childNode = t.stack[height+1].node

		movesSearched++

		var extension, reduction int

		if child.IsCheck() && depth >= 3 {
			extension = 1
		}

		if depth >= 3 && movesSearched > 1 &&
			!(isNoisy) {
			reduction = lmr(depth, movesSearched)
			if move == killer1 || move == killer2 {
				reduction--
			}
			if !isCheck {
				var history = historyContext.ReadTotal(move)
				reduction -= Max(-2, Min(2, history/5000))

				if !improving {
					reduction++
				}
			}
			if pvNode {
				reduction -= 2
			}
			if isCheck || child.IsCheck() {
				reduction--
			}
			reduction = Max(reduction, 0) + extension
			reduction = Max(0, Min(depth-2, reduction))
		}

		if !isNoisy {
			quietsSearched = append(quietsSearched, move)
		}

		var newDepth = depth - 1 + extension

		var score = alpha + 1
		// LMR
		if reduction > 0 {
			score = -t.alphaBeta(-(alpha + 1), -alpha, newDepth-reduction, height+1)
		}
		// PVS
		if score > alpha && beta != alpha+1 && movesSearched > 1 && newDepth > 0 {
			score = -t.alphaBeta(-(alpha + 1), -alpha, newDepth, height+1)
		}
		// full search
		if score > alpha {
			score = -t.alphaBeta(-beta, -alpha, newDepth, height+1)
		}

		if score > alpha && childNode != nodeNone && (!rootNode || score < beta) {
			tr.node(childNode).storeResult(depth, score)
		}

		if score > best {
			best = score
			bestMove = move
		}
		if score > alpha {
			alpha = score
			t.assignPV(height, move)
			if alpha >= beta {
				break
			}
		}
	}

	if !hasLegalMove {
		if !isCheck {
			return valueDraw
		}
		return lossIn(height)
	}

	if alpha > oldAlpha && bestMove != MoveEmpty && !position.IsCaptureOrPromotion(bestMove) {
		historyContext.Update(quietsSearched, bestMove, depth)
		t.updateKiller(bestMove, height)
	}

	ttBound = 0
	if best > oldAlpha {
		ttBound |= boundLower
	}
	if best < beta {
		ttBound |= boundUpper
	}
	if !(rootNode && ttBound == boundUpper) {
		s.tt.Update(position.Key, depth, valueToTT(best, height), ttBound, bestMove)
	}

	return best
}

func (t *thread) quiescence(alpha, beta, height int) int {
	t.clearPV(height)
	var position = t.stack[height].position
	if isDraw(position) {
		return valueDraw
	}
	if height >= maxHeight {
		return t.evaluator.Evaluate(position)
	}
	if t.isRepeat(height) {
		return valueDraw
	}

	var _, ttValue, ttBound, _, ttHit = t.search.tt.Read(position.Key)
	if ttHit {
		ttValue = valueFromTT(ttValue, height)
		if ttBound == boundExact ||
			ttBound == boundLower && ttValue >= beta ||
			ttBound == boundUpper && ttValue <= alpha {
			return ttValue
		}
	}

	var isCheck = position.IsCheck()
	var best = -valueInfinity
	if !isCheck {
		var staticEval = t.evaluator.Evaluate(position)
		best = Max(best, staticEval)
		if staticEval > alpha {
			alpha = staticEval
			if alpha >= beta {
				return alpha
			}
		}
	}
	var mi = moveIteratorQS{
		position: position,
		buffer:   t.stack[height].moveList[:],
	}
	mi.Init()
	var hasLegalMove = false
	for mi.Reset(); ; {
		var om, ok = mi.Next()
		if !ok {
			break
		}
		t.makeMove(om, height)
		hasLegalMove = true
		var score = -t.quiescence(-beta, -alpha, height+1)
		best = Max(best, score)
		if score > alpha {
			alpha = score
			t.assignPV(height, om.Move)
			if alpha >= beta {
				break
			}
		}
	}
	if isCheck && !hasLegalMove {
		return lossIn(height)
	}
	return best
}

// incNodes polls the stop flag and the hard deadline every 16 nodes and
// publishes the node count every 256. A held search ignores its node limit.
func (t *thread) incNodes() {
	t.nodes++
	if t.nodes&deadlineMask != 0 {
		return
	}
	var s = t.search
	if t.nodes&pollMask == 0 {
		var total = t.flushNodes()
		if s.limits.Nodes > 0 && total >= int64(s.limits.Nodes) && !s.holding.Load() {
			s.limitReached()
		}
	}
	if hard := s.hardDeadline.Load(); hard != 0 && time.Now().UnixNano() >= hard {
		s.stop()
	}
	if s.stopped.Load() {
		panic(errSearchTimeout)
	}
}

func (t *thread) flushNodes() int64 {
	var delta = t.nodes - t.flushed
	t.flushed = t.nodes
	return t.search.nodes.Add(delta)
}

func isDraw(p *Position) bool {
	return p.Rule50 > 100 || p.IsMaterialDraw()
}

func (t *thread) isRepeat(height int) bool {
	var p = t.stack[height].position

	if p.Rule50 == 0 || p.LastMove == MoveEmpty {
		return false
	}
	for i := height - 1; i >= 0; i-- {
		var temp = t.stack[i].position
		if temp.Key == p.Key {
			return true
		}
		if temp.Rule50 == 0 || temp.LastMove == MoveEmpty {
			return false
		}
	}

	return t.search.historyKeys[p.Key] >= 2
}

func (t *thread) updateKiller(move Move, height int) {
	if t.stack[height].killer1 != move {
		t.stack[height].killer2 = t.stack[height].killer1
		t.stack[height].killer1 = move
	}
}

// makeMove builds the child position. When the parent is materialised the
// child inherits its tree slot.
func (t *thread) makeMove(om orderedMove, height int) {
	var parent = &t.stack[height]
	var child = &t.stack[height+1]
	child.position = parent.position.MakeMoveAt(int(om.Index))
	child.node = nodeNone
	if parent.node != nodeNone {
		if first, count, ok := t.search.tree.children(parent.node); ok && int32(om.Index) < count {
			child.node = first + int32(om.Index)
		}
	}
	t.incNodes()
}

func (t *thread) clearPV(height int) {
	t.stack[height].pv.clear()
}

func (t *thread) assignPV(height int, m Move) {
	t.stack[height].pv.assign(m, &t.stack[height+1].pv)
}

func (pv *pv) clear() {
	pv.size = 0
}

func (pv *pv) assign(m Move, child *pv) {
	pv.size = 1
	pv.items[0] = m
	if child.size > 0 {
		pv.size += child.size
		copy(pv.items[1:], child.items[:child.size])
	}
}

func (pv *pv) toSlice() []Move {
	var result = make([]Move, pv.size)
	copy(result, pv.items[:pv.size])
	return result
}
