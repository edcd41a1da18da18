package engine

import . "github.com/chesnaught/chesnaught/pkg/common"

const historyMax = 1 << 14

type historyContext struct {
	thread     *thread
	position   *Position
	sideToMove bool
	cont1      int
	cont2      int
}

func (h *historyContext) ReadTotal(m Move) int {
	var sideToMove = h.sideToMove
	var score int
	score += int(h.thread.mainHistory[sideFromToIndex(sideToMove, m)])
	var pieceToIndex = pieceSquareIndex(sideToMove, h.position.MovingPiece(m), m.To())
	if h.cont1 != -1 {
		score += int(h.thread.continuationHistory[h.cont1][pieceToIndex])
	}
	if h.cont2 != -1 {
		score += int(h.thread.continuationHistory[h.cont2][pieceToIndex])
	}
	return score
}

func (h *historyContext) Update(quietsSearched []Move, bestMove Move, depth int) {
	var bonus = Min(depth*depth, 400)
	var t = h.thread
	var sideToMove = h.sideToMove
	var cont1 = h.cont1
	var cont2 = h.cont2

	for _, m := range quietsSearched {
		var good = m == bestMove

		var fromToIndex = sideFromToIndex(sideToMove, m)
		updateHistory(&t.mainHistory[fromToIndex], bonus, good)
		var pieceToIndex = pieceSquareIndex(sideToMove, h.position.MovingPiece(m), m.To())
		if cont1 != -1 {
			updateHistory(&t.continuationHistory[cont1][pieceToIndex], bonus, good)
		}
		if cont2 != -1 {
			updateHistory(&t.continuationHistory[cont2][pieceToIndex], bonus, good)
		}

		if good {
			break
		}
	}
}

// Exponential moving average
func updateHistory(v *int16, bonus int, good bool) {
	var newVal int
	if good {
		newVal = historyMax
	} else {
		newVal = -historyMax
	}
	*v += int16((newVal - int(*v)) * bonus / 512)
}

// clearHistory forgets everything a thread learned in earlier searches.
func (t *thread) clearHistory() {
	clear(t.mainHistory[:])
	for i := range t.continuationHistory {
		clear(t.continuationHistory[i][:])
	}
	for i := range t.stack {
		t.stack[i].killer1 = MoveEmpty
		t.stack[i].killer2 = MoveEmpty
	}
}

func (t *thread) getHistoryContext(height int) historyContext {
	var position = t.stack[height].position
	var sideToMove = position.WhiteMove
	var cont1 = -1
	if prev1 := position.LastMove; prev1 != MoveEmpty {
		cont1 = pieceSquareIndex(!sideToMove, position.WhatPiece(prev1.To()), prev1.To())
	}
	var cont2 = -1
	if height > 0 {
		var parent = t.stack[height-1].position
		if prev2 := parent.LastMove; prev2 != MoveEmpty {
			cont2 = pieceSquareIndex(sideToMove, parent.WhatPiece(prev2.To()), prev2.To())
		}
	}
	return historyContext{
		thread:     t,
		position:   position,
		sideToMove: sideToMove,
		cont1:      cont1,
		cont2:      cont2,
	}
}

func pieceSquareIndex(side bool, piece, to int) int {
	var result = (piece << 6) | to
	if side {
		result |= 1 << 9
	}
	return result
}

func sideFromToIndex(side bool, move Move) int {
	var result = (move.From() << 6) | move.To()
	if side {
		result |= 1 << 12
	}
	return result
}
