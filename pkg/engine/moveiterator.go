package engine

import . "github.com/chesnaught/chesnaught/pkg/common"

const sortTableKeyImportant = 100000

// orderedMove remembers the index of the move in Position.Moves, which is
// also the offset of its child in the search tree.
type orderedMove struct {
	Move  Move
	Index int16
	Key   int32
}

type moveIteratorQS struct {
	position *Position
	buffer   []orderedMove
	count    int
	index    int
}

func (mi *moveIteratorQS) Init() {
	var evasions = mi.position.IsCheck()
	mi.count = 0
	for i, m := range mi.position.Moves() {
		if !evasions && !mi.position.IsCaptureOrPromotion(m) {
			continue
		}
		var score int
		if mi.position.IsCaptureOrPromotion(m) {
			score = 29000 + mvvlva(mi.position, m)
		}
		mi.buffer[mi.count] = orderedMove{Move: m, Index: int16(i), Key: int32(score)}
		mi.count++
	}

	sortMoves(mi.buffer[:mi.count])
}

func (mi *moveIteratorQS) Reset() {
	mi.index = 0
}

func (mi *moveIteratorQS) Next() (orderedMove, bool) {
	if mi.index >= mi.count {
		return orderedMove{}, false
	}
	var m = mi.buffer[mi.index]
	mi.index++
	return m, true
}

type moveIterator struct {
	position  *Position
	buffer    []orderedMove
	history   historyContext
	transMove Move
	treeMove  Move
	killer1   Move
	killer2   Move
	count     int
	index     int
	presorted bool
}

func (mi *moveIterator) Init() {
	var p = mi.position
	mi.count = 0
	for i, m := range p.Moves() {
		var score int
		if m == mi.transMove {
			score = sortTableKeyImportant + 2000
		} else if m == mi.treeMove {
			score = sortTableKeyImportant + 1500
		} else if p.IsCaptureOrPromotion(m) {
			score = sortTableKeyImportant + 1000 + mvvlva(p, m)
		} else if m == mi.killer1 {
			score = sortTableKeyImportant + 1
		} else if m == mi.killer2 {
			score = sortTableKeyImportant
		} else {
			score = mi.history.ReadTotal(m)
		}
		mi.buffer[mi.count] = orderedMove{Move: m, Index: int16(i), Key: int32(score)}
		mi.count++
	}
}

// initRoot keeps the root order chosen by the worker.
func (mi *moveIterator) initRoot(ml []orderedMove) {
	mi.count = copy(mi.buffer, ml)
	mi.index = 0
	mi.presorted = true
}

func (mi *moveIterator) Reset() {
	mi.index = 0
}

func (mi *moveIterator) Next() (orderedMove, bool) {
	if mi.index >= mi.count {
		return orderedMove{}, false
	}
	const SortMovesIndex = 1
	if !mi.presorted && mi.index <= SortMovesIndex {
		if mi.index == SortMovesIndex {
			sortMoves(mi.buffer[mi.index:mi.count])
		} else {
			moveToTop(mi.buffer[mi.index:mi.count])
		}
	}
	var m = mi.buffer[mi.index]
	mi.index++
	return m, true
}

var sortPieceValues = [...]int{Empty: 0, Pawn: 1, Knight: 2, Bishop: 3, Rook: 4, Queen: 5, King: 6}

func mvvlva(p *Position, move Move) int {
	return 8*(sortPieceValues[p.CapturedPiece(move)]+
		sortPieceValues[move.Promotion()]) -
		sortPieceValues[p.MovingPiece(move)]
}

// sortMoves is a stable insertion sort by descending key.
func sortMoves(moves []orderedMove) {
	for i := 1; i < len(moves); i++ {
		j, t := i, moves[i]
		for ; j > 0 && moves[j-1].Key < t.Key; j-- {
			moves[j] = moves[j-1]
		}
		moves[j] = t
	}
}

func moveToTop(ml []orderedMove) {
	var bestIndex = 0
	for i := 1; i < len(ml); i++ {
		if ml[i].Key > ml[bestIndex].Key {
			bestIndex = i
		}
	}
	if bestIndex != 0 {
		ml[0], ml[bestIndex] = ml[bestIndex], ml[0]
	}
}
