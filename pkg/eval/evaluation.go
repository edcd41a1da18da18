package eval

import (
	. "github.com/chesnaught/chesnaught/pkg/common"
)

const (
	SideWhite = 0
	SideBlack = 1
)

const (
	minorPhase = 4
	rookPhase  = 6
	queenPhase = 12
	totalPhase = 2 * (4*minorPhase + 2*rookPhase + queenPhase)
)

const (
	scaleDraw   = 0
	scaleHard   = 1
	scaleNormal = 2
)

// EvaluationService is not safe for concurrent use; every search thread owns one.
type EvaluationService struct {
	Weights
	pieceCount [2][King + 1]int
	force      [2]int
}

func NewEvaluationService() *EvaluationService {
	var es = &EvaluationService{}
	es.Weights.init()
	return es
}

// Evaluate returns the packed estimate from the side to move.
func (e *EvaluationService) Evaluate(p *Position) int {
	return e.Estimate(p).Value()
}

func (e *EvaluationService) Estimate(p *Position) Estimate {
	return Estimate{
		Material: e.material(p),
		Checks:   p.CheckingMoves(),
		Mobility: len(p.Moves()),
	}
}

func (e *EvaluationService) material(p *Position) int {
	var s Score

	for piece := Pawn; piece <= King; piece++ {
		e.pieceCount[SideWhite][piece] = 0
		e.pieceCount[SideBlack][piece] = 0
	}

	for sq := 0; sq < 64; sq++ {
		var piece, white = p.GetPieceTypeAndSide(sq)
		if piece == Empty {
			continue
		}
		var side = SideBlack
		if white {
			side = SideWhite
		}
		s += e.PST[side][piece][sq]
		e.pieceCount[side][piece]++
	}

	for side := SideWhite; side <= SideBlack; side++ {
		e.force[side] = minorPhase*(e.pieceCount[side][Knight]+e.pieceCount[side][Bishop]) +
			rookPhase*e.pieceCount[side][Rook] + queenPhase*e.pieceCount[side][Queen]
	}

	if e.pieceCount[SideWhite][Bishop] >= 2 {
		s += e.BishopPairMaterial
	}
	if e.pieceCount[SideBlack][Bishop] >= 2 {
		s -= e.BishopPairMaterial
	}

	var phase = e.force[SideWhite] + e.force[SideBlack]
	if phase > totalPhase {
		phase = totalPhase
	}

	var result = (s.Middle()*phase + s.End()*(totalPhase-phase)) / totalPhase

	if result > 0 {
		result = result * computeFactor(e, SideWhite) / scaleNormal
	} else {
		result = result * computeFactor(e, SideBlack) / scaleNormal
	}

	if !p.WhiteMove {
		result = -result
	}

	return result
}

func computeFactor(e *EvaluationService, side int) int {
	if e.force[side] >= queenPhase+rookPhase {
		return scaleNormal
	}
	if e.pieceCount[side][Pawn] == 0 {
		if e.force[side] <= minorPhase {
			return scaleDraw
		}
		if e.force[side] == 2*minorPhase && e.pieceCount[side][Knight] == 2 && e.pieceCount[side^1][Pawn] == 0 {
			return scaleDraw
		}
		if e.force[side]-e.force[side^1] <= minorPhase {
			return scaleHard
		}
	} else if e.pieceCount[side][Pawn] == 1 {
		if e.force[side] <= minorPhase && e.pieceCount[side^1][Knight]+e.pieceCount[side^1][Bishop] != 0 {
			return scaleHard
		}
		if e.force[side] == e.force[side^1] && e.pieceCount[side^1][Knight]+e.pieceCount[side^1][Bishop] != 0 {
			return scaleHard
		}
	}
	return scaleNormal
}
