package engine

import (
	. "github.com/chesnaught/chesnaught/pkg/common"
	"github.com/chesnaught/chesnaught/pkg/eval"
)

// Centipawns projects a packed value onto its material component. The
// projection is monotone: a <= b implies Centipawns(a) <= Centipawns(b).
func Centipawns(v int) int {
	return v >> eval.SecondaryBits
}

func newUciScore(v int) UciScore {
	if v >= valueWin {
		return UciScore{Mate: (valueMate - v + 1) / 2}
	} else if v <= valueLoss {
		return UciScore{Mate: (-valueMate - v) / 2}
	} else {
		return UciScore{Centipawns: Centipawns(v)}
	}
}
