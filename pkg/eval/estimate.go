package eval

import "github.com/samber/lo"

// Estimate is the multi-component evaluation of a position from the side to
// move. Components are ranked lexicographically: material first, then the
// number of checking moves, then mobility.
type Estimate struct {
	Material int
	Checks   int
	Mobility int
}

const (
	// SecondaryBits is the width of the packed secondary components.
	SecondaryBits = 10
	// Unit is one centipawn of material in packed values.
	Unit = 1 << SecondaryBits

	checksShift = 6
	maxChecks   = 1<<(SecondaryBits-checksShift) - 1
	maxMobility = 1<<checksShift - 1
)

// Value packs the estimate into one integer whose natural order is the
// lexicographic order of the components. Secondary components saturate.
func (e Estimate) Value() int {
	var checks = lo.Clamp(e.Checks, 0, maxChecks)
	var mobility = lo.Clamp(e.Mobility, 0, maxMobility)
	return e.Material*Unit + checks<<checksShift + mobility
}

// Unpack recovers the (saturated) components of a packed value.
func Unpack(v int) Estimate {
	var secondary = v & (Unit - 1)
	return Estimate{
		Material: v >> SecondaryBits,
		Checks:   secondary >> checksShift,
		Mobility: secondary & maxMobility,
	}
}
