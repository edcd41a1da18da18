package eval

import (
	"testing"

	. "github.com/chesnaught/chesnaught/pkg/common"
)

func TestEvaluateSymmetry(t *testing.T) {
	var tests = []struct {
		fen     string
		flipped string
	}{
		{
			"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3",
			"rnbqkb1r/pppp1ppp/5n2/4p3/4P3/2N5/PPPP1PPP/R1BQKBNR b KQkq - 2 3",
		},
		{
			"8/5k2/8/3P4/8/8/2K5/8 w - - 0 1",
			"8/2k5/8/8/3p4/8/5K2/8 b - - 0 1",
		},
	}
	var es = NewEvaluationService()
	for _, test := range tests {
		var p1, err1 = NewPositionFromFEN(test.fen)
		var p2, err2 = NewPositionFromFEN(test.flipped)
		if err1 != nil || err2 != nil {
			t.Fatal(err1, err2)
		}
		var m1 = es.Estimate(p1).Material
		var m2 = es.Estimate(p2).Material
		if m1 != m2 {
			t.Errorf("%v: material %v, mirrored %v", test.fen, m1, m2)
		}
	}
}

func TestEvaluateStartPosition(t *testing.T) {
	var p, err = NewPositionFromFEN(InitialPositionFen)
	if err != nil {
		t.Fatal(err)
	}
	var e = NewEvaluationService().Estimate(p)
	if e.Material != 0 {
		t.Errorf("material %v", e.Material)
	}
	if e.Checks != 0 || e.Mobility != 20 {
		t.Errorf("unexpected estimate %+v", e)
	}
}

func TestValueOrder(t *testing.T) {
	var ordered = []Estimate{
		{Material: -300, Checks: 15, Mobility: 63},
		{Material: -1, Checks: 0, Mobility: 0},
		{Material: 0, Checks: 0, Mobility: 5},
		{Material: 0, Checks: 1, Mobility: 0},
		{Material: 0, Checks: 1, Mobility: 40},
		{Material: 1, Checks: 0, Mobility: 0},
		{Material: 250, Checks: 3, Mobility: 12},
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Value() >= ordered[i].Value() {
			t.Errorf("%+v should rank below %+v", ordered[i-1], ordered[i])
		}
	}
}

func TestValueSaturates(t *testing.T) {
	var e = Estimate{Material: 7, Checks: 40, Mobility: 200}
	var u = Unpack(e.Value())
	if u.Material != 7 || u.Checks != maxChecks || u.Mobility != maxMobility {
		t.Errorf("unexpected unpack %+v", u)
	}
	var neg = Unpack(Estimate{Material: -3, Checks: 2, Mobility: 9}.Value())
	if neg != (Estimate{Material: -3, Checks: 2, Mobility: 9}) {
		t.Errorf("unexpected unpack %+v", neg)
	}
}
