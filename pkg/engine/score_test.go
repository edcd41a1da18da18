package engine

import (
	"math/rand"
	"sort"
	"testing"

	. "github.com/chesnaught/chesnaught/pkg/common"
	"github.com/chesnaught/chesnaught/pkg/eval"
)

func TestCentipawnsPreservesOrder(t *testing.T) {
	var r = rand.New(rand.NewSource(3))
	var values = make([]int, 10000)
	for i := range values {
		var e = eval.Estimate{
			Material: r.Intn(4000) - 2000,
			Checks:   r.Intn(20),
			Mobility: r.Intn(80),
		}
		values[i] = e.Value()
	}
	sort.Ints(values)
	for i := 1; i < len(values); i++ {
		if Centipawns(values[i-1]) > Centipawns(values[i]) {
			t.Fatalf("projection reverses %v < %v", values[i-1], values[i])
		}
	}
}

func TestCentipawnsIsMaterial(t *testing.T) {
	var tests = []eval.Estimate{
		{Material: 0, Checks: 3, Mobility: 20},
		{Material: 35, Checks: 0, Mobility: 63},
		{Material: -1, Checks: 15, Mobility: 63},
		{Material: -250, Checks: 1, Mobility: 0},
	}
	for _, test := range tests {
		if cp := Centipawns(test.Value()); cp != test.Material {
			t.Errorf("%+v: centipawns %v", test, cp)
		}
	}
}

func TestNewUciScore(t *testing.T) {
	var tests = []struct {
		value int
		score UciScore
	}{
		{winIn(1), UciScore{Mate: 1}},
		{winIn(3), UciScore{Mate: 2}},
		{lossIn(2), UciScore{Mate: -1}},
		{lossIn(4), UciScore{Mate: -2}},
		{eval.Estimate{Material: 42, Mobility: 7}.Value(), UciScore{Centipawns: 42}},
		{valueDraw, UciScore{}},
	}
	for _, test := range tests {
		if score := newUciScore(test.value); score != test.score {
			t.Errorf("newUciScore(%v) = %+v want %+v", test.value, score, test.score)
		}
	}
}
