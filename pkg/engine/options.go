package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/chesnaught/chesnaught/pkg/common"
)

const (
	MinHash    = 1
	MaxHash    = 1 << 16
	MinThreads = 1
	MaxThreads = 256

	defaultTreeMaxNodes = 1 << 18
)

var ErrInvalidOption = errors.New("invalid option")

// Options is copied into every search when it starts.
type Options struct {
	Hash             int // MiB
	Threads          int
	ProgressMinNodes int
	TreeMaxNodes     int
}

func NewOptions() Options {
	return Options{
		Hash:             16,
		Threads:          1,
		ProgressMinNodes: 0,
		TreeMaxNodes:     defaultTreeMaxNodes,
	}
}

func (o Options) Validate() error {
	if o.Hash < MinHash || o.Hash > MaxHash {
		return fmt.Errorf("hash %d not in [%d, %d]: %w", o.Hash, MinHash, MaxHash, ErrInvalidOption)
	}
	if o.Threads < MinThreads || o.Threads > MaxThreads {
		return fmt.Errorf("threads %d not in [%d, %d]: %w", o.Threads, MinThreads, MaxThreads, ErrInvalidOption)
	}
	if o.ProgressMinNodes < 0 {
		return fmt.Errorf("progress min nodes %d: %w", o.ProgressMinNodes, ErrInvalidOption)
	}
	if o.TreeMaxNodes <= common.MaxMoves {
		return fmt.Errorf("tree max nodes %d: %w", o.TreeMaxNodes, ErrInvalidOption)
	}
	return nil
}

func (o Options) hashBytes() int {
	return o.Hash << 20
}

var reductions [64][64]int

func init() {
	initLmr(&reductions, lmrMult)
}

func lmr(d, m int) int {
	return reductions[common.Min(d, 63)][common.Min(m, 63)]
}

func initLmr(reductions *[64][64]int,
	f func(d, m float64) float64) {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			var r = f(float64(d), float64(m))
			reductions[d][m] = int(r)
		}
	}
}

func lmrMult(d, m float64) float64 {
	return lirp(math.Log(d)*math.Log(m), math.Log(5)*math.Log(22), math.Log(63)*math.Log(63), 3, 8)
}

func lirp(x, x1, x2, y1, y2 float64) float64 {
	return y1 + (y2-y1)*(x-x1)/(x2-x1)
}
