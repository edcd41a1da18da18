package tactic

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/chesnaught/chesnaught/pkg/common"
	"github.com/chesnaught/chesnaught/pkg/engine"
)

type Engine interface {
	Go(ctx context.Context, params common.SearchParams) error
	Reports() <-chan engine.Report
}

type Result struct {
	Total   int
	Solved  int
	Nodes   int64
	Elapsed time.Duration
}

func (r Result) KNPS() int64 {
	var ms = r.Elapsed.Milliseconds()
	if ms == 0 {
		return 0
	}
	return r.Nodes / ms
}

func SolveTactic(ctx context.Context, tests []EpdItem, eng Engine,
	moveTime time.Duration, logger zerolog.Logger) (Result, error) {
	return run(ctx, tests, eng, common.LimitsType{MoveTime: int(moveTime.Milliseconds())}, logger)
}

func Benchmark(ctx context.Context, tests []EpdItem, eng Engine,
	depth int, logger zerolog.Logger) (Result, error) {
	return run(ctx, tests, eng, common.LimitsType{Depth: depth}, logger)
}

func run(ctx context.Context, tests []EpdItem, eng Engine,
	limits common.LimitsType, logger zerolog.Logger) (Result, error) {
	var result Result
	var start = time.Now()
	for i := range tests {
		var test = &tests[i]
		var info, err = Search(ctx, eng, common.SearchParams{
			Positions: []*common.Position{test.Position},
			Limits:    limits,
		})
		if err != nil {
			return result, err
		}
		result.Total++
		result.Nodes += info.Nodes
		var solved = lo.Contains(test.BestMoves, info.BestMove)
		if solved {
			result.Solved++
		}
		logger.Debug().
			Str("id", test.ID).
			Str("bestmove", info.BestMove.String()).
			Bool("solved", solved).
			Int("depth", info.Depth).
			Int64("nodes", info.Nodes).
			Msg("test done")
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// Search starts a search and waits for its best move.
func Search(ctx context.Context, eng Engine, params common.SearchParams) (common.SearchInfo, error) {
	if err := eng.Go(ctx, params); err != nil {
		return common.SearchInfo{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return common.SearchInfo{}, ctx.Err()
		case r, ok := <-eng.Reports():
			if !ok {
				return common.SearchInfo{}, engine.ErrEngineStopped
			}
			switch r.Kind {
			case engine.ReportBestMove:
				return r.Info, nil
			case engine.ReportFatal:
				if r.Err != nil {
					return common.SearchInfo{}, r.Err
				}
				return common.SearchInfo{}, errors.New(r.Message)
			}
		}
	}
}
