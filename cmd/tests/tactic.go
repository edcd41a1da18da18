package main

import (
	"context"
	"fmt"
	"time"

	"github.com/chesnaught/chesnaught/internal/tactic"
	"github.com/chesnaught/chesnaught/pkg/engine"
)

func runSolveTactic(path string, moveTime time.Duration, threads int) error {
	logger.Info().
		Str("path", path).
		Dur("moveTime", moveTime).
		Int("threads", threads).
		Msg("solveTactic started")
	defer logger.Info().Msg("solveTactic finished")

	var tests, err = tactic.LoadEpdFile(path, logger)
	if err != nil {
		return err
	}
	return withEngine(threads, func(ctx context.Context, eng *engine.Engine) error {
		var result, err = tactic.SolveTactic(ctx, tests, eng, moveTime, logger)
		if err != nil {
			return err
		}
		fmt.Printf("Solved %v of %v\n", result.Solved, result.Total)
		fmt.Println("Time", result.Elapsed)
		return nil
	})
}
