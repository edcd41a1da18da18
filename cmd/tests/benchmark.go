package main

import (
	"context"
	"fmt"

	"github.com/chesnaught/chesnaught/internal/tactic"
	"github.com/chesnaught/chesnaught/pkg/engine"
)

func runBenchmark(path string, depth, threads int) error {
	logger.Info().
		Str("path", path).
		Int("depth", depth).
		Int("threads", threads).
		Msg("benchmark started")
	defer logger.Info().Msg("benchmark finished")

	var tests, err = tactic.LoadEpdFile(path, logger)
	if err != nil {
		return err
	}
	return withEngine(threads, func(ctx context.Context, eng *engine.Engine) error {
		var result, err = tactic.Benchmark(ctx, tests, eng, depth, logger)
		if err != nil {
			return err
		}
		fmt.Println("Time", result.Elapsed)
		fmt.Println("Nodes", result.Nodes)
		fmt.Println("kNPS", result.KNPS())
		return nil
	})
}
