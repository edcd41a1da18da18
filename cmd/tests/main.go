package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chesnaught/chesnaught/internal/shell"
	"github.com/chesnaught/chesnaught/pkg/engine"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	var err = run()
	if err != nil {
		logger.Error().Err(err).Msg("tests failed")
		os.Exit(1)
	}
}

func run() error {
	var tacticTestsFilepath = mapPath("~/chess/tests/tests.epd")

	var cli = NewCli()
	cli.AddCommand("benchmark", func() error {
		var path = cli.Params().GetString("testpath", tacticTestsFilepath)
		var depth = cli.Params().GetInt("depth", 10)
		var threads = cli.Params().GetInt("threads", 1)
		return runBenchmark(path, depth, threads)
	})
	cli.AddCommand("tactic", func() error {
		var path = cli.Params().GetString("testpath", tacticTestsFilepath)
		var moveTime = cli.Params().GetInt("movetime", 3)
		var threads = cli.Params().GetInt("threads", 1)
		return runSolveTactic(path, time.Duration(moveTime)*time.Second, threads)
	})
	cli.AddCommand("play", func() error {
		var moveTime = cli.Params().GetInt("movetime", 1000)
		var threads = cli.Params().GetInt("threads", 1)
		return withEngine(threads, func(ctx context.Context, eng *engine.Engine) error {
			return shell.New(eng, time.Duration(moveTime)*time.Millisecond, os.Stdout).Run(ctx, os.Stdin)
		})
	})
	return cli.Execute()
}

// mapPath expands a leading ~/ to the home directory.
func mapPath(path string) string {
	var rest, ok = strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	var home, err = os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

// withEngine runs f against a fresh engine and stops the engine afterwards.
func withEngine(threads int, f func(ctx context.Context, eng *engine.Engine) error) error {
	var options = engine.NewOptions()
	options.Hash = 128
	options.Threads = threads
	if err := options.Validate(); err != nil {
		return err
	}
	var eng = engine.NewEngine(options, logger.Level(zerolog.WarnLevel))

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	var g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return f(gctx, eng)
	})
	return g.Wait()
}
