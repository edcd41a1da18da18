package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chesnaught/chesnaught/pkg/engine"
	"github.com/chesnaught/chesnaught/pkg/uci"
)

/*
Chesnaught
This program is free software: you can redistribute it and/or modify it under the terms of the GNU General Public License as published by the Free Software Foundation, either version 3 of the License, or (at your option) any later version.
This program is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for more details.
You should have received a copy of the GNU General Public License along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

const (
	name   = "Chesnaught"
	author = "Chesnaught developers"
)

var (
	versionName   = "dev"
	gitRevision   = "(null)"
	flgThreads    int
	flgHash       int
	flgLogLevel   string
	flgCpuProfile string
)

func main() {
	flag.IntVar(&flgThreads, "threads", 1, "number of search threads")
	flag.IntVar(&flgHash, "hash", 16, "transposition table size in MiB")
	flag.StringVar(&flgLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&flgCpuProfile, "cpuprofile", "", "directory for a CPU profile")
	flag.Parse()

	var level, err = zerolog.ParseLevel(flgLogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()

	logger.Info().
		Str("version", versionName).
		Str("revision", gitRevision).
		Str("runtime", runtime.Version()).
		Str("goarch", runtime.GOARCH).
		Str("goos", runtime.GOOS).
		Int("cpus", runtime.NumCPU()).
		Msg(name)

	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("engine failed")
		os.Exit(1)
	}
}

func run(logger zerolog.Logger) error {
	if flgCpuProfile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(flgCpuProfile), profile.Quiet).Stop()
	}

	var config = engine.NewOptions()
	config.Threads = flgThreads
	config.Hash = flgHash
	if err := config.Validate(); err != nil {
		return err
	}

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	var eng = engine.NewEngine(config, logger)
	var ponder bool
	var protocol = uci.New(name, author, versionName, eng, &config,
		[]uci.Option{
			&uci.IntOption{Name: "Hash", Min: engine.MinHash, Max: engine.MaxHash, Value: &config.Hash},
			&uci.IntOption{Name: "Threads", Min: engine.MinThreads, Max: engine.MaxThreads, Value: &config.Threads},
			&uci.BoolOption{Name: "Ponder", Value: &ponder},
			&uci.ButtonOption{Name: "Clear Hash", OnPress: func() error {
				return eng.Clear(ctx)
			}},
		}, logger)

	var g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		var err = protocol.Run(gctx, os.Stdin, os.Stdout)
		if st, statsErr := eng.Stats(gctx); statsErr == nil {
			logger.Info().
				Uint64("searches", st.Generation).
				Int("tableBytes", st.TableBytes).
				Int64("treesReleased", st.TreesReleased).
				Int64("nodesReleased", st.NodesReleased).
				Msg("session finished")
		}
		return err
	})
	return g.Wait()
}
