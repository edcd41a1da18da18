package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/chesnaught/chesnaught/pkg/common"
	"github.com/chesnaught/chesnaught/pkg/engine"
)

var (
	errUnknownCommand = errors.New("command not found")
	errBadArguments   = errors.New("invalid arguments")
)

type Engine interface {
	Go(ctx context.Context, params common.SearchParams) error
	Stop(ctx context.Context) error
	PonderHit(ctx context.Context) error
	Configure(ctx context.Context, options engine.Options) error
	Clear(ctx context.Context) error
	IsReady(ctx context.Context) error
	Reports() <-chan engine.Report
}

type Protocol struct {
	name      string
	author    string
	version   string
	options   []Option
	config    *engine.Options
	engine    Engine
	positions []*common.Position
	logger    zerolog.Logger
	debug     bool
	chess960  bool
	out       io.Writer
}

// New binds the protocol to an engine. Int options are expected to point into
// config, which is sent to the engine after every setoption. UCI_Chess960 is
// owned by the protocol: it only changes how castling is written.
func New(name, author, version string, eng Engine, config *engine.Options,
	options []Option, logger zerolog.Logger) *Protocol {
	var initPosition, err = common.NewPositionFromFEN(common.InitialPositionFen)
	if err != nil {
		panic(err)
	}
	var uci = &Protocol{
		name:      name,
		author:    author,
		version:   version,
		engine:    eng,
		config:    config,
		positions: []*common.Position{initPosition},
		logger:    logger.With().Str("component", "uci").Logger(),
	}
	uci.options = append(options[:len(options):len(options)],
		&BoolOption{Name: "UCI_Chess960", Value: &uci.chess960})
	return uci
}

// Run serves commands from in until quit, end of input or ctx cancellation.
func (uci *Protocol) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	uci.out = out
	var commands = make(chan string)

	go func() {
		defer close(commands)
		readCommands(ctx, in, commands)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-uci.engine.Reports():
			if err := uci.report(r); err != nil {
				return err
			}
		case commandLine, ok := <-commands:
			if !ok {
				//uci quit
				return nil
			}
			var err = uci.handle(ctx, commandLine)
			if err != nil {
				uci.logger.Warn().Err(err).Str("command", commandLine).Msg("command rejected")
				uci.printf("info string %v\n", err)
			}
		}
	}
}

func readCommands(ctx context.Context, in io.Reader, commands chan<- string) {
	var scanner = bufio.NewScanner(in)
	for scanner.Scan() {
		var commandLine = strings.TrimSpace(scanner.Text())
		if commandLine == "quit" {
			return
		}
		if commandLine == "" {
			continue
		}
		select {
		case commands <- commandLine:
		case <-ctx.Done():
			return
		}
	}
}

func (uci *Protocol) printf(format string, args ...interface{}) {
	fmt.Fprintf(uci.out, format, args...)
}

func (uci *Protocol) report(r engine.Report) error {
	switch r.Kind {
	case engine.ReportProgress:
		uci.printf("%v\n", searchInfoToUci(r.Info, uci.chess960))
	case engine.ReportBestMove:
		if r.Info.Depth > 0 || len(r.Info.MainLine) != 0 {
			uci.printf("%v\n", searchInfoToUci(r.Info, uci.chess960))
		}
		if r.Info.Ponder != common.MoveEmpty {
			uci.printf("bestmove %v ponder %v\n", r.Info.BestMove.LAN(uci.chess960), r.Info.Ponder.LAN(uci.chess960))
		} else {
			uci.printf("bestmove %v\n", r.Info.BestMove.LAN(uci.chess960))
		}
	case engine.ReportReady:
		uci.printf("readyok\n")
	case engine.ReportInfo:
		uci.printf("info string %v\n", r.Message)
	case engine.ReportFatal:
		uci.printf("info string %v\n", r.Message)
		return fmt.Errorf("engine failed: %w", r.Err)
	}
	return nil
}

func (uci *Protocol) handle(ctx context.Context, commandLine string) error {
	var fields = strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil
	}
	var commandName = fields[0]
	fields = fields[1:]

	var h func(ctx context.Context, fields []string) error

	switch commandName {
	case "uci":
		h = uci.uciCommand
	case "debug":
		h = uci.debugCommand
	case "setoption":
		h = uci.setOptionCommand
	case "register":
		return nil
	case "isready":
		h = uci.isReadyCommand
	case "position":
		h = uci.positionCommand
	case "go":
		h = uci.goCommand
	case "stop":
		h = uci.stopCommand
	case "ucinewgame":
		h = uci.uciNewGameCommand
	case "ponderhit":
		h = uci.ponderhitCommand
	}

	if h == nil {
		return fmt.Errorf("%v: %w", commandName, errUnknownCommand)
	}

	return h(ctx, fields)
}

func (uci *Protocol) uciCommand(ctx context.Context, fields []string) error {
	uci.printf("id name %s %s\n", uci.name, uci.version)
	uci.printf("id author %s\n", uci.author)
	for _, option := range uci.options {
		uci.printf("%v\n", option.UciString())
	}
	uci.printf("uciok\n")
	return nil
}

func (uci *Protocol) debugCommand(ctx context.Context, fields []string) error {
	if len(fields) != 1 || fields[0] != "on" && fields[0] != "off" {
		return fmt.Errorf("debug: %w", errBadArguments)
	}
	uci.debug = fields[0] == "on"
	if uci.debug {
		uci.logger = uci.logger.Level(zerolog.DebugLevel)
	} else {
		uci.logger = uci.logger.Level(zerolog.InfoLevel)
	}
	return nil
}

func (uci *Protocol) setOptionCommand(ctx context.Context, fields []string) error {
	var nameIndex = findIndexString(fields, "name")
	if nameIndex != 0 || len(fields) < 2 {
		return fmt.Errorf("setoption: %w", errBadArguments)
	}
	var valueIndex = findIndexString(fields, "value")
	var name, value string
	if valueIndex == -1 {
		name = strings.Join(fields[1:], " ")
	} else {
		name = strings.Join(fields[1:valueIndex], " ")
		value = strings.Join(fields[valueIndex+1:], " ")
	}
	var option, found = lo.Find(uci.options, func(o Option) bool {
		return strings.EqualFold(o.UciName(), name)
	})
	if !found {
		return fmt.Errorf("setoption %v: unhandled option", name)
	}
	if _, button := option.(*ButtonOption); button {
		return option.Set(value)
	}
	var prev = *uci.config
	if err := option.Set(value); err != nil {
		return fmt.Errorf("setoption %v: %w", name, err)
	}
	if err := uci.engine.Configure(ctx, *uci.config); err != nil {
		*uci.config = prev
		return fmt.Errorf("setoption %v: %w", name, err)
	}
	uci.logger.Debug().Str("name", name).Str("value", value).Msg("option set")
	return nil
}

func (uci *Protocol) isReadyCommand(ctx context.Context, fields []string) error {
	return uci.engine.IsReady(ctx)
}

func (uci *Protocol) positionCommand(ctx context.Context, fields []string) error {
	var args = fields
	if len(args) == 0 {
		return fmt.Errorf("position: %w", errBadArguments)
	}
	var token = args[0]
	var fen string
	var movesIndex = findIndexString(args, "moves")
	if token == "startpos" {
		fen = common.InitialPositionFen
	} else if token == "fen" {
		if movesIndex == -1 {
			fen = strings.Join(args[1:], " ")
		} else {
			fen = strings.Join(args[1:movesIndex], " ")
		}
	} else {
		return errors.New("unknown position command")
	}
	var p, err = common.NewPositionFromFEN(fen)
	if err != nil {
		return err
	}
	var positions = []*common.Position{p}
	if movesIndex >= 0 && movesIndex+1 < len(args) {
		for _, smove := range args[movesIndex+1:] {
			var last = positions[len(positions)-1]
			var move, ok = last.ParseMoveLAN(smove, uci.chess960)
			if !ok {
				return fmt.Errorf("position: move %v: %w", smove, common.ErrIllegalMove)
			}
			var newPos, _ = last.MakeMove(move)
			positions = append(positions, newPos)
		}
	}
	uci.positions = positions
	return nil
}

func (uci *Protocol) goCommand(ctx context.Context, fields []string) error {
	var limits, err = parseLimits(fields)
	if err != nil {
		return err
	}
	var p = uci.positions[len(uci.positions)-1]
	for i, m := range limits.SearchMoves {
		var legal, ok = p.ParseMoveLAN(m.String(), uci.chess960)
		if !ok {
			return fmt.Errorf("go searchmoves %v: %w", m, common.ErrIllegalMove)
		}
		limits.SearchMoves[i] = legal
	}
	return uci.engine.Go(ctx, common.SearchParams{
		Positions: uci.positions,
		Limits:    limits,
	})
}

func (uci *Protocol) stopCommand(ctx context.Context, fields []string) error {
	return uci.engine.Stop(ctx)
}

func (uci *Protocol) uciNewGameCommand(ctx context.Context, fields []string) error {
	return uci.engine.Clear(ctx)
}

func (uci *Protocol) ponderhitCommand(ctx context.Context, fields []string) error {
	return uci.engine.PonderHit(ctx)
}

func searchInfoToUci(si common.SearchInfo, chess960 bool) string {
	var sb = &strings.Builder{}
	fmt.Fprintf(sb, "info depth %v", si.Depth)
	if si.Score.Mate != 0 {
		fmt.Fprintf(sb, " score mate %v", si.Score.Mate)
	} else {
		fmt.Fprintf(sb, " score cp %v", si.Score.Centipawns)
	}
	var timeMs = si.Time.Milliseconds()
	var nps = si.Nodes * 1000 / (timeMs + 1)
	fmt.Fprintf(sb, " nodes %v time %v nps %v hashfull %v", si.Nodes, timeMs, nps, si.HashFull)
	if len(si.MainLine) != 0 {
		fmt.Fprintf(sb, " pv")
		for _, move := range si.MainLine {
			sb.WriteString(" ")
			sb.WriteString(move.LAN(chess960))
		}
	}
	return sb.String()
}

var goKeywords = []string{"ponder", "wtime", "btime", "winc", "binc", "movestogo",
	"depth", "nodes", "mate", "movetime", "infinite", "searchmoves"}

func parseLimits(args []string) (result common.LimitsType, err error) {
	var intArg = func(i int, v *int) error {
		if i+1 >= len(args) {
			return fmt.Errorf("go %v: %w", args[i], errBadArguments)
		}
		var n, err = strconv.Atoi(args[i+1])
		if err != nil || n < 0 {
			return fmt.Errorf("go %v %v: %w", args[i], args[i+1], errBadArguments)
		}
		*v = n
		return nil
	}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "ponder":
			result.Ponder = true
		case "wtime":
			err = intArg(i, &result.WhiteTime)
			i++
		case "btime":
			err = intArg(i, &result.BlackTime)
			i++
		case "winc":
			err = intArg(i, &result.WhiteIncrement)
			i++
		case "binc":
			err = intArg(i, &result.BlackIncrement)
			i++
		case "movestogo":
			err = intArg(i, &result.MovesToGo)
			i++
		case "depth":
			err = intArg(i, &result.Depth)
			i++
		case "nodes":
			err = intArg(i, &result.Nodes)
			i++
		case "mate":
			err = intArg(i, &result.Mate)
			i++
		case "movetime":
			err = intArg(i, &result.MoveTime)
			i++
		case "infinite":
			result.Infinite = true
		case "searchmoves":
			for i+1 < len(args) && !lo.Contains(goKeywords, args[i+1]) {
				var m, ok = common.ParseMove(args[i+1])
				if !ok {
					return result, fmt.Errorf("go searchmoves %v: %w", args[i+1], errBadArguments)
				}
				result.SearchMoves = append(result.SearchMoves, m)
				i++
			}
		default:
			err = fmt.Errorf("go %v: %w", args[i], errBadArguments)
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func findIndexString(slice []string, value string) int {
	for p, v := range slice {
		if v == value {
			return p
		}
	}
	return -1
}
