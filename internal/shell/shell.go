package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/chesnaught/chesnaught/internal/tactic"
	"github.com/chesnaught/chesnaught/pkg/common"
)

const (
	whiteKing   = "♔"
	whiteQueen  = "♕"
	whiteRook   = "♖"
	whiteBishop = "♗"
	whiteKnight = "♘"
	whitePawn   = "♙"
	blackKing   = "♚"
	blackQueen  = "♛"
	blackRook   = "♜"
	blackBishop = "♝"
	blackKnight = "♞"
	blackPawn   = "♟"
)

var chessSymbols = [2][7]string{
	{" ", whitePawn, whiteKnight, whiteBishop, whiteRook, whiteQueen, whiteKing},
	{" ", blackPawn, blackKnight, blackBishop, blackRook, blackQueen, blackKing},
}

const (
	colorLight       = "\x1b[30;107m"
	colorDark        = "\x1b[30;47m"
	colorHighlighted = "\x1b[30;103m"
	colorReset       = "\x1b[0m"
)

var helpLines = []string{
	"help          show this text",
	"flip          turn the board around",
	"restart       start a new game",
	"quit          leave",
	"import <fen>  set up a position",
	"fen           print the current position",
	"go            let the engine play a move",
	"<square>      show where the piece on a square can go, e.g. e2",
	"<move>        play a move, e.g. e2e4 or e7e8q",
}

// Shell is an interactive board for playing against the engine from a
// terminal. Moves are typed in long algebraic notation.
type Shell struct {
	eng       tactic.Engine
	moveTime  time.Duration
	out       io.Writer
	positions []*common.Position
	flipped   bool
	highlight []int
	helped    bool
}

func New(eng tactic.Engine, moveTime time.Duration, out io.Writer) *Shell {
	var s = &Shell{
		eng:      eng,
		moveTime: moveTime,
		out:      out,
	}
	s.restart()
	return s
}

func (s *Shell) restart() {
	var p, err = common.NewPositionFromFEN(common.InitialPositionFen)
	if err != nil {
		panic(err)
	}
	s.positions = []*common.Position{p}
	s.highlight = nil
}

func (s *Shell) current() *common.Position {
	return s.positions[len(s.positions)-1]
}

// Run reads commands until quit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	s.show()
	var scanner = bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		var quit, err = s.execute(ctx, scanner.Text())
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

func (s *Shell) execute(ctx context.Context, line string) (quit bool, err error) {
	var fields = strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	s.highlight = nil
	switch fields[0] {
	case "help":
		for _, l := range helpLines {
			fmt.Fprintln(s.out, l)
		}
		s.helped = true
		return false, nil
	case "quit", "exit":
		return true, nil
	case "flip":
		s.flipped = !s.flipped
	case "restart":
		s.restart()
	case "fen":
		fmt.Fprintln(s.out, s.current().FEN())
		return false, nil
	case "import":
		var p, err = common.NewPositionFromFEN(strings.Join(fields[1:], " "))
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return false, nil
		}
		s.positions = []*common.Position{p}
	case "go":
		if err := s.enginePlay(ctx); err != nil {
			return false, err
		}
	default:
		var p = s.current()
		if sq := common.ParseSquare(fields[0]); sq != common.SquareNone {
			s.highlight = destinations(p, sq)
			break
		}
		var child, ok = p.MakeMoveLAN(fields[0])
		if !ok {
			fmt.Fprintf(s.out, "Error: %v is an invalid move\n", fields[0])
			return false, nil
		}
		s.positions = append(s.positions, child)
	}
	s.show()
	return false, nil
}

func (s *Shell) enginePlay(ctx context.Context) error {
	if s.gameOver() != "" {
		fmt.Fprintln(s.out, "Error: the game is over")
		return nil
	}
	var info, err = tactic.Search(ctx, s.eng, common.SearchParams{
		Positions: s.positions,
		Limits:    common.LimitsType{MoveTime: int(s.moveTime.Milliseconds())},
	})
	if err != nil {
		return err
	}
	var child, ok = s.current().MakeMove(info.BestMove)
	if !ok {
		return fmt.Errorf("engine played %v in %v", info.BestMove, s.current())
	}
	fmt.Fprintf(s.out, "Engine plays %v\n", info.BestMove)
	s.positions = append(s.positions, child)
	return nil
}

// destinations lists the target squares of the legal moves from sq.
func destinations(p *common.Position, sq int) []int {
	var moves = lo.Filter(p.Moves(), func(m common.Move, _ int) bool {
		return m.From() == sq
	})
	return lo.Uniq(lo.Map(moves, func(m common.Move, _ int) int {
		// castles are shown on the square the king lands on
		return common.ParseSquare(m.LAN(false)[2:4])
	}))
}

func (s *Shell) gameOver() string {
	var p = s.current()
	switch {
	case p.IsCheckmate():
		return fmt.Sprintf("Checkmate, %v wins", sideName(!p.WhiteMove))
	case p.IsStalemate():
		return "Stalemate"
	case p.IsMaterialDraw():
		return "Draw by insufficient material"
	case p.Rule50 >= 100:
		return "Draw by the fifty-move rule"
	case s.repetitions() >= 3:
		return "Draw by threefold repetition"
	}
	return ""
}

func (s *Shell) repetitions() int {
	var key = s.current().Key
	return lo.CountBy(s.positions, func(p *common.Position) bool {
		return p.Key == key
	})
}

func sideName(white bool) string {
	if white {
		return "White"
	}
	return "Black"
}

func (s *Shell) show() {
	s.printBoard()
	if over := s.gameOver(); over != "" {
		fmt.Fprintln(s.out, over)
	} else {
		fmt.Fprintf(s.out, "%v plays\n", sideName(s.current().WhiteMove))
	}
	if !s.helped {
		fmt.Fprintln(s.out, "type `help` for instructions")
	}
}

func (s *Shell) printBoard() {
	var p = s.current()
	var sb strings.Builder
	for row := 0; row < 8; row++ {
		var rank = common.Rank8 - row
		if s.flipped {
			rank = common.Rank1 + row
		}
		for col := 0; col < 8; col++ {
			var file = common.FileA + col
			if s.flipped {
				file = common.FileH - col
			}
			var sq = common.MakeSquare(file, rank)
			var color = colorDark
			if (file+rank)%2 == 1 {
				color = colorLight
			}
			if lo.Contains(s.highlight, sq) {
				color = colorHighlighted
			}
			var pt, white = p.GetPieceTypeAndSide(sq)
			var symbol = chessSymbols[0][pt]
			if !white {
				symbol = chessSymbols[1][pt]
			}
			sb.WriteString(color + " " + symbol + " " + colorReset)
		}
		fmt.Fprintf(&sb, " %v\n", rank+1)
	}
	if s.flipped {
		sb.WriteString(" h  g  f  e  d  c  b  a\n")
	} else {
		sb.WriteString(" a  b  c  d  e  f  g  h\n")
	}
	fmt.Fprint(s.out, sb.String())
}
