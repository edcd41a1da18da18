package common

import "time"

const InitialPositionFen = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

const (
	Empty int = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

const (
	MaxMoves = 256
)

// Move packs from (6 bits), to (6 bits), promotion piece (3 bits) and a
// castling flag. A castling move goes from the king to its own rook.
type Move uint16

const (
	MoveEmpty    Move = 0
	moveCastling Move = 1 << 15
)

func NewMove(from, to, promotion int) Move {
	return Move(from | to<<6 | promotion<<12)
}

func NewCastling(king, rook int) Move {
	return NewMove(king, rook, Empty) | moveCastling
}

func (m Move) IsCastling() bool {
	return m&moveCastling != 0
}

func (m Move) From() int {
	return int(m & 63)
}

func (m Move) To() int {
	return int(m>>6) & 63
}

func (m Move) Promotion() int {
	return int(m>>12) & 7
}

func (m Move) String() string {
	return m.LAN(false)
}

// LAN prints castling as king takes rook when chess960 is set and as the
// king's two-square step otherwise.
func (m Move) LAN(chess960 bool) string {
	if m == MoveEmpty {
		return "0000"
	}
	var to = m.To()
	if m.IsCastling() && !chess960 {
		to = castlingKingTarget(m.From(), to)
	}
	var s = SquareName(m.From()) + SquareName(to)
	if promotion := m.Promotion(); promotion != Empty {
		s += string(" pnbrqk"[promotion])
	}
	return s
}

// ParseMove decodes long algebraic notation. It does not check legality and
// never yields a castling move; see Position.ParseMoveLAN.
func ParseMove(s string) (Move, bool) {
	if len(s) != 4 && len(s) != 5 {
		return MoveEmpty, false
	}
	var from = ParseSquare(s[0:2])
	var to = ParseSquare(s[2:4])
	if from == SquareNone || to == SquareNone {
		return MoveEmpty, false
	}
	var promotion = Empty
	if len(s) == 5 {
		switch s[4] {
		case 'n':
			promotion = Knight
		case 'b':
			promotion = Bishop
		case 'r':
			promotion = Rook
		case 'q':
			promotion = Queen
		default:
			return MoveEmpty, false
		}
	}
	return NewMove(from, to, promotion), true
}

type LimitsType struct {
	Ponder         bool
	Infinite       bool
	WhiteTime      int
	BlackTime      int
	WhiteIncrement int
	BlackIncrement int
	MoveTime       int
	MovesToGo      int
	Depth          int
	Nodes          int
	Mate           int
	SearchMoves    []Move
}

// IsTimed reports whether the limits carry a wall-clock budget.
func (l *LimitsType) IsTimed() bool {
	return l.MoveTime > 0 || l.WhiteTime > 0 || l.BlackTime > 0
}

type SearchParams struct {
	Positions []*Position
	Limits    LimitsType
}

type SearchInfo struct {
	ID       string
	Score    UciScore
	Depth    int
	Nodes    int64
	Time     time.Duration
	HashFull int
	MainLine []Move
	BestMove Move
	Ponder   Move
}

type UciScore struct {
	Centipawns int
	Mate       int
}
