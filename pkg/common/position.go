package common

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/notnil/chess"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	errFenFields   = errors.New("fen needs 4 to 6 fields")
)

// Position is an immutable snapshot. Legal moves are generated once, when the
// position is built, so a Position can be shared between search threads.
// Castling is handled here; the rules library never sees castling rights.
type Position struct {
	Key       uint64
	WhiteMove bool
	Rule50    int
	LastMove  Move

	board    [64]int8 // +piece for white, -piece for black
	castling castlingRights
	inCheck  bool
	checking int
	moves    []Move
	native   []*chess.Move // nil for castling moves
	pos      *chess.Position
}

// NewPositionFromFEN accepts standard, X-FEN and Shredder castling fields.
// Missing move counters default to "0 1".
func NewPositionFromFEN(fen string) (*Position, error) {
	var fields = strings.Fields(fen)
	if len(fields) < 4 || len(fields) > 6 {
		return nil, fmt.Errorf("parse fen %q: %w", fen, errFenFields)
	}
	if len(fields) == 4 {
		fields = append(fields, "0")
	}
	if len(fields) == 5 {
		fields = append(fields, "1")
	}
	var castlingField = fields[2]
	fields[2] = "-"
	var native, err = nativePosition(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	var board = nativeBoard(native)
	rights, err := parseCastling(castlingField, &board)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return newPosition(native, MoveEmpty, rights), nil
}

func nativePosition(fen string) (*chess.Position, error) {
	var option, err = chess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return chess.NewGame(option).Position(), nil
}

func nativeBoard(native *chess.Position) [64]int8 {
	var result [64]int8
	var board = native.Board()
	for sq := 0; sq < 64; sq++ {
		var piece = board.Piece(chess.Square(sq))
		if piece == chess.NoPiece {
			continue
		}
		var pt = int8(pieceFromNative(piece.Type()))
		if piece.Color() == chess.White {
			result[sq] = pt
		} else {
			result[sq] = -pt
		}
	}
	return result
}

func newPosition(native *chess.Position, lastMove Move, castling castlingRights) *Position {
	var p = &Position{
		WhiteMove: native.Turn() == chess.White,
		Rule50:    native.HalfMoveClock(),
		LastMove:  lastMove,
		board:     nativeBoard(native),
		castling:  castling,
		pos:       native,
	}
	p.native = native.ValidMoves()
	p.moves = make([]Move, len(p.native), len(p.native)+2)
	for i, m := range p.native {
		p.moves[i] = NewMove(int(m.S1()), int(m.S2()), pieceFromNative(m.Promo()))
		if m.HasTag(chess.Check) {
			p.checking++
		}
	}
	var king = p.kingSquare(p.WhiteMove)
	p.inCheck = king != SquareNone && isAttacked(&p.board, king, !p.WhiteMove)
	p.genCastling()
	p.Key = p.computeKey()
	return p
}

func pieceFromNative(pt chess.PieceType) int {
	switch pt {
	case chess.Pawn:
		return Pawn
	case chess.Knight:
		return Knight
	case chess.Bishop:
		return Bishop
	case chess.Rook:
		return Rook
	case chess.Queen:
		return Queen
	case chess.King:
		return King
	}
	return Empty
}

func (p *Position) String() string {
	return p.FEN()
}

// FEN writes castling rights in X-FEN form.
func (p *Position) FEN() string {
	var fields = strings.Fields(p.pos.String())
	fields[2] = formatCastling(p.castling, &p.board)
	return strings.Join(fields, " ")
}

// Moves returns the legal moves in generation order. The slice is shared and
// must not be modified.
func (p *Position) Moves() []Move {
	return p.moves
}

// MakeMoveAt applies the i-th legal move.
func (p *Position) MakeMoveAt(i int) *Position {
	var m = p.moves[i]
	if m.IsCastling() {
		return p.makeCastling(m)
	}
	var castling = p.castling.after(m, p.MovingPiece(m), p.WhiteMove)
	return newPosition(p.pos.Update(p.native[i]), m, castling)
}

func (p *Position) MakeMove(move Move) (*Position, bool) {
	var i = p.IndexOf(move)
	if i < 0 {
		return nil, false
	}
	return p.MakeMoveAt(i), true
}

func (p *Position) MakeMoveLAN(lan string) (*Position, bool) {
	var move, ok = p.ParseMoveLAN(lan, false)
	if !ok {
		return nil, false
	}
	return p.MakeMove(move)
}

// ParseMoveLAN finds the legal move written in long algebraic notation.
// Castling is king takes rook in chess960 mode; otherwise both that and the
// king's two-square step are accepted.
func (p *Position) ParseMoveLAN(lan string, chess960 bool) (Move, bool) {
	var parsed, ok = ParseMove(lan)
	if !ok {
		return MoveEmpty, false
	}
	if p.IndexOf(parsed) >= 0 {
		return parsed, true
	}
	if parsed.Promotion() != Empty {
		return MoveEmpty, false
	}
	for _, m := range p.moves {
		if !m.IsCastling() || m.From() != parsed.From() {
			continue
		}
		if m.To() == parsed.To() ||
			!chess960 && castlingKingTarget(m.From(), m.To()) == parsed.To() {
			return m, true
		}
	}
	return MoveEmpty, false
}

// ParseMoveSAN decodes standard algebraic notation. Only legal moves decode.
func (p *Position) ParseMoveSAN(san string) (Move, bool) {
	switch strings.TrimRight(strings.ReplaceAll(san, "0", "O"), "+#!?") {
	case "O-O":
		return p.findCastling(true)
	case "O-O-O":
		return p.findCastling(false)
	}
	var native, err = chess.AlgebraicNotation{}.Decode(p.pos, san)
	if err != nil {
		return MoveEmpty, false
	}
	var move = NewMove(int(native.S1()), int(native.S2()), pieceFromNative(native.Promo()))
	if p.IndexOf(move) < 0 {
		return MoveEmpty, false
	}
	return move, true
}

func (p *Position) findCastling(kingSide bool) (Move, bool) {
	for _, m := range p.moves {
		if m.IsCastling() && (File(m.To()) > File(m.From())) == kingSide {
			return m, true
		}
	}
	return MoveEmpty, false
}

func (p *Position) IndexOf(move Move) int {
	for i, m := range p.moves {
		if m == move {
			return i
		}
	}
	return -1
}

func (p *Position) IsCheck() bool {
	return p.inCheck
}

// CheckingMoves is the number of legal moves that give check.
func (p *Position) CheckingMoves() int {
	return p.checking
}

func (p *Position) IsCheckmate() bool {
	return len(p.moves) == 0 && p.inCheck
}

func (p *Position) IsStalemate() bool {
	return len(p.moves) == 0 && !p.inCheck
}

func (p *Position) GetPieceTypeAndSide(sq int) (pieceType int, side bool) {
	var v = p.board[sq]
	if v < 0 {
		return int(-v), false
	}
	return int(v), v != 0
}

func (p *Position) WhatPiece(sq int) int {
	var pt, _ = p.GetPieceTypeAndSide(sq)
	return pt
}

func (p *Position) MovingPiece(m Move) int {
	return p.WhatPiece(m.From())
}

// CapturedPiece includes en passant captures. Castling captures nothing.
func (p *Position) CapturedPiece(m Move) int {
	if m.IsCastling() {
		return Empty
	}
	var captured = p.WhatPiece(m.To())
	if captured == Empty && p.MovingPiece(m) == Pawn && File(m.From()) != File(m.To()) {
		return Pawn
	}
	return captured
}

func (p *Position) IsCaptureOrPromotion(m Move) bool {
	return p.CapturedPiece(m) != Empty || m.Promotion() != Empty
}

// IsMaterialDraw reports positions where neither side can mate.
func (p *Position) IsMaterialDraw() bool {
	var minors [2]int
	for sq := 0; sq < 64; sq++ {
		var pt, side = p.GetPieceTypeAndSide(sq)
		switch pt {
		case Pawn, Rook, Queen:
			return false
		case Knight, Bishop:
			minors[let(side, 0, 1)]++
		}
	}
	return minors[0] <= 1 && minors[1] <= 1
}

func (p *Position) kingSquare(side bool) int {
	return kingOnBoard(&p.board, side)
}

func kingOnBoard(board *[64]int8, side bool) int {
	var king = int8(let(side, King, -King))
	for sq := 0; sq < 64; sq++ {
		if board[sq] == king {
			return sq
		}
	}
	return SquareNone
}

var (
	knightSteps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
)

func pieceAt(board *[64]int8, file, rank int) (int, bool) {
	var v = board[MakeSquare(file, rank)]
	if v < 0 {
		return int(-v), false
	}
	return int(v), v != 0
}

// isAttacked reports whether side attacks sq on the given board.
func isAttacked(board *[64]int8, sq int, side bool) bool {
	var file, rank = File(sq), Rank(sq)

	var pawnRank = rank - let(side, 1, -1)
	for _, df := range [2]int{-1, 1} {
		if isOnBoard(file+df, pawnRank) {
			if pt, s := pieceAt(board, file+df, pawnRank); pt == Pawn && s == side {
				return true
			}
		}
	}
	for _, step := range knightSteps {
		if isOnBoard(file+step[0], rank+step[1]) {
			if pt, s := pieceAt(board, file+step[0], rank+step[1]); pt == Knight && s == side {
				return true
			}
		}
	}
	for i, step := range kingSteps {
		if isOnBoard(file+step[0], rank+step[1]) {
			if pt, s := pieceAt(board, file+step[0], rank+step[1]); pt == King && s == side {
				return true
			}
		}
		var diagonal = i%2 == 1
		for f, r := file+step[0], rank+step[1]; isOnBoard(f, r); f, r = f+step[0], r+step[1] {
			var pt, s = pieceAt(board, f, r)
			if pt == Empty {
				continue
			}
			if s == side && (pt == Queen || diagonal && pt == Bishop || !diagonal && pt == Rook) {
				return true
			}
			break
		}
	}
	return false
}

var (
	sideKey        uint64
	enpassantKey   [8]uint64
	castlingKey    [4]uint64
	pieceSquareKey [13 * 64]uint64
)

func (p *Position) computeKey() uint64 {
	var result = uint64(0)
	if p.WhiteMove {
		result ^= sideKey
	}
	for i, rook := range p.castling {
		if rook != SquareNone {
			result ^= castlingKey[i]
		}
	}
	if ep := p.pos.EnPassantSquare(); ep != chess.NoSquare {
		result ^= enpassantKey[File(int(ep))]
	}
	for sq := 0; sq < 64; sq++ {
		if p.board[sq] != 0 {
			result ^= pieceSquareKey[(int(p.board[sq])+6)*64+sq]
		}
	}
	return result
}

func init() {
	var r = rand.New(rand.NewSource(0))
	sideKey = r.Uint64()
	for i := range enpassantKey {
		enpassantKey[i] = r.Uint64()
	}
	for i := range castlingKey {
		castlingKey[i] = r.Uint64()
	}
	for i := range pieceSquareKey {
		pieceSquareKey[i] = r.Uint64()
	}
}
