package common

import (
	"fmt"
	"strconv"
	"strings"
)

// Castling rights are kept as the square of the rook each right refers to,
// so standard and non-standard setups share one code path.
const (
	whiteKingSide = iota
	whiteQueenSide
	blackKingSide
	blackQueenSide
)

type castlingRights [4]int

var noCastling = castlingRights{SquareNone, SquareNone, SquareNone, SquareNone}

func castlingKingTarget(king, rook int) int {
	return MakeSquare(let(File(rook) > File(king), FileG, FileC), Rank(king))
}

func castlingRookTarget(king, rook int) int {
	return MakeSquare(let(File(rook) > File(king), FileF, FileD), Rank(king))
}

// parseCastling reads standard, X-FEN and Shredder castling fields. Rights
// without a matching king and rook on the back rank are dropped.
func parseCastling(s string, board *[64]int8) (castlingRights, error) {
	var result = noCastling
	if s == "-" {
		return result, nil
	}
	for _, ch := range s {
		var white = ch >= 'A' && ch <= 'Z'
		var rank = let(white, Rank1, Rank8)
		var rook = int8(let(white, Rook, -Rook))
		var king = findOnRank(board, rank, int8(let(white, King, -King)), FileA, FileH)
		var lower = ch | 0x20
		var sq = SquareNone
		switch {
		case lower == 'k':
			if king != SquareNone {
				sq = findOnRank(board, rank, rook, FileH, File(king)+1)
			}
		case lower == 'q':
			if king != SquareNone {
				sq = findOnRank(board, rank, rook, FileA, File(king)-1)
			}
		case lower >= 'a' && lower <= 'h':
			sq = MakeSquare(int(lower-'a'), rank)
			if board[sq] != rook {
				sq = SquareNone
			}
		default:
			return noCastling, fmt.Errorf("castling rights %q", s)
		}
		if sq == SquareNone || king == SquareNone || sq == king {
			continue
		}
		var index = let(File(sq) > File(king), whiteKingSide, whiteQueenSide)
		if !white {
			index += blackKingSide
		}
		result[index] = sq
	}
	return result, nil
}

// findOnRank scans files from..to inclusive in either direction.
func findOnRank(board *[64]int8, rank int, piece int8, from, to int) int {
	var step = let(to >= from, 1, -1)
	for file := from; file != to+step; file += step {
		if file < FileA || file > FileH {
			break
		}
		if sq := MakeSquare(file, rank); board[sq] == piece {
			return sq
		}
	}
	return SquareNone
}

// formatCastling writes X-FEN: KQkq for outermost rooks, file letters otherwise.
func formatCastling(rights castlingRights, board *[64]int8) string {
	var sb strings.Builder
	for index, sq := range rights {
		if sq == SquareNone {
			continue
		}
		var white = index < blackKingSide
		var kingSide = index == whiteKingSide || index == blackKingSide
		var rook = board[sq]
		var outer = SquareNone
		if kingSide {
			outer = findOnRank(board, Rank(sq), rook, FileH, File(sq))
		} else {
			outer = findOnRank(board, Rank(sq), rook, FileA, File(sq))
		}
		var ch byte
		if outer == sq {
			ch = byte(let(kingSide, 'k', 'q'))
		} else {
			ch = fileNames[File(sq)]
		}
		if white {
			ch -= 0x20
		}
		sb.WriteByte(ch)
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}

// after returns the rights left once m is played by the given side.
func (rights castlingRights) after(m Move, movingPiece int, white bool) castlingRights {
	if movingPiece == King {
		var base = let(white, whiteKingSide, blackKingSide)
		rights[base] = SquareNone
		rights[base+1] = SquareNone
	}
	for i, sq := range rights {
		if sq == m.From() || sq == m.To() {
			rights[i] = SquareNone
		}
	}
	return rights
}

// castlingBoard plays a castling move on a copy of the board. It reports
// false when the path between king, rook and their targets is occupied.
func castlingBoard(board *[64]int8, m Move) ([64]int8, bool) {
	var king, rook = m.From(), m.To()
	var kingTarget = castlingKingTarget(king, rook)
	var rookTarget = castlingRookTarget(king, rook)
	var lo = Min(Min(File(king), File(rook)), Min(File(kingTarget), File(rookTarget)))
	var hi = Max(Max(File(king), File(rook)), Max(File(kingTarget), File(rookTarget)))
	for file := lo; file <= hi; file++ {
		var sq = MakeSquare(file, Rank(king))
		if sq != king && sq != rook && board[sq] != 0 {
			return *board, false
		}
	}
	var result = *board
	var kingPiece, rookPiece = result[king], result[rook]
	result[king] = 0
	result[rook] = 0
	result[kingTarget] = kingPiece
	result[rookTarget] = rookPiece
	return result, true
}

// genCastling appends legal castling moves. The king may not be in check,
// pass through an attacked square or land on one.
func (p *Position) genCastling() {
	if p.inCheck {
		return
	}
	var side = p.WhiteMove
	var base = let(side, whiteKingSide, blackKingSide)
	var king = p.kingSquare(side)
	if king == SquareNone {
		return
	}
	for index := base; index < base+2; index++ {
		var rook = p.castling[index]
		if rook == SquareNone || Rank(rook) != Rank(king) ||
			p.board[rook] != int8(let(side, Rook, -Rook)) {
			continue
		}
		var m = NewCastling(king, rook)
		var after, ok = castlingBoard(&p.board, m)
		if !ok {
			continue
		}
		var target = castlingKingTarget(king, rook)
		for file := Min(File(king), File(target)); ok && file <= Max(File(king), File(target)); file++ {
			var sq = MakeSquare(file, Rank(king))
			if sq != king && sq != target {
				ok = !isAttacked(&p.board, sq, !side)
			}
		}
		if !ok || isAttacked(&after, target, !side) {
			continue
		}
		p.moves = append(p.moves, m)
		p.native = append(p.native, nil)
		if enemy := kingOnBoard(&after, !side); enemy != SquareNone && isAttacked(&after, enemy, side) {
			p.checking++
		}
	}
}

// makeCastling builds the child position by hand; the rules library sees
// every position without castling rights.
func (p *Position) makeCastling(m Move) *Position {
	var board, _ = castlingBoard(&p.board, m)
	var fields = strings.Fields(p.pos.String())
	var fullMove = fields[5]
	if !p.WhiteMove {
		var n, _ = strconv.Atoi(fullMove)
		fullMove = strconv.Itoa(n + 1)
	}
	var fen = strings.Join([]string{
		boardPlacement(&board),
		let2(p.WhiteMove, "b", "w"),
		"-",
		"-",
		strconv.Itoa(p.Rule50 + 1),
		fullMove,
	}, " ")
	var native, err = nativePosition(fen)
	if err != nil {
		panic(fmt.Errorf("castling %v in %v: %w", m, p, err))
	}
	return newPosition(native, m, p.castling.after(m, King, p.WhiteMove))
}

func boardPlacement(board *[64]int8) string {
	var sb strings.Builder
	for rank := Rank8; rank >= Rank1; rank-- {
		var empty = 0
		for file := FileA; file <= FileH; file++ {
			var v = board[MakeSquare(file, rank)]
			if v == 0 {
				empty++
				continue
			}
			if empty != 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			var ch = " pnbrqk"[let(v > 0, int(v), int(-v))]
			if v > 0 {
				ch -= 0x20
			}
			sb.WriteByte(ch)
		}
		if empty != 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if rank != Rank1 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

func let2(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
