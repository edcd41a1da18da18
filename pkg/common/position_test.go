package common

import (
	"testing"
)

// https://www.chessprogramming.org/Perft_Results
func TestPerft(t *testing.T) {
	var tests = []struct {
		fen   string
		depth int
		nodes int
	}{
		{
			fen:   InitialPositionFen,
			depth: 3,
			nodes: 8902,
		},
		{
			fen:   "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
			depth: 2,
			nodes: 2039,
		},
		{
			fen:   "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
			depth: 3,
			nodes: 2812,
		},
		{
			fen:   "r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
			depth: 2,
			nodes: 264,
		},
		{
			fen:   "rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
			depth: 2,
			nodes: 1486,
		},
		{
			fen:   "r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
			depth: 2,
			nodes: 2079,
		},
		{
			fen:   "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1",
			depth: 2,
			nodes: 568,
		},
		// chess960, Shredder castling field
		{
			fen:   "bqnb1rkr/pp3ppp/3ppn2/2p5/5P2/P2P4/NPP1P1PP/BQ1BNRKR w HFhf - 2 9",
			depth: 2,
			nodes: 528,
		},
	}
	for i, test := range tests {
		var p, err = NewPositionFromFEN(test.fen)
		if err != nil {
			t.Fatal(i, err)
		}
		var nodes = perft(p, test.depth)
		if nodes != test.nodes {
			t.Error(i, test, nodes)
		}
	}
}

func perft(p *Position, depth int) int {
	if depth == 1 {
		return len(p.Moves())
	}
	var result = 0
	for i := range p.Moves() {
		result += perft(p.MakeMoveAt(i), depth-1)
	}
	return result
}

func TestMakeMoveLAN(t *testing.T) {
	var p, err = NewPositionFromFEN(InitialPositionFen)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.MakeMoveLAN("e2e5"); ok {
		t.Error("e2e5 accepted")
	}
	if _, ok := p.MakeMoveLAN("xx"); ok {
		t.Error("garbage accepted")
	}
	var child, ok = p.MakeMoveLAN("e2e4")
	if !ok {
		t.Fatal("e2e4 rejected")
	}
	if child.WhiteMove || child.LastMove.String() != "e2e4" {
		t.Error(child.WhiteMove, child.LastMove)
	}
}

func TestKeyTransposition(t *testing.T) {
	var start, _ = NewPositionFromFEN(InitialPositionFen)
	var p = start
	for _, lan := range []string{"g1f3", "g8f6", "f3g1", "f6g8"} {
		var ok bool
		p, ok = p.MakeMoveLAN(lan)
		if !ok {
			t.Fatal(lan)
		}
	}
	if p.Key != start.Key {
		t.Error("same placement, different keys")
	}
	if p.Rule50 != 4 {
		t.Error("rule50", p.Rule50)
	}
	var other, _ = start.MakeMoveLAN("g1f3")
	if other.Key == start.Key {
		t.Error("different positions, same key")
	}
}

func TestTerminalStates(t *testing.T) {
	var tests = []struct {
		fen       string
		check     bool
		checkmate bool
		stalemate bool
		draw      bool
	}{
		{"rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", true, true, false, false},
		{"7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", false, false, true, false},
		{"4k3/8/8/8/8/8/8/4KB2 w - - 0 1", false, false, false, true},
		{"4k3/8/8/8/8/8/8/R3K3 w - - 0 1", false, false, false, false},
		{"4k3/8/8/8/8/8/4r3/4K3 w - - 0 1", true, false, false, false},
	}
	for _, test := range tests {
		var p, err = NewPositionFromFEN(test.fen)
		if err != nil {
			t.Fatal(err)
		}
		if p.IsCheck() != test.check ||
			p.IsCheckmate() != test.checkmate ||
			p.IsStalemate() != test.stalemate ||
			p.IsMaterialDraw() != test.draw {
			t.Error(test.fen, p.IsCheck(), p.IsCheckmate(), p.IsStalemate(), p.IsMaterialDraw())
		}
	}
}

func TestNonStandardSetup(t *testing.T) {
	var p, err = NewPositionFromFEN("bnrqkrnb/pppppppp/8/8/8/8/PPPPPPPP/BNRQKRNB w - - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Moves()) == 0 {
		t.Error("no moves")
	}
	if _, err := NewPositionFromFEN("not a fen"); err == nil {
		t.Error("bad fen accepted")
	}
}

func TestMoveString(t *testing.T) {
	for _, s := range []string{"e2e4", "a7a8q", "h2h1n", "e1g1"} {
		var m, ok = ParseMove(s)
		if !ok || m.String() != s {
			t.Error(s, m, ok)
		}
	}
	if MoveEmpty.String() != "0000" {
		t.Error(MoveEmpty.String())
	}
}

func TestCapturedPiece(t *testing.T) {
	var p, err = NewPositionFromFEN("4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 2")
	if err != nil {
		t.Fatal(err)
	}
	var ep, _ = ParseMove("e5d6")
	if p.IndexOf(ep) < 0 {
		t.Fatal("en passant not generated")
	}
	if p.CapturedPiece(ep) != Pawn || !p.IsCaptureOrPromotion(ep) {
		t.Error("en passant is a capture")
	}
	var quiet, _ = ParseMove("e5e6")
	if p.IsCaptureOrPromotion(quiet) {
		t.Error("e5e6 is quiet")
	}
}

func TestParseMoveSAN(t *testing.T) {
	var p, err = NewPositionFromFEN("r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5Q2/PPPP1PPP/RNB1K1NR w KQkq - 2 3")
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		san  string
		want string
	}{
		{"Qxf7#", "f3f7"},
		{"Qxf7", "f3f7"},
		{"Nc3", "b1c3"},
		{"e4", ""},
		{"Ke3", ""},
		{"O-O", ""},
	} {
		var move, ok = p.ParseMoveSAN(test.san)
		if test.want == "" {
			if ok {
				t.Error(test.san, "accepted as", move)
			}
			continue
		}
		if !ok || move.String() != test.want {
			t.Error(test.san, move, ok)
		}
	}
}

func TestChess960Castling(t *testing.T) {
	var p, err = NewPositionFromFEN("1rk3r1/pppppppp/8/8/8/8/PPPPPPPP/1RK3R1 w KQkq - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	var kingSide, ok = p.ParseMoveLAN("c1g1", true)
	if !ok || !kingSide.IsCastling() {
		t.Fatal("c1g1 is not castling", kingSide, ok)
	}
	queenSide, ok := p.ParseMoveLAN("c1b1", true)
	if !ok || !queenSide.IsCastling() {
		t.Fatal("c1b1 is not castling", queenSide, ok)
	}
	if queenSide.LAN(true) != "c1b1" || queenSide.String() != "c1c1" {
		t.Error(queenSide.LAN(true), queenSide.String())
	}
	if m, ok := p.ParseMoveLAN("c1c1", false); !ok || m != queenSide {
		t.Error("standard notation for queen side castling", m, ok)
	}
	if _, ok := p.ParseMoveLAN("c1c1", true); ok {
		t.Error("c1c1 accepted in chess960 mode")
	}

	var child, _ = p.MakeMove(kingSide)
	if child.WhatPiece(MakeSquare(FileG, Rank1)) != King || child.WhatPiece(MakeSquare(FileF, Rank1)) != Rook {
		t.Error("pieces after castling", child)
	}
	if child.WhatPiece(MakeSquare(FileC, Rank1)) != Empty {
		t.Error("king left behind", child)
	}
	if fen := child.FEN(); fen != "1rk3r1/pppppppp/8/8/8/8/PPPPPPPP/1R3RK1 b kq - 1 1" {
		t.Error(fen)
	}
	if len(child.Moves()) == 0 || child.WhiteMove {
		t.Error("black to move after castling")
	}
}

func TestCastlingFields(t *testing.T) {
	var xfen, err = NewPositionFromFEN("1rk3r1/pppppppp/8/8/8/8/PPPPPPPP/1RK3R1 w KQkq - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	shredder, err := NewPositionFromFEN("1rk3r1/pppppppp/8/8/8/8/PPPPPPPP/1RK3R1 w GBgb - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	if xfen.Key != shredder.Key || xfen.FEN() != shredder.FEN() {
		t.Error(xfen.FEN(), shredder.FEN())
	}
	if _, err := NewPositionFromFEN("1rk3r1/pppppppp/8/8/8/8/PPPPPPPP/1RK3R1 w KX - 0 1"); err == nil {
		t.Error("bad castling field accepted")
	}
	// inner rook needs a file letter
	inner, err := NewPositionFromFEN("rk2r2r/pppppppp/8/8/8/8/PPPPPPPP/RK2R2R w E - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	if fen := inner.FEN(); fen != "rk2r2r/pppppppp/8/8/8/8/PPPPPPPP/RK2R2R w E - 0 1" {
		t.Error(fen)
	}
}

func TestCastlingRules(t *testing.T) {
	var tests = []struct {
		fen     string
		lan     string
		legal   bool
		after   string
		comment string
	}{
		{"r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", "e1g1", true, "r3k2r/8/8/8/8/8/8/R4RK1 b kq - 1 1", "king side"},
		{"r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", "e1c1", true, "r3k2r/8/8/8/8/8/8/2KR3R b kq - 1 1", "queen side"},
		{"r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1", "e8h8", true, "r4rk1/8/8/8/8/8/8/R3K2R w KQ - 1 2", "king takes rook"},
		{"4k3/8/8/8/8/8/5r2/R3K2R w KQ - 0 1", "e1g1", false, "", "passes an attacked square"},
		{"4k3/8/8/8/8/8/5r2/R3K2R w KQ - 0 1", "e1c1", true, "4k3/8/8/8/8/8/5r2/2KR3R b - - 1 1", "other side is safe"},
		{"4k3/8/8/8/8/8/4r3/R3K2R w KQ - 0 1", "e1c1", false, "", "in check"},
		{"4k3/8/8/8/8/8/8/RN2K2R w KQ - 0 1", "e1c1", false, "", "blocked"},
		{"r3k2r/8/8/8/8/8/8/R3K2R w kq - 0 1", "e1g1", false, "", "no right"},
	}
	for _, test := range tests {
		var p, err = NewPositionFromFEN(test.fen)
		if err != nil {
			t.Fatal(test.comment, err)
		}
		var child, ok = p.MakeMoveLAN(test.lan)
		if ok != test.legal {
			t.Errorf("%v: legal %v", test.comment, ok)
			continue
		}
		if ok && child.FEN() != test.after {
			t.Errorf("%v: %v", test.comment, child.FEN())
		}
	}
}

func TestCastlingRightsAfterRookMove(t *testing.T) {
	var p, _ = NewPositionFromFEN("r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	var child, ok = p.MakeMoveLAN("h1h8")
	if !ok {
		t.Fatal("h1h8 rejected")
	}
	if fen := child.FEN(); fen != "r3k2R/8/8/8/8/8/8/R3K3 b Qq - 0 1" {
		t.Error(fen)
	}
	if child.Key == p.Key {
		t.Error("key unchanged")
	}
}

func TestParseCastlingSAN(t *testing.T) {
	var p, _ = NewPositionFromFEN("r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	for san, want := range map[string]string{"O-O": "e1g1", "O-O-O": "e1c1", "0-0+": "e1g1"} {
		var m, ok = p.ParseMoveSAN(san)
		if !ok || !m.IsCastling() || m.String() != want {
			t.Error(san, m, ok)
		}
	}
}
