package chessrules

import (
	"testing"

	"github.com/mcdev12/gambit/go/internal/models"
)

func TestFoolsMate(t *testing.T) {
	v := New()
	moves := []string{}
	for _, mv := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		if !v.IsLegal(moves, "", mv) {
			t.Fatalf("IsLegal(%v, %s) = false", moves, mv)
		}
		if st := v.TerminalStatus(moves, ""); st.Over {
			t.Fatalf("game over before %s: %+v", mv, st)
		}
		moves = v.Apply(moves, mv)
	}

	st := v.TerminalStatus(moves, "")
	if !st.Over || st.Result != models.ResultBlackWins || st.Reason != models.ReasonCheckmate {
		t.Fatalf("TerminalStatus() = %+v, want black wins by checkmate", st)
	}
}

func TestIllegalMoves(t *testing.T) {
	v := New()
	tests := []struct {
		name  string
		moves []string
		cand  string
	}{
		{"pawn three squares", nil, "e2e5"},
		{"wrong side", nil, "e7e5"},
		{"garbage", nil, "hello"},
		{"queen blocked by own pawn", nil, "d1d3"},
		{"bishop through own pawn", []string{"e2e4", "e7e5"}, "c1e3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v.IsLegal(tt.moves, StartPosition, tt.cand) {
				t.Fatalf("IsLegal(%v, %s) = true, want false", tt.moves, tt.cand)
			}
		})
	}
}

func TestThreefoldRepetitionEndsInDraw(t *testing.T) {
	v := New()
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	var moves []string
	for i := 0; i < 2; i++ {
		for _, mv := range shuffle {
			if st := v.TerminalStatus(moves, ""); st.Over {
				t.Fatalf("game over after %v: %+v", moves, st)
			}
			if !v.IsLegal(moves, "", mv) {
				t.Fatalf("IsLegal(%v, %s) = false", moves, mv)
			}
			moves = v.Apply(moves, mv)
		}
	}

	st := v.TerminalStatus(moves, "")
	if !st.Over || st.Result != models.ResultDraw || st.Reason != models.ReasonRepetition {
		t.Fatalf("TerminalStatus(%v) = %+v, want draw by repetition", moves, st)
	}
}

func TestFiftyMoveRuleEndsInDraw(t *testing.T) {
	v := New()
	// Kings and rooks only, half-move clock already at 99.
	fen := "4k2r/8/8/8/8/8/8/R3K3 w - - 99 80"
	if st := v.TerminalStatus(nil, fen); st.Over {
		t.Fatalf("TerminalStatus() at clock 99 = %+v, want running", st)
	}
	st := v.TerminalStatus([]string{"a1a2"}, fen)
	if !st.Over || st.Result != models.ResultDraw || st.Reason != models.ReasonFiftyMoves {
		t.Fatalf("TerminalStatus() at clock 100 = %+v, want draw by fifty moves", st)
	}
}

func TestSideToMove(t *testing.T) {
	v := New()
	tests := []struct {
		name    string
		initial string
		want    models.Color
		wantErr bool
	}{
		{"standard", "", models.White, false},
		{"startpos", StartPosition, models.White, false},
		{"black to move", "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1", models.Black, false},
		{"malformed", "not a position", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.SideToMove(tt.initial)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SideToMove() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Fatalf("SideToMove() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCustomPositionLegalMove(t *testing.T) {
	v := New()
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	if !v.IsLegal(nil, fen, "e7e5") {
		t.Fatalf("IsLegal(e7e5) from black-to-move position = false")
	}
	if v.IsLegal(nil, fen, "d2d4") {
		t.Fatalf("IsLegal(d2d4) with black to move = true")
	}
}
