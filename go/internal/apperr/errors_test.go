package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	base := Validation("not_your_turn", "not your turn")
	wrapped := fmt.Errorf("make move: %w", Wrap(base, errors.New("boom")))

	if !errors.Is(wrapped, base) {
		t.Fatalf("errors.Is(wrapped, base) = false, want true")
	}
	if errors.Is(wrapped, Validation("game_ended", "ended")) {
		t.Fatalf("errors.Is matched a different code")
	}
}

func TestKindAndCodeOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantCode string
	}{
		{"validation", Validation("illegal_move", "illegal"), KindValidation, "illegal_move"},
		{"not found", fmt.Errorf("lookup: %w", NotFound("game_not_found", "missing")), KindNotFound, "game_not_found"},
		{"transient", Transient("store_unavailable", "redis down", errors.New("dial")), KindTransient, "store_unavailable"},
		{"plain", errors.New("plain"), KindInternal, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.wantKind {
				t.Fatalf("KindOf() = %s, want %s", got, tt.wantKind)
			}
			if got := CodeOf(tt.err); got != tt.wantCode {
				t.Fatalf("CodeOf() = %s, want %s", got, tt.wantCode)
			}
		})
	}
}
