package game

import (
	"testing"
	"time"

	"github.com/mcdev12/gambit/go/internal/models"
)

func TestClockFirstMovesAreFree(t *testing.T) {
	c := NewClock(models.TimeControl{Initial: 60 * time.Second}, testStart)

	if _, ok := c.AccountMove(models.White, testStart.Add(5*time.Second)); !ok {
		t.Fatalf("white first move rejected")
	}
	if got := c.Remaining(models.White); got != 60*time.Second {
		t.Fatalf("white remaining = %v, want 60s", got)
	}
	if _, ok := c.AccountMove(models.Black, testStart.Add(9*time.Second)); !ok {
		t.Fatalf("black first move rejected")
	}
	if got := c.Remaining(models.Black); got != 60*time.Second {
		t.Fatalf("black remaining = %v, want 60s", got)
	}
	if !c.Running() {
		t.Fatalf("Running() = false after both sides moved")
	}

	spent, ok := c.AccountMove(models.White, testStart.Add(13*time.Second))
	if !ok {
		t.Fatalf("white second move rejected")
	}
	if spent != 4*time.Second {
		t.Fatalf("spent = %v, want 4s", spent)
	}
	if got := c.Remaining(models.White); got != 56*time.Second {
		t.Fatalf("white remaining = %v, want 56s", got)
	}
}

func TestClockIncrementAddedAfterDeduction(t *testing.T) {
	c := NewClock(models.TimeControl{Initial: 3 * time.Minute, Increment: 2 * time.Second}, testStart)

	c.AccountMove(models.White, testStart)
	if got := c.Remaining(models.White); got != 3*time.Minute+2*time.Second {
		t.Fatalf("white remaining = %v, want 3m2s", got)
	}
	c.AccountMove(models.Black, testStart.Add(time.Second))
	c.AccountMove(models.White, testStart.Add(11*time.Second))
	if got, want := c.Remaining(models.White), 3*time.Minute+2*time.Second-10*time.Second+2*time.Second; got != want {
		t.Fatalf("white remaining = %v, want %v", got, want)
	}
}

func TestClockRejectsMoveAtOrAfterZero(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantOK  bool
	}{
		{"one millisecond left", 9999 * time.Millisecond, true},
		{"exactly zero", 10 * time.Second, false},
		{"overdrawn", 12 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClock(models.TimeControl{Initial: 10 * time.Second}, testStart)
			c.AccountMove(models.White, testStart)
			c.AccountMove(models.Black, testStart)

			_, ok := c.AccountMove(models.White, testStart.Add(tt.elapsed))
			if ok != tt.wantOK {
				t.Fatalf("AccountMove() ok = %v, want %v", ok, tt.wantOK)
			}
			if c.Remaining(models.White) < 0 {
				t.Fatalf("remaining went negative: %v", c.Remaining(models.White))
			}
		})
	}
}

func TestClockLiveDoesNotMutate(t *testing.T) {
	c := NewClock(models.TimeControl{Initial: 60 * time.Second}, testStart)
	c.AccountMove(models.White, testStart)
	c.AccountMove(models.Black, testStart)

	live := c.Live(models.White, testStart.Add(1500*time.Millisecond))
	if live[models.White] != 58500*time.Millisecond {
		t.Fatalf("live white = %v, want 58.5s", live[models.White])
	}
	if c.Remaining(models.White) != 60*time.Second {
		t.Fatalf("Live mutated remaining: %v", c.Remaining(models.White))
	}
	if live := c.Live(models.White, testStart.Add(2*time.Minute)); live[models.White] != 0 {
		t.Fatalf("live white past flag = %v, want 0", live[models.White])
	}
}

func TestClockNotExpiredBeforeRunning(t *testing.T) {
	c := NewClock(models.TimeControl{Initial: time.Second}, testStart)
	if c.Expired(models.White, testStart.Add(time.Hour)) {
		t.Fatalf("Expired() = true before either side moved")
	}
}

func TestClockUndo(t *testing.T) {
	c := NewClock(models.TimeControl{Initial: 60 * time.Second}, testStart)
	c.AccountMove(models.White, testStart)
	c.AccountMove(models.Black, testStart.Add(time.Second))

	c.Undo(models.Black, testStart.Add(2*time.Second))
	if c.Running() {
		t.Fatalf("Running() = true after undoing black's only move")
	}
	if !c.LastMoveAt().Equal(testStart.Add(2 * time.Second)) {
		t.Fatalf("LastMoveAt() = %v, want undo time", c.LastMoveAt())
	}
}
