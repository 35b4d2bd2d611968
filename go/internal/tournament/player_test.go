package tournament

import (
	"testing"
	"time"
)

var testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPoints(t *testing.T) {
	tests := []struct {
		outcome Outcome
		streak  int
		want    int
	}{
		{Win, 0, 2},
		{Win, 1, 2},
		{Win, 2, 4},
		{Win, 7, 4},
		{Draw, 1, 1},
		{Draw, 2, 2},
		{Loss, 0, 0},
		{Loss, 3, 0},
	}
	for _, tt := range tests {
		if got := Points(tt.outcome, tt.streak); got != tt.want {
			t.Fatalf("Points(%d, streak %d) = %d, want %d", tt.outcome, tt.streak, got, tt.want)
		}
	}
}

func TestStreakRules(t *testing.T) {
	tests := []struct {
		name   string
		before int
		result Outcome
		after  int
	}{
		{"win extends", 1, Win, 2},
		{"loss resets", 3, Loss, 0},
		{"draw keeps a hot streak", 2, Draw, 2},
		{"draw resets a cold streak", 1, Draw, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Player{Streak: tt.before}
			p.record(tt.result, 1500, testStart)
			if p.Streak != tt.after {
				t.Fatalf("streak = %d, want %d", p.Streak, tt.after)
			}
		})
	}
}

func TestOnFireWinScoresDouble(t *testing.T) {
	p := &Player{}
	got := []int{
		p.record(Win, 1500, testStart),
		p.record(Win, 1500, testStart),
		p.record(Win, 1500, testStart),
		p.record(Draw, 1500, testStart),
		p.record(Loss, 1500, testStart),
		p.record(Win, 1500, testStart),
	}
	want := []int{2, 2, 4, 2, 0, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("points = %v, want %v", got, want)
		}
	}
	if p.Score != 12 {
		t.Fatalf("score = %d, want 12", p.Score)
	}
}

func TestLossDelay(t *testing.T) {
	tests := []struct {
		losses int
		want   time.Duration
	}{
		{0, 0},
		{1, 10 * time.Second},
		{3, 30 * time.Second},
		{12, 120 * time.Second},
		{20, 120 * time.Second},
	}
	for _, tt := range tests {
		if got := LossDelay(tt.losses); got != tt.want {
			t.Fatalf("LossDelay(%d) = %v, want %v", tt.losses, got, tt.want)
		}
	}
}

func TestThirdConsecutiveLossDelaysPairing(t *testing.T) {
	p := &Player{PairableAt: testStart}
	now := testStart
	for i := 0; i < 3; i++ {
		now = now.Add(time.Minute)
		p.record(Loss, 1500, now)
	}
	if p.LossStreak != 3 {
		t.Fatalf("loss streak = %d, want 3", p.LossStreak)
	}
	if want := now.Add(30 * time.Second); !p.PairableAt.Equal(want) {
		t.Fatalf("pairable at = %v, want %v", p.PairableAt, want)
	}
	if p.eligible(now.Add(29 * time.Second)) {
		t.Fatalf("eligible before the 30s delay elapsed")
	}
	if !p.eligible(now.Add(30 * time.Second)) {
		t.Fatalf("not eligible once the 30s delay elapsed")
	}

	p.record(Win, 1500, now.Add(time.Minute))
	if p.LossStreak != 0 {
		t.Fatalf("loss streak after a win = %d, want 0", p.LossStreak)
	}
}

func TestRestAfterGame(t *testing.T) {
	p := &Player{}
	p.record(Win, 1500, testStart)
	if p.eligible(testStart.Add(1999 * time.Millisecond)) {
		t.Fatalf("eligible less than 2s after a game")
	}
	if !p.eligible(testStart.Add(2 * time.Second)) {
		t.Fatalf("not eligible 2s after a game")
	}
}

func TestPerformanceRunningAverage(t *testing.T) {
	p := &Player{}
	p.record(Win, 1500, testStart)
	if p.Performance != 2000 {
		t.Fatalf("first game performance = %v, want 2000", p.Performance)
	}
	p.record(Loss, 1600, testStart)
	if p.Performance != 1550 {
		t.Fatalf("performance after two games = %v, want 1550", p.Performance)
	}
	p.record(Draw, 1700, testStart)
	if want := (1550.0*2 + 1700) / 3; p.Performance != want {
		t.Fatalf("performance after three games = %v, want %v", p.Performance, want)
	}
}
