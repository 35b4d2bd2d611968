package tournament

import (
	"time"

	"github.com/google/uuid"
)

const (
	winPoints  = 2
	drawPoints = 1

	// A pre-game streak of at least this many wins doubles the points.
	onFireStreak = 2

	performanceSpread = 500

	lossDelayStep = 10 * time.Second
	maxLossDelay  = 120 * time.Second

	// RestAfterGame is the minimum gap between a player's games.
	RestAfterGame = 2 * time.Second
)

// Outcome is a game result from one player's point of view.
type Outcome int

const (
	Loss Outcome = iota
	Draw
	Win
)

// Player is a tournament participant.
type Player struct {
	UserID         string
	TeamID         string
	Rating         int
	AllowTakebacks bool

	Score       int
	Games       int
	Wins        int
	Losses      int
	Draws       int
	Streak      int
	LossStreak  int
	Performance float64
	WhiteGames  int

	PairableAt      time.Time
	LastGameEndedAt time.Time
	CurrentGame     uuid.UUID
	Withdrawn       bool
}

// Points is what a game with outcome o is worth to a player whose streak
// before the game was streak.
func Points(o Outcome, streak int) int {
	var base int
	switch o {
	case Win:
		base = winPoints
	case Draw:
		base = drawPoints
	}
	if streak >= onFireStreak {
		return base * 2
	}
	return base
}

// LossDelay is how long a player waits for the next pairing after losses
// consecutive losses.
func LossDelay(losses int) time.Duration {
	return min(time.Duration(losses)*lossDelayStep, maxLossDelay)
}

// GamePerformance is the performance rating of a single game.
func GamePerformance(o Outcome, opponentRating int) float64 {
	switch o {
	case Win:
		return float64(opponentRating + performanceSpread)
	case Loss:
		return float64(opponentRating - performanceSpread)
	}
	return float64(opponentRating)
}

// record applies a finished game to p and returns the points it scored.
func (p *Player) record(o Outcome, opponentRating int, now time.Time) int {
	points := Points(o, p.Streak)
	p.Score += points

	switch o {
	case Win:
		p.Wins++
		p.Streak++
		p.LossStreak = 0
	case Draw:
		p.Draws++
		if p.Streak < onFireStreak {
			p.Streak = 0
		}
		p.LossStreak = 0
	case Loss:
		p.Losses++
		p.Streak = 0
		p.LossStreak++
	}

	p.Games++
	perf := GamePerformance(o, opponentRating)
	if p.Games == 1 {
		p.Performance = perf
	} else {
		n := float64(p.Games)
		p.Performance = (p.Performance*(n-1) + perf) / n
	}

	p.release(now)
	if o == Loss {
		p.PairableAt = now.Add(LossDelay(p.LossStreak))
	}
	return points
}

// release frees p for pairing after a game ended at now.
func (p *Player) release(now time.Time) {
	p.CurrentGame = uuid.Nil
	p.LastGameEndedAt = now
	p.PairableAt = now
}

// eligible reports whether p may be paired at now.
func (p *Player) eligible(now time.Time) bool {
	if p.Withdrawn || p.CurrentGame != uuid.Nil {
		return false
	}
	if !p.LastGameEndedAt.IsZero() && now.Sub(p.LastGameEndedAt) < RestAfterGame {
		return false
	}
	return !now.Before(p.PairableAt)
}
