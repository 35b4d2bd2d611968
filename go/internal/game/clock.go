package game

import (
	"time"

	"github.com/mcdev12/gambit/go/internal/models"
)

// ForfeitBuffer is added to the remaining time when arming the forfeit deadline.
const ForfeitBuffer = 100 * time.Millisecond

// Clock tracks both sides' remaining time. It holds no timers; the session
// arms those from UntilFlag.
type Clock struct {
	remaining  [2]time.Duration
	increment  time.Duration
	moves      [2]int
	lastMoveAt time.Time
}

// NewClock starts both sides at the initial budget of tc.
func NewClock(tc models.TimeControl, startedAt time.Time) *Clock {
	return &Clock{
		remaining:  [2]time.Duration{tc.Initial, tc.Initial},
		increment:  tc.Increment,
		lastMoveAt: startedAt,
	}
}

// Remaining returns the banked time of color, not counting a running turn.
func (c *Clock) Remaining(color models.Color) time.Duration {
	return c.remaining[color]
}

// Running reports whether both sides have moved, after which time is charged.
func (c *Clock) Running() bool {
	return c.moves[models.White] > 0 && c.moves[models.Black] > 0
}

// LastMoveAt is when the current turn started.
func (c *Clock) LastMoveAt() time.Time {
	return c.lastMoveAt
}

// AccountMove charges color for a move made at now and returns the think time.
// A side's first move is free apart from the increment. ok is false when the
// flag fell before the move; the move must then be rejected.
func (c *Clock) AccountMove(color models.Color, now time.Time) (spent time.Duration, ok bool) {
	spent = now.Sub(c.lastMoveAt)
	if spent < 0 {
		spent = 0
	}
	if c.Running() {
		left := c.remaining[color] - spent
		if left <= 0 {
			c.remaining[color] = 0
			return spent, false
		}
		c.remaining[color] = left
	}
	c.remaining[color] += c.increment
	c.moves[color]++
	c.lastMoveAt = now
	return spent, true
}

// UntilFlag returns how long toMove has left as of now. Zero or less means expired.
func (c *Clock) UntilFlag(toMove models.Color, now time.Time) time.Duration {
	if !c.Running() {
		return c.remaining[toMove]
	}
	return c.remaining[toMove] - now.Sub(c.lastMoveAt)
}

// Expired reports whether toMove has run out of time as of now.
func (c *Clock) Expired(toMove models.Color, now time.Time) bool {
	return c.Running() && c.UntilFlag(toMove, now) <= 0
}

// Live projects both sides' remaining time at now without mutating the clock.
func (c *Clock) Live(toMove models.Color, now time.Time) [2]time.Duration {
	live := c.remaining
	if c.Running() {
		left := c.UntilFlag(toMove, now)
		if left < 0 {
			left = 0
		}
		live[toMove] = left
	}
	return live
}

// Undo reverts the move bookkeeping of color after a takeback. Banked times
// are kept and the new turn starts at now.
func (c *Clock) Undo(color models.Color, now time.Time) {
	if c.moves[color] > 0 {
		c.moves[color]--
	}
	c.lastMoveAt = now
}
