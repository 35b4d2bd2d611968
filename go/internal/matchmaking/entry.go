package matchmaking

import (
	"fmt"
	"time"

	"github.com/mcdev12/gambit/go/internal/apperr"
)

var (
	ErrAlreadyQueued = apperr.Validation("already_queued", "user is already waiting in a pool")
	ErrNotQueued     = apperr.NotFound("not_queued", "user is not waiting in any pool")
	ErrUnknownPool   = apperr.Validation("unknown_pool", "no pool for this time control")
	ErrMissingUser   = apperr.Validation("missing_user", "queue entry has no user id")
)

// PoolKey identifies a waiting pool.
type PoolKey struct {
	TimeControl string
	Rated       bool
}

func (k PoolKey) String() string {
	if k.Rated {
		return fmt.Sprintf("%s/rated", k.TimeControl)
	}
	return fmt.Sprintf("%s/casual", k.TimeControl)
}

// Entry is one user waiting for an opponent.
type Entry struct {
	UserID          string
	TimeControl     string
	Rated           bool
	Rating          int
	RatingDeviation float64
	AllowTakebacks  bool
	EnqueuedAt      time.Time
}

// Key returns the pool the entry belongs to.
func (e Entry) Key() PoolKey {
	return PoolKey{TimeControl: e.TimeControl, Rated: e.Rated}
}

// Wait is how long the entry has been queued at now.
func (e Entry) Wait(now time.Time) time.Duration {
	if w := now.Sub(e.EnqueuedAt); w > 0 {
		return w
	}
	return 0
}

// PoolStats summarizes one pool.
type PoolStats struct {
	Pool          string        `json:"pool"`
	TimeControl   string        `json:"time_control"`
	Rated         bool          `json:"rated"`
	Waiting       int           `json:"waiting"`
	LongestWait   time.Duration `json:"longest_wait"`
	AverageRating int           `json:"average_rating"`
}
