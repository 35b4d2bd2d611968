package matchmaking

import (
	"cmp"
	"slices"
	"time"

	"github.com/mcdev12/gambit/go/internal/models"
)

const (
	baseRatingDiff   = 100
	ratingDiffStep   = 50
	ratingDiffPeriod = 3 * time.Second
	maxRatingDiff    = 400

	// Entries whose enqueue times are at most this far apart are ordered by
	// closeness to the reference rating instead of by wait.
	nearTieWindow   = time.Second
	referenceRating = models.DefaultRating
)

// MaxRatingDiff is the widest rating gap accepted for a pair whose longer
// wait is wait. It starts at 100 and grows by 50 every 3s, up to 400.
func MaxRatingDiff(wait time.Duration) int {
	if wait < 0 {
		wait = 0
	}
	return min(maxRatingDiff, baseRatingDiff+ratingDiffStep*int(wait/ratingDiffPeriod))
}

// order sorts entries longest wait first. Runs of entries enqueued within
// nearTieWindow of the run's first entry are sorted by distance from the
// reference rating.
func order(entries []*Entry) []*Entry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b *Entry) int {
		if c := a.EnqueuedAt.Compare(b.EnqueuedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	for i := 0; i < len(out); {
		j := i + 1
		for j < len(out) && out[j].EnqueuedAt.Sub(out[i].EnqueuedAt) <= nearTieWindow {
			j++
		}
		slices.SortStableFunc(out[i:j], func(a, b *Entry) int {
			return cmp.Compare(distance(a.Rating, referenceRating), distance(b.Rating, referenceRating))
		})
		i = j
	}
	return out
}

type pair struct {
	a, b *Entry
}

// match pairs entries greedily in queue order.
func match(ordered []*Entry, now time.Time) []pair {
	used := make([]bool, len(ordered))
	var pairs []pair
	for i, a := range ordered {
		if used[i] {
			continue
		}
		for j := i + 1; j < len(ordered); j++ {
			if used[j] {
				continue
			}
			b := ordered[j]
			if a.UserID == b.UserID {
				continue
			}
			wait := max(a.Wait(now), b.Wait(now))
			if distance(a.Rating, b.Rating) <= MaxRatingDiff(wait) {
				used[i], used[j] = true, true
				pairs = append(pairs, pair{a: a, b: b})
				break
			}
		}
	}
	return pairs
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
