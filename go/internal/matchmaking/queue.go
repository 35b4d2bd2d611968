// Package matchmaking pairs waiting users of similar rating into games.
package matchmaking

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/events"
	"github.com/mcdev12/gambit/go/internal/game"
	"github.com/mcdev12/gambit/go/internal/models"
)

const (
	DefaultSweepInterval = time.Second
	DefaultEntryTimeout  = 5 * time.Minute

	emptyPoolEstimate = 30 * time.Second
	minEstimate       = 5 * time.Second
	estimateBand      = 200
)

// GameCreator starts games for formed pairs.
type GameCreator interface {
	CreateGame(ctx context.Context, req game.CreateRequest) (*game.Session, error)
	InGame(userID string) bool
}

// Config tunes a Queue.
type Config struct {
	SweepInterval time.Duration
	EntryTimeout  time.Duration
	// TimeControls restricts pools to these controls ("3+2"). Empty allows any.
	TimeControls []string
}

type pool struct {
	mu      sync.Mutex
	entries []*Entry
}

// Queue holds one waiting pool per (time control, rated) pair. Each pool has
// its own lock; the member index guarantees a user waits in one pool only.
type Queue struct {
	clk       clockwork.Clock
	games     GameCreator
	transport game.Transport
	cfg       Config
	allowed   map[string]struct{}
	whiteCoin func() bool

	poolsMu sync.Mutex
	pools   map[PoolKey]*pool

	membersMu sync.Mutex
	members   map[string]*Entry
}

// NewQueue creates a matchmaking queue.
func NewQueue(clk clockwork.Clock, games GameCreator, transport game.Transport, cfg Config) *Queue {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.EntryTimeout <= 0 {
		cfg.EntryTimeout = DefaultEntryTimeout
	}
	allowed := make(map[string]struct{}, len(cfg.TimeControls))
	for _, tc := range cfg.TimeControls {
		allowed[tc] = struct{}{}
	}
	return &Queue{
		clk:       clk,
		games:     games,
		transport: transport,
		cfg:       cfg,
		allowed:   allowed,
		whiteCoin: func() bool { return rand.IntN(2) == 0 },
		pools:     make(map[PoolKey]*pool),
		members:   make(map[string]*Entry),
	}
}

func (q *Queue) pool(key PoolKey, create bool) *pool {
	q.poolsMu.Lock()
	defer q.poolsMu.Unlock()
	p, ok := q.pools[key]
	if !ok && create {
		p = &pool{}
		q.pools[key] = p
	}
	return p
}

func (q *Queue) poolKeys() []PoolKey {
	q.poolsMu.Lock()
	defer q.poolsMu.Unlock()
	keys := make([]PoolKey, 0, len(q.pools))
	for k := range q.pools {
		keys = append(keys, k)
	}
	return keys
}

// Enqueue adds e to its pool, runs a pairing sweep over that pool and returns
// the estimated wait.
func (q *Queue) Enqueue(ctx context.Context, e Entry) (time.Duration, error) {
	if e.UserID == "" {
		return 0, ErrMissingUser
	}
	tc, err := models.ParseTimeControl(e.TimeControl)
	if err != nil {
		return 0, ErrUnknownPool
	}
	e.TimeControl = tc.String()
	if len(q.allowed) > 0 {
		if _, ok := q.allowed[e.TimeControl]; !ok {
			return 0, ErrUnknownPool
		}
	}
	if e.Rating <= 0 {
		e.Rating = models.DefaultRating
	}
	if q.games.InGame(e.UserID) {
		return 0, game.ErrAlreadyPlaying
	}

	key := e.Key()
	p := q.pool(key, true)

	q.membersMu.Lock()
	if _, queued := q.members[e.UserID]; queued {
		q.membersMu.Unlock()
		return 0, ErrAlreadyQueued
	}
	e.EnqueuedAt = q.clk.Now()
	entry := &e
	p.mu.Lock()
	estimate := estimate(p.entries, entry.Rating, entry.EnqueuedAt)
	p.entries = append(p.entries, entry)
	p.mu.Unlock()
	q.members[e.UserID] = entry
	q.membersMu.Unlock()

	log.Info().
		Str("user_id", e.UserID).
		Str("pool", key.String()).
		Int("rating", e.Rating).
		Dur("estimate", estimate).
		Msg("user queued")

	q.sweep(ctx, key)
	return estimate, nil
}

// Leave removes userID from whichever pool it waits in. An entry a sweep has
// already taken out of its pool is being paired or expired, so leaving it
// fails with ErrNotQueued.
func (q *Queue) Leave(userID string) error {
	q.membersMu.Lock()
	defer q.membersMu.Unlock()
	entry, ok := q.members[userID]
	if !ok {
		return ErrNotQueued
	}
	p := q.pool(entry.Key(), false)
	if p == nil {
		return ErrNotQueued
	}
	p.mu.Lock()
	waiting := len(p.entries)
	p.entries = remove(p.entries, entry)
	removed := len(p.entries) < waiting
	p.mu.Unlock()
	if !removed {
		return ErrNotQueued
	}
	delete(q.members, userID)
	log.Info().Str("user_id", userID).Str("pool", entry.Key().String()).Msg("user left queue")
	return nil
}

// Queued reports the pool userID is waiting in.
func (q *Queue) Queued(userID string) (PoolKey, bool) {
	q.membersMu.Lock()
	defer q.membersMu.Unlock()
	entry, ok := q.members[userID]
	if !ok {
		return PoolKey{}, false
	}
	return entry.Key(), true
}

// EstimateWait predicts how long a user of rating would wait in key.
func (q *Queue) EstimateWait(key PoolKey, rating int) time.Duration {
	p := q.pool(key, false)
	if p == nil {
		return emptyPoolEstimate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return estimate(p.entries, rating, q.clk.Now())
}

// estimate averages the waits of entries within the rating band, falling
// back to a size-based guess.
func estimate(entries []*Entry, rating int, now time.Time) time.Duration {
	if len(entries) == 0 {
		return emptyPoolEstimate
	}
	var total time.Duration
	n := 0
	for _, e := range entries {
		if distance(e.Rating, rating) <= estimateBand {
			total += e.Wait(now)
			n++
		}
	}
	if n > 0 {
		return total / time.Duration(n)
	}
	return max(minEstimate, emptyPoolEstimate/time.Duration(len(entries)))
}

// Stats reports every non-empty pool.
func (q *Queue) Stats() []PoolStats {
	now := q.clk.Now()
	var out []PoolStats
	for _, key := range q.poolKeys() {
		p := q.pool(key, false)
		p.mu.Lock()
		st := PoolStats{
			Pool:        key.String(),
			TimeControl: key.TimeControl,
			Rated:       key.Rated,
			Waiting:     len(p.entries),
		}
		sum := 0
		for _, e := range p.entries {
			st.LongestWait = max(st.LongestWait, e.Wait(now))
			sum += e.Rating
		}
		if st.Waiting > 0 {
			st.AverageRating = sum / st.Waiting
		}
		p.mu.Unlock()
		if st.Waiting > 0 {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pool < out[j].Pool })
	return out
}

// Run sweeps every pool on a fixed interval until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	ticker := q.clk.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()
	log.Info().Dur("interval", q.cfg.SweepInterval).Msg("matchmaking sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("matchmaking sweeper stopped")
			return nil
		case <-ticker.Chan():
			q.SweepAll(ctx)
		}
	}
}

// SweepAll runs one pairing sweep over every pool.
func (q *Queue) SweepAll(ctx context.Context) {
	for _, key := range q.poolKeys() {
		q.sweep(ctx, key)
	}
}

func (q *Queue) sweep(ctx context.Context, key PoolKey) {
	p := q.pool(key, false)
	if p == nil {
		return
	}
	now := q.clk.Now()

	p.mu.Lock()
	var expired, live []*Entry
	for _, e := range p.entries {
		if e.Wait(now) >= q.cfg.EntryTimeout {
			expired = append(expired, e)
		} else {
			live = append(live, e)
		}
	}
	pairs := match(order(live), now)
	for _, pr := range pairs {
		live = remove(live, pr.a)
		live = remove(live, pr.b)
	}
	p.entries = live
	p.mu.Unlock()

	if len(expired) == 0 && len(pairs) == 0 {
		return
	}

	q.membersMu.Lock()
	for _, e := range expired {
		q.forget(e)
	}
	for _, pr := range pairs {
		q.forget(pr.a)
		q.forget(pr.b)
	}
	q.membersMu.Unlock()

	for _, e := range expired {
		q.notifyTimeout(e, now)
	}
	for _, pr := range pairs {
		q.start(ctx, pr, now)
	}
}

// forget drops e from the member index unless the user has re-queued since.
// Caller holds membersMu.
func (q *Queue) forget(e *Entry) {
	if q.members[e.UserID] == e {
		delete(q.members, e.UserID)
	}
}

func (q *Queue) notifyTimeout(e *Entry, now time.Time) {
	log.Info().Str("user_id", e.UserID).Str("pool", e.Key().String()).Msg("queue entry timed out")
	ev, err := events.New(events.EventTypeQueueTimeout, events.QueueTimeoutPayload{
		TimeControl: e.TimeControl,
		Rated:       e.Rated,
		WaitedMs:    e.Wait(now).Milliseconds(),
	}, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to build queue.timeout")
		return
	}
	q.transport.Send(e.UserID, ev)
}

func (q *Queue) start(ctx context.Context, pr pair, now time.Time) {
	white, black := pr.a, pr.b
	if !q.whiteCoin() {
		white, black = black, white
	}
	tc, _ := models.ParseTimeControl(white.TimeControl)

	s, err := q.games.CreateGame(ctx, game.CreateRequest{
		White:       game.Player{UserID: white.UserID, Rating: white.Rating, AllowTakebacks: white.AllowTakebacks},
		Black:       game.Player{UserID: black.UserID, Rating: black.Rating, AllowTakebacks: black.AllowTakebacks},
		TimeControl: tc,
		Rated:       white.Rated,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("white", white.UserID).
			Str("black", black.UserID).
			Msg("failed to start matched game, re-queueing free players")
		q.requeue(white)
		q.requeue(black)
		return
	}

	log.Info().
		Str("game_id", s.ID().String()).
		Str("pool", white.Key().String()).
		Int("rating_diff", distance(white.Rating, black.Rating)).
		Dur("wait", max(white.Wait(now), black.Wait(now))).
		Msg("players paired")
}

// requeue puts e back with its original enqueue time if the user is still free.
func (q *Queue) requeue(e *Entry) {
	if q.games.InGame(e.UserID) {
		return
	}
	q.membersMu.Lock()
	defer q.membersMu.Unlock()
	if _, queued := q.members[e.UserID]; queued {
		return
	}
	p := q.pool(e.Key(), true)
	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()
	q.members[e.UserID] = e
}

func remove(entries []*Entry, target *Entry) []*Entry {
	for i, e := range entries {
		if e == target {
			return append(entries[:i:i], entries[i+1:]...)
		}
	}
	return entries
}
