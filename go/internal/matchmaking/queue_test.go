package matchmaking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/gambit/go/internal/chessrules"
	"github.com/mcdev12/gambit/go/internal/events"
	"github.com/mcdev12/gambit/go/internal/game"
)

var testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type sink struct {
	mu   sync.Mutex
	sent map[string][]events.EventType
}

func (s *sink) Send(userID string, ev *events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string][]events.EventType)
	}
	s.sent[userID] = append(s.sent[userID], ev.Type)
}

func (s *sink) received(userID string, typ events.EventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.sent[userID] {
		if t == typ {
			return true
		}
	}
	return false
}

type fixture struct {
	queue   *Queue
	manager *game.Manager
	clk     *clockwork.FakeClock
	sink    *sink
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clk := clockwork.NewFakeClockAt(testStart)
	out := &sink{}
	mgr := game.NewManager(game.ManagerDeps{Clock: clk, Validator: chessrules.New(), Transport: out})
	t.Cleanup(mgr.Close)
	q := NewQueue(clk, mgr, out, cfg)
	q.whiteCoin = func() bool { return true }
	return &fixture{queue: q, manager: mgr, clk: clk, sink: out}
}

func (f *fixture) enqueue(t *testing.T, user string, rating int, tc string) {
	t.Helper()
	if _, err := f.queue.Enqueue(context.Background(), Entry{UserID: user, Rating: rating, TimeControl: tc, Rated: true}); err != nil {
		t.Fatalf("Enqueue(%s) error = %v", user, err)
	}
}

func TestEqualRatingsPairImmediately(t *testing.T) {
	f := newFixture(t, Config{})
	f.enqueue(t, "alice", 1500, "3+2")
	f.clk.Advance(500 * time.Millisecond)
	f.enqueue(t, "bob", 1500, "3+2")

	s, ok := f.manager.ActiveGame("alice")
	if !ok {
		t.Fatalf("alice not in a game after pairing")
	}
	cfg := s.Config()
	if cfg.White.UserID != "alice" || cfg.Black.UserID != "bob" {
		t.Fatalf("pairing = %s vs %s, want alice vs bob", cfg.White.UserID, cfg.Black.UserID)
	}
	if cfg.TimeControl.String() != "3+2" || !cfg.Rated {
		t.Fatalf("game settings = %s rated=%v", cfg.TimeControl, cfg.Rated)
	}
	if _, queued := f.queue.Queued("alice"); queued {
		t.Fatalf("alice still queued after pairing")
	}
	if !f.sink.received("bob", events.EventTypeMatchFound) {
		t.Fatalf("bob did not receive match.found")
	}
}

func TestRatingWindowWidensWithWait(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.enqueue(t, "alice", 1500, "5+0")
	f.enqueue(t, "bob", 1700, "5+0")

	if f.manager.InGame("alice") {
		t.Fatalf("200 point gap paired without waiting")
	}
	f.clk.Advance(5999 * time.Millisecond)
	f.queue.SweepAll(ctx)
	if f.manager.InGame("alice") {
		t.Fatalf("paired before the window reached 200")
	}
	f.clk.Advance(time.Millisecond)
	f.queue.SweepAll(ctx)
	if !f.manager.InGame("alice") || !f.manager.InGame("bob") {
		t.Fatalf("not paired once the window reached 200")
	}
}

func TestMaxRatingDiff(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want int
	}{
		{-time.Second, 100},
		{0, 100},
		{2999 * time.Millisecond, 100},
		{3 * time.Second, 150},
		{9 * time.Second, 250},
		{18 * time.Second, 400},
		{time.Hour, 400},
	}
	prev := 0
	for _, tt := range tests {
		got := MaxRatingDiff(tt.wait)
		if got != tt.want {
			t.Fatalf("MaxRatingDiff(%v) = %d, want %d", tt.wait, got, tt.want)
		}
		if got < prev {
			t.Fatalf("MaxRatingDiff decreased at %v", tt.wait)
		}
		prev = got
	}
}

func TestNearTieBoundary(t *testing.T) {
	tests := []struct {
		name  string
		apart time.Duration
		first string
	}{
		{"exactly one second is a tie", time.Second, "bob"},
		{"just over one second is not", time.Second + time.Millisecond, "alice"},
		{"well inside the window", 200 * time.Millisecond, "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := []*Entry{
				{UserID: "alice", Rating: 1900, EnqueuedAt: testStart},
				{UserID: "bob", Rating: 1500, EnqueuedAt: testStart.Add(tt.apart)},
			}
			if got := order(entries)[0].UserID; got != tt.first {
				t.Fatalf("first = %s, want %s", got, tt.first)
			}
		})
	}
}

func TestNearTieGroupsAnchorOnFirstEntry(t *testing.T) {
	entries := []*Entry{
		{UserID: "carol", Rating: 1500, EnqueuedAt: testStart.Add(1500 * time.Millisecond)},
		{UserID: "alice", Rating: 1900, EnqueuedAt: testStart},
		{UserID: "bob", Rating: 1600, EnqueuedAt: testStart.Add(time.Second)},
	}
	got := order(entries)
	want := []string{"bob", "alice", "carol"}
	for i, e := range got {
		if e.UserID != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, e.UserID, want[i])
		}
	}
}

func TestUserWaitsInOnePoolOnly(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.enqueue(t, "alice", 1500, "3+2")

	_, err := f.queue.Enqueue(ctx, Entry{UserID: "alice", Rating: 1500, TimeControl: "5+0"})
	if !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("second Enqueue() error = %v, want ErrAlreadyQueued", err)
	}
	key, ok := f.queue.Queued("alice")
	if !ok || key != (PoolKey{TimeControl: "3+2", Rated: true}) {
		t.Fatalf("Queued(alice) = %v, %v", key, ok)
	}
}

func TestEnqueueRejectsPlayersInGame(t *testing.T) {
	f := newFixture(t, Config{})
	f.enqueue(t, "alice", 1500, "3+2")
	f.enqueue(t, "bob", 1500, "3+2")

	_, err := f.queue.Enqueue(context.Background(), Entry{UserID: "alice", TimeControl: "3+2"})
	if !errors.Is(err, game.ErrAlreadyPlaying) {
		t.Fatalf("Enqueue() while playing error = %v, want ErrAlreadyPlaying", err)
	}
}

func TestEnqueueValidatesPool(t *testing.T) {
	f := newFixture(t, Config{TimeControls: []string{"3+2"}})
	ctx := context.Background()
	for _, tc := range []string{"10+0", "bogus", ""} {
		if _, err := f.queue.Enqueue(ctx, Entry{UserID: "alice", TimeControl: tc}); !errors.Is(err, ErrUnknownPool) {
			t.Fatalf("Enqueue(%q) error = %v, want ErrUnknownPool", tc, err)
		}
	}
	if _, err := f.queue.Enqueue(ctx, Entry{TimeControl: "3+2"}); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("Enqueue() without user error = %v, want ErrMissingUser", err)
	}
}

func TestStaleEntriesTimeOut(t *testing.T) {
	f := newFixture(t, Config{})
	f.enqueue(t, "alice", 1500, "3+2")

	f.clk.Advance(5*time.Minute - time.Millisecond)
	f.queue.SweepAll(context.Background())
	if _, ok := f.queue.Queued("alice"); !ok {
		t.Fatalf("entry evicted before five minutes")
	}

	f.clk.Advance(time.Millisecond)
	f.queue.SweepAll(context.Background())
	if _, ok := f.queue.Queued("alice"); ok {
		t.Fatalf("entry still queued after five minutes")
	}
	if !f.sink.received("alice", events.EventTypeQueueTimeout) {
		t.Fatalf("alice did not receive queue.timeout")
	}
	f.enqueue(t, "alice", 1500, "3+2")
}

func TestLeave(t *testing.T) {
	f := newFixture(t, Config{})
	f.enqueue(t, "alice", 1500, "3+2")

	if err := f.queue.Leave("alice"); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if err := f.queue.Leave("alice"); !errors.Is(err, ErrNotQueued) {
		t.Fatalf("second Leave() error = %v, want ErrNotQueued", err)
	}
	f.enqueue(t, "bob", 1500, "3+2")
	if f.manager.InGame("bob") {
		t.Fatalf("bob paired with a user who left")
	}
}

func TestLeaveFailsOnceSweepClaimedEntry(t *testing.T) {
	f := newFixture(t, Config{})
	f.enqueue(t, "alice", 1500, "3+2")

	// A sweep takes entries out of the pool before it touches the member index.
	entry := f.queue.members["alice"]
	p := f.queue.pool(entry.Key(), false)
	p.mu.Lock()
	p.entries = remove(p.entries, entry)
	p.mu.Unlock()

	if err := f.queue.Leave("alice"); !errors.Is(err, ErrNotQueued) {
		t.Fatalf("Leave() error = %v, want ErrNotQueued", err)
	}
	if _, queued := f.queue.Queued("alice"); !queued {
		t.Fatalf("Leave() dropped a member the sweep still owns")
	}

	f.queue.membersMu.Lock()
	f.queue.forget(entry)
	f.queue.membersMu.Unlock()
	if _, queued := f.queue.Queued("alice"); queued {
		t.Fatalf("alice still queued after the sweep forgot her")
	}
}

func TestEstimateWait(t *testing.T) {
	f := newFixture(t, Config{})
	key := PoolKey{TimeControl: "3+2", Rated: true}

	if got := f.queue.EstimateWait(key, 1500); got != 30*time.Second {
		t.Fatalf("empty pool estimate = %v, want 30s", got)
	}

	f.enqueue(t, "alice", 1500, "3+2")
	f.enqueue(t, "bob", 2200, "3+2")
	f.clk.Advance(10 * time.Second)

	if got := f.queue.EstimateWait(key, 1550); got != 10*time.Second {
		t.Fatalf("estimate near alice = %v, want 10s", got)
	}
	if got := f.queue.EstimateWait(key, 1850); got != 15*time.Second {
		t.Fatalf("fallback estimate = %v, want 15s", got)
	}

	stats := f.queue.Stats()
	if len(stats) != 1 || stats[0].Waiting != 2 || stats[0].LongestWait != 10*time.Second || stats[0].AverageRating != 1850 {
		t.Fatalf("Stats() = %+v", stats)
	}
}

func TestEstimateFallbackFloor(t *testing.T) {
	entries := make([]*Entry, 10)
	for i := range entries {
		entries[i] = &Entry{UserID: string(rune('a' + i)), Rating: 2500, EnqueuedAt: testStart}
	}
	if got := estimate(entries, 1000, testStart); got != 5*time.Second {
		t.Fatalf("estimate = %v, want the 5s floor", got)
	}
}
