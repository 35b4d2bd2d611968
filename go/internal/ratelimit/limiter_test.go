package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

var testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(rules map[string]Rule) (*Limiter, *clockwork.FakeClock) {
	clk := clockwork.NewFakeClockAt(testStart)
	return New(NewMemoryStore(clk), clk, rules), clk
}

func TestBurstWindow(t *testing.T) {
	l, clk := newTestLimiter(map[string]Rule{
		"move": {Burst: Window{Limit: 3, Period: time.Second}, Sustained: Window{Limit: 100, Period: time.Minute}},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d := l.Allow(ctx, "move", "alice", ""); !d.Allowed {
			t.Fatalf("hit %d denied", i+1)
		}
	}
	d := l.Allow(ctx, "move", "alice", "")
	if d.Allowed || d.Window != "burst" || d.RetryAfter != time.Second {
		t.Fatalf("fourth hit = %+v, want burst denial with 1s retry", d)
	}
	if d := l.Allow(ctx, "move", "bob", ""); !d.Allowed {
		t.Fatalf("another user was limited")
	}

	clk.Advance(time.Second)
	if d := l.Allow(ctx, "move", "alice", ""); !d.Allowed {
		t.Fatalf("hit in the next window denied")
	}
}

func TestSustainedWindow(t *testing.T) {
	l, clk := newTestLimiter(map[string]Rule{
		"draw.offer": {Burst: Window{Limit: 10, Period: time.Second}, Sustained: Window{Limit: 5, Period: time.Minute}},
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if d := l.Allow(ctx, "draw.offer", "alice", ""); !d.Allowed {
			t.Fatalf("hit %d denied", i+1)
		}
		clk.Advance(2 * time.Second)
	}
	d := l.Allow(ctx, "draw.offer", "alice", "")
	if d.Allowed || d.Window != "sustained" {
		t.Fatalf("sixth hit = %+v, want sustained denial", d)
	}
	if d.RetryAfter != 50*time.Second {
		t.Fatalf("retry after = %v, want 50s", d.RetryAfter)
	}
}

func TestAddressIsLimitedAcrossUsers(t *testing.T) {
	l, _ := newTestLimiter(map[string]Rule{
		"queue.join": {Burst: Window{Limit: 2, Period: time.Second}},
	})
	ctx := context.Background()

	l.Allow(ctx, "queue.join", "alice", "10.0.0.1")
	l.Allow(ctx, "queue.join", "bob", "10.0.0.1")
	if d := l.Allow(ctx, "queue.join", "carol", "10.0.0.1"); d.Allowed {
		t.Fatalf("third user on the same address allowed")
	}
	if d := l.Allow(ctx, "queue.join", "carol", "10.0.0.2"); !d.Allowed {
		t.Fatalf("user on another address denied")
	}
}

func TestDefaultRuleApplies(t *testing.T) {
	l, _ := newTestLimiter(nil)
	ctx := context.Background()
	for i := int64(0); i < DefaultRule.Burst.Limit; i++ {
		if d := l.Allow(ctx, "resign", "alice", ""); !d.Allowed {
			t.Fatalf("hit %d denied under the default rule", i+1)
		}
	}
	if d := l.Allow(ctx, "resign", "alice", ""); d.Allowed {
		t.Fatalf("default burst limit not enforced")
	}
}

func TestStoreFailureFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := New(NewRedisStore(client, ""), clockwork.NewFakeClockAt(testStart), map[string]Rule{
		"move": {Burst: Window{Limit: 1, Period: time.Second}},
	})
	for i := 0; i < 3; i++ {
		if d := l.Allow(context.Background(), "move", "alice", "10.0.0.1"); !d.Allowed {
			t.Fatalf("hit %d denied while the store is down", i+1)
		}
	}
}

func TestRedisKeyPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "gambit:rl:move:alice"},
		{"gambit:rl", "gambit:rl:move:alice"},
		{"gambit:rl:", "gambit:rl:move:alice"},
		{"staging", "staging:move:alice"},
	}
	for _, tt := range tests {
		if got := NewRedisStore(nil, tt.prefix).key("move:alice"); got != tt.want {
			t.Fatalf("key(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}
