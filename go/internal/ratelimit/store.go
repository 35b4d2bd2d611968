package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Store counts hits in fixed windows. Incr returns the count of key after the
// increment; the key expires after ttl.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisStore keeps counters in Redis so limits hold across server instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// DefaultRedisPrefix namespaces counters when no prefix is given.
const DefaultRedisPrefix = "gambit:rl"

// NewRedisStore wraps an existing client. Keys are stored as prefix:key.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	full := s.key(key)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, full)
	pipe.Expire(ctx, full, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	return incr.Val(), nil
}

type memoryCounter struct {
	count   int64
	expires time.Time
}

// MemoryStore is a single-process Store.
type MemoryStore struct {
	clk clockwork.Clock

	mu       sync.Mutex
	counters map[string]*memoryCounter
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(clk clockwork.Clock) *MemoryStore {
	return &MemoryStore{clk: clk, counters: make(map[string]*memoryCounter)}
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !now.Before(c.expires) {
		if len(s.counters) > 4096 {
			s.evict(now)
		}
		c = &memoryCounter{}
		s.counters[key] = c
	}
	c.count++
	c.expires = now.Add(ttl)
	return c.count, nil
}

// evict drops expired counters. Caller holds s.mu.
func (s *MemoryStore) evict(now time.Time) {
	for k, c := range s.counters {
		if !now.Before(c.expires) {
			delete(s.counters, k)
		}
	}
}
