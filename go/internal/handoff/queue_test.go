package handoff

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mcdev12/gambit/go/internal/apperr"
)

func startQueue(t *testing.T, cfg Config) (*Queue, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	q := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return q, cancel, done
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	q, _, _ := startQueue(t, Config{Workers: 1, InitialInterval: time.Millisecond})

	var calls atomic.Int32
	finished := make(chan struct{})
	ok := q.Submit("flaky", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("connection refused")
		}
		close(finished)
		return nil
	})
	if !ok {
		t.Fatalf("Submit() = false")
	}

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatalf("task did not succeed, calls = %d", calls.Load())
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestValidationErrorsAreNotRetried(t *testing.T) {
	q, cancel, done := startQueue(t, Config{Workers: 1, InitialInterval: time.Millisecond})

	var calls atomic.Int32
	q.Submit("bad", func(ctx context.Context) error {
		calls.Add(1)
		return apperr.Validation("bad_record", "record rejected")
	})

	deadline := time.Now().Add(5 * time.Second)
	for q.Stats().Failed == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("task never reported as failed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestSubmitDoesNotBlockWhenFull(t *testing.T) {
	q := New(Config{QueueSize: 1})
	noop := func(context.Context) error { return nil }

	if !q.Submit("first", noop) {
		t.Fatalf("first Submit() = false")
	}
	if q.Submit("second", noop) {
		t.Fatalf("Submit() on a full queue = true")
	}
	if got := q.Stats(); got.Dropped != 1 || got.Pending != 1 {
		t.Fatalf("Stats() = %+v, want 1 dropped and 1 pending", got)
	}
}

func TestRunDrainsQueuedTasksOnShutdown(t *testing.T) {
	q := New(Config{Workers: 1, QueueSize: 8})
	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		q.Submit("queued", func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := ran.Load(); got != 3 {
		t.Fatalf("tasks run = %d, want 3", got)
	}
	if q.Submit("late", func(context.Context) error { return nil }) {
		t.Fatalf("Submit() after shutdown = true")
	}
}

func TestShutdownLetsRunningTaskFinish(t *testing.T) {
	q := New(Config{Workers: 1, DrainTimeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()

	started := make(chan struct{})
	release := make(chan struct{})
	var attempts atomic.Int32
	q.Submit("persist_game", func(ctx context.Context) error {
		if attempts.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return ctx.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	<-started
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not return")
	}
	if got := q.Stats(); got.Processed != 1 || got.Failed != 0 {
		t.Fatalf("Stats() = %+v, want the running task processed", got)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestDrainTimeoutCancelsStuckTask(t *testing.T) {
	q := New(Config{Workers: 1, DrainTimeout: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()

	started := make(chan struct{})
	q.Submit("stuck", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not return after the drain timeout")
	}
	if got := q.Stats(); got.Failed != 1 {
		t.Fatalf("Stats() = %+v, want the stuck task failed", got)
	}
}
