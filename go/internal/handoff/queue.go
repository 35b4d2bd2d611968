// Package handoff runs fire-and-forget work that must not block a game:
// archiving results, publishing events and requesting analysis.
package handoff

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/apperr"
)

const (
	defaultWorkers      = 4
	defaultQueueSize    = 1024
	defaultMaxTries     = 5
	defaultMaxElapsed   = 30 * time.Second
	defaultAttemptLimit = 10 * time.Second
	defaultDrainTimeout = 5 * time.Second
)

// Config tunes the queue. Zero values fall back to defaults.
type Config struct {
	Workers         int
	QueueSize       int
	MaxTries        uint
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	AttemptTimeout  time.Duration
	DrainTimeout    time.Duration
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Stats counts what the queue has done since start.
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
}

// Queue is a bounded worker pool. Submit never blocks; tasks that fail with a
// transient error are retried with exponential backoff.
type Queue struct {
	cfg    Config
	workCh chan task

	mu     sync.RWMutex
	closed bool

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a queue. Call Run to start the workers.
func New(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = defaultMaxElapsed
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptLimit
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	return &Queue{
		cfg:    cfg,
		workCh: make(chan task, cfg.QueueSize),
	}
}

// Submit enqueues fn under name. It returns false when the queue is full or
// shutting down.
func (q *Queue) Submit(name string, fn func(ctx context.Context) error) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.workCh <- task{name: name, fn: fn}:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		Pending:   len(q.workCh),
	}
}

// Run starts the worker pool and blocks until ctx is done. Tasks still running
// or queued at shutdown share DrainTimeout to finish; after that their
// context is canceled.
func (q *Queue) Run(ctx context.Context) error {
	log.Info().Int("workers", q.cfg.Workers).Int("queue_size", q.cfg.QueueSize).Msg("hand-off queue started")

	taskCtx, stopTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer stopTasks()

	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Workers; i++ {
		wg.Add(1)
		go q.worker(ctx, taskCtx, &wg, i)
	}
	<-ctx.Done()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	drainTimer := time.AfterFunc(q.cfg.DrainTimeout, stopTasks)
	defer drainTimer.Stop()
	wg.Wait()

	drained := 0
	for {
		select {
		case t := <-q.workCh:
			q.execute(taskCtx, t)
			drained++
		default:
			log.Info().Int("drained", drained).Msg("hand-off queue stopped")
			return nil
		}
	}
}

// worker pulls tasks until ctx is done. Tasks run under taskCtx so shutdown
// does not cut off one that is already in progress.
func (q *Queue) worker(ctx, taskCtx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.workCh:
			log.Debug().Str("task", t.name).Int("worker_id", workerID).Msg("worker handling task")
			q.execute(taskCtx, t)
		}
	}
}

func (q *Queue) execute(ctx context.Context, t task) {
	start := time.Now()
	attempts := 0

	bo := backoff.NewExponentialBackOff()
	if q.cfg.InitialInterval > 0 {
		bo.InitialInterval = q.cfg.InitialInterval
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, q.cfg.AttemptTimeout)
		defer cancel()
		err := t.fn(attemptCtx)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(q.cfg.MaxTries),
		backoff.WithMaxElapsedTime(q.cfg.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Str("task", t.name).Dur("retry_in", next).Msg("hand-off task failed, retrying")
		}),
	)
	if err != nil {
		q.failed.Add(1)
		log.Error().
			Err(err).
			Str("task", t.name).
			Int("attempts", attempts).
			Dur("elapsed", time.Since(start)).
			Msg("hand-off task gave up")
		return
	}
	q.processed.Add(1)
}

// retryable treats everything except caller mistakes as transient.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound:
		return false
	}
	return true
}
