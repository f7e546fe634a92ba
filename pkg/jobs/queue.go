package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when enqueueing before Start.
	ErrNotStarted = errors.New("queue not started")
	// ErrStopped is returned once the queue context is cancelled.
	ErrStopped = errors.New("queue stopped")
	// ErrFull is returned when the buffer is saturated and the caller asked not to block.
	ErrFull = errors.New("queue full")
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// DeadLetterFunc observes jobs that exhausted their retries.
type DeadLetterFunc func(Job, error)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	// DrainTimeout bounds how long Stop keeps processing buffered jobs.
	DrainTimeout time.Duration
	Logger       *zap.Logger
	OnDead       DeadLetterFunc
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler

	workers      int
	maxRetries   int
	retryDelay   time.Duration
	drainTimeout time.Duration
	logger       *zap.Logger
	onDead       DeadLetterFunc

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:         name,
		handler:      handler,
		workers:      cfg.Workers,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		drainTimeout: cfg.DrainTimeout,
		logger:       cfg.Logger,
		onDead:       cfg.OnDead,
		jobs:         make(chan Job, cfg.BufferSize),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop refuses new jobs, lets workers run what is already buffered for at most
// DrainTimeout, then waits for them to exit. Jobs left over are dead-lettered.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	dropped := 0
	for len(q.jobs) > 0 {
		dropped++
		q.dead(<-q.jobs, ErrStopped)
	}
	q.logger.Sugar().Infow("queue stopped", "queue", q.name, "dropped", dropped)
}

// Enqueue pushes a job onto the queue, blocking while the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	return q.enqueue(context.Background(), job, true)
}

// TryEnqueue pushes a job without blocking on a full buffer. ctx bounds the attempt.
func (q *Queue) TryEnqueue(ctx context.Context, job Job) error {
	return q.enqueue(ctx, job, false)
}

func (q *Queue) enqueue(ctx context.Context, job Job, block bool) error {
	q.mu.Lock()
	qctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("%s: %w", q.name, ErrNotStarted)
	}
	if qctx.Err() != nil {
		return fmt.Errorf("%s: %w", q.name, ErrStopped)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	if !block {
		select {
		case <-qctx.Done():
			return fmt.Errorf("%s: %w", q.name, ErrStopped)
		case <-ctx.Done():
			return ctx.Err()
		case q.jobs <- job:
			return nil
		default:
			return fmt.Errorf("%s: %w", q.name, ErrFull)
		}
	}

	select {
	case <-qctx.Done():
		return fmt.Errorf("%s: %w", q.name, ErrStopped)
	case <-ctx.Done():
		return ctx.Err()
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		if q.ctx.Err() != nil {
			q.drain()
			return
		}
		select {
		case <-q.ctx.Done():
		case job := <-q.jobs:
			if err := q.handler(q.ctx, job); err != nil {
				q.handleFailure(job, err)
			}
		}
	}
}

// drain runs buffered jobs once each after Stop. Failures are not retried.
func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(q.ctx), q.drainTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.handler(ctx, job); err != nil {
				job.Attempt++
				q.dead(job, err)
			}
		default:
			return
		}
	}
}

func (q *Queue) dead(job Job, err error) {
	q.logger.Sugar().Errorw("job dropped", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempts", job.Attempt, "error", err)
	if q.onDead != nil {
		q.onDead(job, err)
	}
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.dead(job, err)
		return
	}
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

	go func(j Job) {
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			q.dead(j, fmt.Errorf("%s: retry abandoned: %w", q.name, ErrStopped))
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.dead(j, err)
			}
		}
	}(job)
}
