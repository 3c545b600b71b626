package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. A returned error schedules a retry until MaxRetries.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	// MaxRetryDelay caps the exponential backoff. Zero means 16x RetryDelay.
	MaxRetryDelay time.Duration
	Logger        *zap.Logger
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	Workers   int    `json:"workers"`
	Pending   int    `json:"pending"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Queue is an in-memory job dispatcher backed by a fixed goroutine pool.
type Queue struct {
	name    string
	handler Handler

	workers       int
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	logger        *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 16 * cfg.RetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:          name,
		handler:       handler,
		workers:       cfg.Workers,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		logger:        cfg.Logger.With(zap.String("queue", name)),
		jobs:          make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Calling it again is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// Stop cancels workers and waits for them to exit. Buffered jobs are abandoned.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.started = false
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped", zap.Int("abandoned", len(q.jobs)))
}

// Enqueue pushes a job onto the queue, blocking while the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

// Stats reports the queue state for readiness and diagnostics endpoints.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	running := q.started
	q.mu.Unlock()
	return Stats{
		Name:      q.name,
		Running:   running,
		Workers:   q.workers,
		Pending:   len(q.jobs),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.handler(q.ctx, job); err != nil {
				q.failed.Add(1)
				q.handleFailure(workerID, job, err)
				continue
			}
			q.processed.Add(1)
		}
	}
}

// backoff doubles the delay per attempt up to the cap.
func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.retryDelay
	for i := 1; i < attempt && delay < q.maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > q.maxRetryDelay {
		delay = q.maxRetryDelay
	}
	return delay
}

func (q *Queue) handleFailure(workerID int, job Job, err error) {
	job.Attempt++
	fields := []zap.Field{zap.Int("worker", workerID), zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Error(err)}
	if job.Attempt > q.maxRetries {
		q.dropped.Add(1)
		q.logger.Error("job exceeded retries", fields...)
		return
	}
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying", append(fields, zap.Duration("delay", delay))...)

	go func(j Job) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Error("failed to requeue job", zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}
