package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/opsforge/tenantcore/internal/config"
	"github.com/opsforge/tenantcore/internal/metrics"
	"github.com/opsforge/tenantcore/internal/queue"
)

// Queue is the slice of the durable queue the worker pool drives.
// *queue.RedisQueue satisfies it.
type Queue interface {
	Name() string
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, delay time.Duration) error
	Complete(ctx context.Context, job *queue.Job) error
	Fail(ctx context.Context, job *queue.Job, jobErr string) error
}

// Pool drains one queue with a fixed number of workers. Workers share no
// in-process state; all coordination goes through the queue's atomic
// dequeue.
type Pool struct {
	queue    Queue
	router   *Router
	executor Executor
	metrics  *metrics.Collector
	logger   *zap.Logger
	cfg      config.QueueConfig
	limiter  *rate.Limiter
	wg       sync.WaitGroup
}

func NewPool(q Queue, router *Router, executor Executor, m *metrics.Collector, logger *zap.Logger, cfg config.QueueConfig) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 5 * time.Second
	}

	// The limiter caps job starts per second across the whole pool,
	// independent of concurrency.
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = cfg.RatePerSecond
	}

	return &Pool{
		queue:    q,
		router:   router,
		executor: executor,
		metrics:  m,
		logger:   logger.With(zap.String("queue", q.Name())),
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// Start runs the pool until ctx is cancelled and all workers have drained.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("worker_count", p.cfg.Concurrency))

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}

	<-ctx.Done()
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker stopped")
			return
		default:
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		job, err := p.queue.Dequeue(ctx, p.cfg.DequeueTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			logger.Error("Failed to dequeue job", zap.Error(err))
			continue
		}

		p.process(ctx, logger, job)
	}
}

// process runs one attempt of a claimed job: precondition check, mark
// in-progress, dispatch, then persist the outcome. The per-job transition
// order pending -> in-progress -> terminal is the only ordering invariant
// the engine promises.
func (p *Pool) process(ctx context.Context, logger *zap.Logger, job *queue.Job) {
	start := time.Now()
	job.Attempts++
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = p.cfg.Attempts
	}
	firstAttempt := job.Attempts == 1

	logger.Debug("Processing job",
		zap.String("job_id", job.ID),
		zap.String("job_type", job.Type),
		zap.Int("attempt", job.Attempts),
	)

	// A record whose state has already moved on must not be silently
	// retried; the job dies here without touching the record. A read
	// failure is not a verdict on the record, so it goes back into the
	// retry cycle instead.
	if err := p.executor.CheckPrecondition(ctx, job, firstAttempt); err != nil {
		if !errors.Is(err, ErrPrecondition) {
			logger.Error("Failed to check job precondition", zap.Error(err), zap.String("job_id", job.ID))
			p.retryOrFail(ctx, logger, job, err, start)
			return
		}
		logger.Error("Job precondition failed",
			zap.Error(err),
			zap.String("job_id", job.ID),
		)
		if ferr := p.queue.Fail(ctx, job, err.Error()); ferr != nil {
			logger.Error("Failed to record precondition failure", zap.Error(ferr), zap.String("job_id", job.ID))
		}
		p.metrics.RecordJob(p.queue.Name(), job.Type, "precondition_failed", time.Since(start))
		return
	}

	if firstAttempt {
		if err := p.executor.MarkStarted(ctx, job); err != nil {
			logger.Error("Failed to mark job started", zap.Error(err), zap.String("job_id", job.ID))
			p.retryOrFail(ctx, logger, job, err, start)
			return
		}
	}

	result, err := p.router.Dispatch(ctx, job)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			logger.Error("Job rejected", zap.Error(err), zap.String("job_id", job.ID))
			if merr := p.executor.MarkFailed(ctx, job, err.Error()); merr != nil {
				logger.Error("Failed to persist rejection", zap.Error(merr), zap.String("job_id", job.ID))
			}
			if ferr := p.queue.Fail(ctx, job, err.Error()); ferr != nil {
				logger.Error("Failed to finish rejected job", zap.Error(ferr), zap.String("job_id", job.ID))
			}
			p.metrics.RecordJob(p.queue.Name(), job.Type, "rejected", time.Since(start))
			return
		}
		p.retryOrFail(ctx, logger, job, err, start)
		return
	}

	if err := p.executor.MarkSucceeded(ctx, job, result); err != nil {
		// The handler ran but the terminal state did not persist; the
		// retry cycle re-runs the attempt (at-least-once execution).
		logger.Error("Failed to persist job success", zap.Error(err), zap.String("job_id", job.ID))
		p.retryOrFail(ctx, logger, job, err, start)
		return
	}

	if err := p.queue.Complete(ctx, job); err != nil {
		logger.Error("Failed to complete job", zap.Error(err), zap.String("job_id", job.ID))
	}
	p.metrics.RecordJob(p.queue.Name(), job.Type, "completed", time.Since(start))

	logger.Debug("Job completed",
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempts),
		zap.Duration("duration", time.Since(start)),
	)
}

func (p *Pool) retryOrFail(ctx context.Context, logger *zap.Logger, job *queue.Job, jobErr error, start time.Time) {
	if job.Attempts < job.MaxAttempts {
		delay := Backoff(p.cfg.BackoffBase, job.Attempts)
		logger.Warn("Job attempt failed, scheduling retry",
			zap.Error(jobErr),
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempts),
			zap.Duration("delay", delay),
		)
		if err := p.queue.Retry(ctx, job, delay); err != nil {
			logger.Error("Failed to schedule retry", zap.Error(err), zap.String("job_id", job.ID))
		}
		p.metrics.RecordRetry(p.queue.Name(), job.Type)
		return
	}

	logger.Error("Job attempts exhausted",
		zap.Error(jobErr),
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempts),
	)
	if err := p.executor.MarkFailed(ctx, job, jobErr.Error()); err != nil {
		logger.Error("Failed to persist terminal failure", zap.Error(err), zap.String("job_id", job.ID))
	}
	if err := p.queue.Fail(ctx, job, jobErr.Error()); err != nil {
		logger.Error("Failed to finish failed job", zap.Error(err), zap.String("job_id", job.ID))
	}
	p.metrics.RecordJob(p.queue.Name(), job.Type, "failed", time.Since(start))
}
