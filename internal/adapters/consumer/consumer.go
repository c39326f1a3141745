// Package consumer runs the inference loop: workers drain the broker queue
// and hand each job to the processor service. The loop survives job
// failures, broker hiccups, and per-job panics; only context cancellation
// stops it.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/sealbox/internal/core"
	"github.com/target/sealbox/internal/domain/model"
	"github.com/target/sealbox/internal/observability/metrics"
	"github.com/target/sealbox/internal/observability/statsd"
)

// Defaults applied when the options leave them zero.
const (
	DefaultDequeueWait = 5 * time.Second
	DefaultBackoff     = time.Second

	depthGaugeInterval = 15 * time.Second
)

// Processor handles one dequeued job end to end. An error means the outcome
// could not be recorded, not that inference failed; inference failures are
// written into the job record and return nil.
type Processor interface {
	Process(ctx context.Context, job *model.Job) error
}

// RunnerOptions configures the consumer runner.
type RunnerOptions struct {
	Queue     core.JobQueue
	Processor Processor
	Logger    *slog.Logger

	// Workers is the in-process worker count. Defaults to 1; replication is
	// the intended scaling lever.
	Workers int
	// DequeueWait bounds each blocking pop. Defaults to 5s.
	DequeueWait time.Duration
	// Backoff is the pause after a broker error. Defaults to 1s.
	Backoff time.Duration
	// Metrics receives the queue depth gauge. Optional.
	Metrics statsd.Sink
}

// Runner pulls jobs from the queue and processes them until cancelled.
type Runner struct {
	queue   core.JobQueue
	proc    Processor
	logger  *slog.Logger
	workers int
	wait    time.Duration
	backoff time.Duration
	metrics statsd.Sink
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("processor is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	wait := opts.DequeueWait
	if wait <= 0 {
		wait = DefaultDequeueWait
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	return &Runner{
		queue:   opts.Queue,
		proc:    opts.Processor,
		logger:  logger,
		workers: workers,
		wait:    wait,
		backoff: backoff,
		metrics: opts.Metrics,
	}, nil
}

// MustNewRunner creates a Runner and panics on invalid options.
func MustNewRunner(opts RunnerOptions) *Runner {
	r, err := NewRunner(opts)
	if err != nil {
		panic(fmt.Sprintf("consumer.NewRunner: %v", err))
	}
	return r
}

// Run blocks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting inference consumer",
		slog.Int("workers", r.workers),
		slog.Duration("dequeue_wait", r.wait),
	)

	g, ctx := errgroup.WithContext(ctx)
	for range r.workers {
		g.Go(func() error { return r.workerLoop(ctx) })
	}
	g.Go(func() error { return r.depthGaugeLoop(ctx) })

	return g.Wait()
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		job, err := r.queue.Dequeue(ctx, r.wait)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient broker trouble: log, pause, resume.
			r.logger.ErrorContext(ctx, "dequeue failed, backing off",
				slog.Duration("backoff", r.backoff),
				slog.Any("error", err),
			)
			if !r.pause(ctx) {
				return ctx.Err()
			}
		case job == nil:
			// Bounded wait elapsed with an empty queue.
		default:
			r.processOne(ctx, job)
		}
	}
	return ctx.Err()
}

// processOne shields the loop from anything a single job can throw at it.
func (r *Runner) processOne(ctx context.Context, job *model.Job) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "panic while processing job",
				slog.String("job_id", job.ID),
				slog.Any("panic", rec),
			)
		}
	}()

	if err := r.proc.Process(ctx, job); err != nil {
		r.logger.ErrorContext(ctx, "job outcome could not be recorded",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}

func (r *Runner) depthGaugeLoop(ctx context.Context) error {
	ticker := time.NewTicker(depthGaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			depth, err := r.queue.Length(ctx)
			if err != nil {
				r.logger.WarnContext(ctx, "queue depth probe failed", slog.Any("error", err))
				continue
			}
			metrics.EmitQueueDepth(r.metrics, depth)
		}
	}
}

func (r *Runner) pause(ctx context.Context) bool {
	timer := time.NewTimer(r.backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
