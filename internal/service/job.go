package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/target/sealbox/internal/core"
	"github.com/target/sealbox/internal/domain/model"
	apperrors "github.com/target/sealbox/internal/errors"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store  core.JobStore // Required: job record store
	Queue  core.JobQueue // Required: pending job queue
	Logger *slog.Logger  // Optional: structured logger
}

// JobService answers status polls and queue statistics. It never mutates a
// job record; after submission the inference consumer is the only writer.
type JobService struct {
	store  core.JobStore
	queue  core.JobQueue
	logger *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("JobQueue is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		store:  opts.Store,
		queue:  opts.Queue,
		logger: logger,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Status returns the client-facing view of a job. The id is format-checked
// before any broker lookup; an unknown id and an expired one are
// indistinguishable to the caller.
func (s *JobService) Status(ctx context.Context, id string) (*model.StatusView, error) {
	if !model.ValidJobID(id) {
		return nil, apperrors.InvalidJobID("job id must be a UUID")
	}

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if job == nil {
		return nil, apperrors.NotFound("job not found or expired")
	}

	view := job.View()
	return &view, nil
}

// QueueStats reports the current queue depth and the lifetime submission
// count, fetched in parallel. This is an operational signal, not a substitute
// for polling a job id.
func (s *JobService) QueueStats(ctx context.Context) (*model.QueueStats, error) {
	var stats model.QueueStats

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.queue.Length(ctx)
		if err != nil {
			return fmt.Errorf("queue length: %w", err)
		}
		stats.QueueLength = n
		return nil
	})
	g.Go(func() error {
		n, err := s.queue.TotalEnqueued(ctx)
		if err != nil {
			return fmt.Errorf("total enqueued: %w", err)
		}
		stats.TotalJobs = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &stats, nil
}
