package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/target/sealbox/internal/audit"
	"github.com/target/sealbox/internal/core"
	"github.com/target/sealbox/internal/domain/model"
	apperrors "github.com/target/sealbox/internal/errors"
	"github.com/target/sealbox/internal/observability/metrics"
	"github.com/target/sealbox/internal/observability/statsd"
	"github.com/target/sealbox/internal/policy"
)

// clientFailureMessage is the only failure text a client ever sees for
// internal errors. Raw error detail stays in the server log.
const clientFailureMessage = "processing failed"

// ProcessorServiceOptions groups dependencies for ProcessorService.
type ProcessorServiceOptions struct {
	Store     core.JobStore        // Required: job record store
	Blobs     core.BlobStore       // Required: payload staging store
	Decrypter core.Decrypter       // Required: payload decrypter
	Engine    core.InferenceEngine // Required: inference engine
	Guard     *policy.Engine       // Required: egress policy guard
	Audit     *audit.Writer        // Required: signed decision trail
	Logger    *slog.Logger         // Optional: structured logger
	Metrics   statsd.Sink          // Optional: statsd sink

	JobTTL time.Duration    // Optional: record lifetime on writes, defaults to 1h
	Now    func() time.Time // Optional: clock override, for tests
}

// ProcessorService drives one dequeued job to a terminal state: policy
// pre-check, decrypt, infer, policy post-check, terminal write. Every policy
// evaluation lands in the audit trail before its effect applies, and the
// staged payload is removed whichever way the job ends.
type ProcessorService struct {
	store     core.JobStore
	blobs     core.BlobStore
	decrypter core.Decrypter
	engine    core.InferenceEngine
	guard     *policy.Engine
	audit     *audit.Writer
	logger    *slog.Logger
	metrics   statsd.Sink

	jobTTL time.Duration
	now    func() time.Time
}

// NewProcessorService constructs a new ProcessorService.
func NewProcessorService(opts ProcessorServiceOptions) (*ProcessorService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Blobs == nil {
		return nil, errors.New("BlobStore is required")
	}
	if opts.Decrypter == nil {
		return nil, errors.New("Decrypter is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("InferenceEngine is required")
	}
	if opts.Guard == nil {
		return nil, errors.New("policy engine is required")
	}
	if opts.Audit == nil {
		return nil, errors.New("audit writer is required")
	}

	ttl := opts.JobTTL
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "processor_service")
	}

	return &ProcessorService{
		store:     opts.Store,
		blobs:     opts.Blobs,
		decrypter: opts.Decrypter,
		engine:    opts.Engine,
		guard:     opts.Guard,
		audit:     opts.Audit,
		logger:    logger,
		metrics:   opts.Metrics,
		jobTTL:    ttl,
		now:       now,
	}, nil
}

// MustNewProcessorService constructs a new ProcessorService and panics on error.
func MustNewProcessorService(opts ProcessorServiceOptions) *ProcessorService {
	svc, err := NewProcessorService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ProcessorService: %v", err))
	}
	return svc
}

// Process runs one dequeued job to a terminal state. The returned error means
// the outcome could not be recorded; decrypt, inference, and policy failures
// are written into the job record and return nil.
func (s *ProcessorService) Process(ctx context.Context, job *model.Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	start := s.now()

	// Duplicate delivery guard. The stored record is authoritative; the
	// queue's copy only seeds processing when the record expired in flight.
	current, err := s.store.Get(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", job.ID, err)
	}
	if current != nil {
		if current.Status != model.JobStatusQueued {
			if s.logger != nil {
				s.logger.InfoContext(ctx, "skipping duplicate delivery",
					slog.String("job_id", job.ID),
					slog.String("status", string(current.Status)),
				)
			}
			return nil
		}
		job = current
	}

	if err := job.MarkProcessing(s.now()); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	if err := s.store.Save(ctx, job, s.jobTTL); err != nil {
		return fmt.Errorf("save processing state for job %s: %w", job.ID, err)
	}

	result, runErr := s.run(ctx, job)
	if runErr != nil {
		return s.fail(ctx, job, start, runErr)
	}
	return s.complete(ctx, job, start, result)
}

// run executes the guarded pipeline for a job already marked processing. A
// panic anywhere inside is recovered into an error so one poisoned payload
// cannot take the worker down.
func (s *ProcessorService) run(ctx context.Context, job *model.Job) (result model.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("processing panic: %v", rec)
		}
	}()

	pre := s.guard.Evaluate(model.PointPre, policy.SubmissionDocument(job))
	if err := s.record(ctx, job, model.PointPre, pre); err != nil {
		return nil, err
	}
	if pre.Effect == model.EffectDeny {
		return nil, apperrors.EgressDenied(pre.Reason)
	}

	ciphertext, err := s.fetch(ctx, job.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("fetch staged payload: %w", err)
	}

	plaintext, err := s.decrypter.Decrypt(ctx, ciphertext, job.Context)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}

	raw, err := s.engine.Infer(ctx, plaintext, job)
	if err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}

	post := s.guard.Evaluate(model.PointPost, policy.ResultDocument(raw))
	if err := s.record(ctx, job, model.PointPost, post); err != nil {
		return nil, err
	}
	switch post.Effect {
	case model.EffectDeny:
		return nil, apperrors.EgressDenied(post.Reason)
	case model.EffectRedact:
		var fields []string
		if post.Redactions != nil {
			fields = post.Redactions.Fields
		}
		return policy.ApplyRedactions(raw, fields), nil
	default:
		return raw, nil
	}
}

func (s *ProcessorService) fetch(ctx context.Context, blobKey string) ([]byte, error) {
	blob, err := s.blobs.Get(ctx, blobKey)
	if err != nil {
		return nil, err
	}
	defer blob.Close()
	return io.ReadAll(blob)
}

// record appends the signed audit record for a decision and emits the
// decision metric. An append failure propagates so the evaluation fails
// closed: an unaccountable guard passes no traffic.
func (s *ProcessorService) record(
	ctx context.Context,
	job *model.Job,
	point model.EvaluationPoint,
	decision model.Decision,
) error {
	err := s.audit.Record(ctx, audit.Entry{
		Point:        point,
		Decision:     decision,
		JobID:        job.ID,
		Context:      job.Context,
		PolicyDigest: s.guard.Digest(),
	})
	if err != nil {
		return fmt.Errorf("audit %s decision for job %s: %w", point, job.ID, err)
	}

	metrics.EmitPolicyDecision(s.metrics, string(point), string(decision.Effect))
	return nil
}

// complete writes the terminal completed state and drops the staged payload.
func (s *ProcessorService) complete(
	ctx context.Context,
	job *model.Job,
	start time.Time,
	result model.Result,
) error {
	if err := job.MarkCompleted(result, s.now()); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	if err := s.store.Save(ctx, job, s.jobTTL); err != nil {
		return fmt.Errorf("save completed state for job %s: %w", job.ID, err)
	}
	s.discard(ctx, job)

	elapsed := s.now().Sub(start)
	metrics.EmitJobOutcome(s.metrics, metrics.JobOutcome{
		Completed: true,
		Duration:  elapsed,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job completed",
			slog.String("job_id", job.ID),
			slog.Duration("elapsed", elapsed),
		)
	}
	return nil
}

// fail writes the terminal failed state. The client-visible error field gets
// only the sanitized message; the cause goes to the log.
func (s *ProcessorService) fail(ctx context.Context, job *model.Job, start time.Time, cause error) error {
	message := sanitizeFailure(cause)
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "job failed",
			slog.String("job_id", job.ID),
			slog.String("client_message", message),
			slog.Any("error", cause),
		)
	}

	if err := job.MarkFailed(message, s.now()); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	if err := s.store.Save(ctx, job, s.jobTTL); err != nil {
		return fmt.Errorf("save failed state for job %s: %w", job.ID, err)
	}
	s.discard(ctx, job)

	metrics.EmitJobOutcome(s.metrics, metrics.JobOutcome{
		Reason:   failureReason(cause),
		Duration: s.now().Sub(start),
		Err:      cause,
	})
	return nil
}

// discard drops the staged payload once the job is terminal. Ciphertext has
// no business outliving its job.
func (s *ProcessorService) discard(ctx context.Context, job *model.Job) {
	if job.BlobKey == "" {
		return
	}
	if err := s.blobs.Remove(ctx, job.BlobKey); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to remove staged blob",
			slog.String("job_id", job.ID),
			slog.String("blob_key", job.BlobKey),
			slog.Any("error", err),
		)
	}
}

// sanitizeFailure maps an internal failure to the client-visible message
// stored on the job. Policy denials carry their decision reason; everything
// else collapses to a generic message so raw error text never leaks.
func sanitizeFailure(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeEgressDenied {
		return fmt.Sprintf("%s: %s", appErr.Code, appErr.Message)
	}
	return clientFailureMessage
}

// failureReason tags the failure metric with a low-cardinality token.
func failureReason(err error) string {
	if code := apperrors.GetCode(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "internal"
}
