package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/sealbox/internal/core"
	"github.com/target/sealbox/internal/domain/encctx"
	"github.com/target/sealbox/internal/domain/model"
	"github.com/target/sealbox/internal/domain/sniff"
	apperrors "github.com/target/sealbox/internal/errors"
	"github.com/target/sealbox/internal/observability/metrics"
	"github.com/target/sealbox/internal/observability/statsd"
)

// Pipeline defaults. Config may override both.
const (
	// DefaultMaxUploadBytes caps one submission payload at 10 MiB.
	DefaultMaxUploadBytes int64 = 10 << 20
	// DefaultJobTTL bounds how long a job record outlives its submission.
	DefaultJobTTL = time.Hour
)

// UploadServiceOptions groups dependencies for UploadService.
type UploadServiceOptions struct {
	Store   core.JobStore    // Required: job record store
	Queue   core.JobQueue    // Required: pending job queue
	Blobs   core.BlobStore   // Required: payload staging store
	Limiter core.RateLimiter // Required: per-client submission limiter
	Logger  *slog.Logger     // Optional: structured logger
	Metrics statsd.Sink      // Optional: statsd sink

	MaxUploadBytes int64         // Optional: payload cap, defaults to 10 MiB
	JobTTL         time.Duration // Optional: job record lifetime, defaults to 1h
}

// UploadService is the submission door: it stages the encrypted payload,
// runs the validation gauntlet (size, rate, sniffed type), and enqueues an
// accepted job. Validation order is fixed and the first failure wins; a
// rejected submission leaves nothing behind in the blob store.
type UploadService struct {
	store   core.JobStore
	queue   core.JobQueue
	blobs   core.BlobStore
	limiter core.RateLimiter
	logger  *slog.Logger
	metrics statsd.Sink

	maxUploadBytes int64
	jobTTL         time.Duration
}

// NewUploadService constructs a new UploadService.
func NewUploadService(opts UploadServiceOptions) (*UploadService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("JobQueue is required")
	}
	if opts.Blobs == nil {
		return nil, errors.New("BlobStore is required")
	}
	if opts.Limiter == nil {
		return nil, errors.New("RateLimiter is required")
	}

	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	ttl := opts.JobTTL
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "upload_service")
	}

	return &UploadService{
		store:          opts.Store,
		queue:          opts.Queue,
		blobs:          opts.Blobs,
		limiter:        opts.Limiter,
		logger:         logger,
		metrics:        opts.Metrics,
		maxUploadBytes: maxBytes,
		jobTTL:         ttl,
	}, nil
}

// MustNewUploadService constructs a new UploadService and panics on error.
func MustNewUploadService(opts UploadServiceOptions) *UploadService {
	svc, err := NewUploadService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create UploadService: %v", err))
	}
	return svc
}

// SubmitInput carries one upload through validation.
type SubmitInput struct {
	// Payload is the encrypted submission body, already transport-decoded.
	Payload io.Reader
	// Filename is the client-supplied display name.
	Filename string
	// DeclaredType is the media type the client claims the payload has.
	DeclaredType string
	// ClientID identifies the submitter for rate limiting.
	ClientID string
	// Context is the raw encryption context; only allowlisted keys survive.
	Context map[string]string
}

// Submit validates one submission and enqueues it for inference. Client
// failures come back as AppErrors with stable codes; anything else is an
// infrastructure error the transport layer renders as internal.
func (s *UploadService) Submit(ctx context.Context, input SubmitInput) (*model.Job, error) {
	if input.Payload == nil {
		return nil, s.reject(ctx, apperrors.InvalidInput("payload is required"))
	}
	if input.ClientID == "" {
		return nil, s.reject(ctx, apperrors.InvalidInput("client id is required"))
	}

	blobKey := uuid.NewString()
	written, prefix, err := s.stage(ctx, blobKey, input.Payload)
	if err != nil {
		return nil, fmt.Errorf("stage payload: %w", err)
	}

	if written > s.maxUploadBytes {
		s.discard(ctx, blobKey)
		return nil, s.reject(ctx, apperrors.FileTooLargef(
			"payload exceeds the %d byte limit", s.maxUploadBytes))
	}

	verdict, err := s.limiter.Allow(ctx, input.ClientID)
	if err != nil {
		s.discard(ctx, blobKey)
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !verdict.Allowed {
		s.discard(ctx, blobKey)
		return nil, s.reject(ctx, apperrors.RateLimited(
			"submission rate limit exceeded", verdict.RetryAfter))
	}

	sniffed := sniff.Detect(prefix)
	if !sniff.Accepted(sniffed) {
		s.discard(ctx, blobKey)
		return nil, s.reject(ctx, apperrors.InvalidFileType(fmt.Sprintf(
			"file content is not an accepted type (%s)",
			strings.Join(sniff.AcceptedTypes(), ", "))))
	}

	declared := normalizeMediaType(input.DeclaredType)
	mismatch := declared != "" && declared != string(sniffed)
	if mismatch && s.logger != nil {
		s.logger.WarnContext(ctx, "declared type disagrees with sniffed type",
			slog.String("declared", declared),
			slog.String("sniffed", string(sniffed)),
		)
	}

	job := model.NewJob(model.NewJobParams{
		Filename:     input.Filename,
		BlobKey:      blobKey,
		DeclaredType: declared,
		SniffedType:  string(sniffed),
		Size:         written,
		TypeMismatch: mismatch,
		Context:      encctx.Validate(input.Context),
	})

	// Save before push so a status poll issued right after the 202 resolves.
	if err := s.store.Save(ctx, job, s.jobTTL); err != nil {
		s.discard(ctx, blobKey)
		return nil, fmt.Errorf("save job record: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		// No consumer will ever see this job; take the record back out so
		// polls do not show a permanently queued ghost.
		s.removeRecord(ctx, job.ID)
		s.discard(ctx, blobKey)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.EmitUploadAccepted(s.metrics)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "submission accepted",
			slog.String("job_id", job.ID),
			slog.Int64("size", written),
			slog.String("sniffed_type", string(sniffed)),
			slog.Bool("type_mismatch", mismatch),
		)
	}

	return job, nil
}

// stage streams the payload into the blob store under key, teeing off the
// sniff prefix and counting bytes. The read limit leaves one byte of headroom
// above the cap so an oversize payload is detectable without buffering it.
func (s *UploadService) stage(ctx context.Context, key string, payload io.Reader) (int64, []byte, error) {
	var rec prefixRecorder
	limited := io.LimitReader(payload, s.maxUploadBytes+1)

	written, err := s.blobs.Put(ctx, key, io.TeeReader(limited, &rec), -1)
	if err != nil {
		s.discard(ctx, key)
		return 0, nil, err
	}
	return written, rec.prefix, nil
}

// discard removes a staged blob, logging rather than failing when the store
// does not cooperate.
func (s *UploadService) discard(ctx context.Context, key string) {
	if err := s.blobs.Remove(ctx, key); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to remove staged blob",
			slog.String("blob_key", key),
			slog.Any("error", err),
		)
	}
}

func (s *UploadService) removeRecord(ctx context.Context, id string) {
	if err := s.store.Remove(ctx, id); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to remove job record",
			slog.String("job_id", id),
			slog.Any("error", err),
		)
	}
}

// reject emits the rejection metric and log line for a client failure. The
// AppError passes through so the transport layer can render its code.
func (s *UploadService) reject(ctx context.Context, appErr *apperrors.AppError) error {
	metrics.EmitUploadRejected(s.metrics, string(appErr.Code))
	if s.logger != nil {
		s.logger.InfoContext(ctx, "submission rejected",
			slog.String("code", string(appErr.Code)),
			slog.String("reason", appErr.Message),
		)
	}
	return appErr
}

// prefixRecorder captures the first sniff.PrefixLen bytes of a stream.
type prefixRecorder struct {
	prefix []byte
}

func (p *prefixRecorder) Write(b []byte) (int, error) {
	if need := sniff.PrefixLen - len(p.prefix); need > 0 {
		if need > len(b) {
			need = len(b)
		}
		p.prefix = append(p.prefix, b[:need]...)
	}
	return len(b), nil
}

// normalizeMediaType lowercases a declared content type and drops parameters,
// so "image/JPEG; q=1" compares equal to the sniffer's "image/jpeg".
func normalizeMediaType(v string) string {
	v, _, _ = strings.Cut(v, ";")
	return strings.ToLower(strings.TrimSpace(v))
}
