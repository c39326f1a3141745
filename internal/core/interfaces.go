// Package core defines the ports (hexagonal interfaces) shared by the
// sealbox services and adapters. Services depend on these contracts, never
// on concrete Redis, MinIO, or Postgres implementations.
package core

import (
	"context"
	"io"
	"time"

	"github.com/target/sealbox/internal/domain/model"
)

// JobStore persists job records with a bounded lifetime.
type JobStore interface {
	// Save writes the job record and refreshes its TTL.
	Save(ctx context.Context, job *model.Job, ttl time.Duration) error

	// Get returns the job record, or (nil, nil) when the record is missing
	// or its TTL has expired.
	Get(ctx context.Context, id string) (*model.Job, error)

	// Remove deletes the job record. Removing a missing record is not an error.
	Remove(ctx context.Context, id string) error
}

// JobQueue is the FIFO hand-off between the upload door and the inference
// consumers. Enqueue and Dequeue operate on full job records so a consumer
// can start from the queue payload even if the store copy raced an expiry.
type JobQueue interface {
	Enqueue(ctx context.Context, job *model.Job) error

	// Dequeue blocks up to wait for the next job and returns (nil, nil) when
	// the wait elapses with the queue still empty.
	Dequeue(ctx context.Context, wait time.Duration) (*model.Job, error)

	// Length reports the number of jobs currently waiting.
	Length(ctx context.Context) (int64, error)

	// TotalEnqueued reports the monotonic count of jobs ever enqueued.
	TotalEnqueued(ctx context.Context) (int64, error)
}

// Verdict is the outcome of a rate limit check.
type Verdict struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RateLimiter enforces a per-client sliding-window submission budget.
type RateLimiter interface {
	Allow(ctx context.Context, clientID string) (Verdict, error)
}

// BlobStore stages encrypted payloads between upload and inference.
type BlobStore interface {
	// Put streams the payload under key and returns the number of bytes written.
	// size may be -1 when the length is not known up front.
	Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error)

	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Remove deletes the staged payload. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// AuditSink records policy decisions durably. Append errors must surface to
// the caller unchanged so evaluation can fail closed on a broken trail.
type AuditSink interface {
	Append(ctx context.Context, record model.AuditRecord) error
}

// Decrypter recovers plaintext from a staged payload. The encryption context
// is the validated metadata captured at upload time.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte, encCtx map[string]string) ([]byte, error)
}

// InferenceEngine runs the model over decrypted payload bytes.
type InferenceEngine interface {
	Infer(ctx context.Context, plaintext []byte, job *model.Job) (model.Result, error)
}
