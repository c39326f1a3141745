// Package pipeline contains hand-written stateful test doubles for the
// sealbox pipeline ports. They are safe for concurrent use and suited to
// flow tests where gomock expectation scripts would obscure the behavior
// under test.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/sealbox/internal/core"
	"github.com/target/sealbox/internal/domain/model"
)

// Ensure compile-time conformance to the ports.
var (
	_ core.JobStore        = (*MemJobStore)(nil)
	_ core.JobQueue        = (*MemJobQueue)(nil)
	_ core.RateLimiter     = (*StubRateLimiter)(nil)
	_ core.RateLimiter     = (*CountingRateLimiter)(nil)
	_ core.BlobStore       = (*MemBlobStore)(nil)
	_ core.AuditSink       = (*MemAuditSink)(nil)
	_ core.Decrypter       = (*StubDecrypter)(nil)
	_ core.InferenceEngine = (*StubEngine)(nil)
)

// MemJobStore keeps job records in memory. Records round-trip through JSON
// on every Save and Get, mirroring the broker's serialization boundary so
// aliasing bugs surface in unit tests.
type MemJobStore struct {
	mu   sync.Mutex
	jobs map[string][]byte
	ttls map[string]time.Duration

	SaveErr   error
	GetErr    error
	RemoveErr error
}

// NewMemJobStore creates an empty in-memory job store.
func NewMemJobStore() *MemJobStore {
	return &MemJobStore{
		jobs: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (s *MemJobStore) Save(_ context.Context, job *model.Job, ttl time.Duration) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = data
	s.ttls[job.ID] = ttl
	return nil
}

func (s *MemJobStore) Get(_ context.Context, id string) (*model.Job, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MemJobStore) Remove(_ context.Context, id string) error {
	if s.RemoveErr != nil {
		return s.RemoveErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	delete(s.ttls, id)
	return nil
}

// Expire drops a record as if its TTL elapsed.
func (s *MemJobStore) Expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	delete(s.ttls, id)
}

// TTL returns the lifetime recorded by the last Save for id.
func (s *MemJobStore) TTL(id string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[id]
}

// Len reports the number of stored records.
func (s *MemJobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// MemJobQueue is a channel-backed FIFO queue.
type MemJobQueue struct {
	ch    chan *model.Job
	total atomic.Int64

	EnqueueErr error
}

// NewMemJobQueue creates an in-memory queue with generous capacity.
func NewMemJobQueue() *MemJobQueue {
	return &MemJobQueue{ch: make(chan *model.Job, 1024)}
}

func (q *MemJobQueue) Enqueue(_ context.Context, job *model.Job) error {
	if q.EnqueueErr != nil {
		return q.EnqueueErr
	}
	select {
	case q.ch <- job:
	default:
		return errors.New("queue full")
	}
	q.total.Add(1)
	return nil
}

func (q *MemJobQueue) Dequeue(ctx context.Context, wait time.Duration) (*model.Job, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job := <-q.ch:
		return job, nil
	case <-timer.C:
		return nil, nil
	}
}

func (q *MemJobQueue) Length(context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

func (q *MemJobQueue) TotalEnqueued(context.Context) (int64, error) {
	return q.total.Load(), nil
}

// StubRateLimiter allows everything unless told otherwise and records the
// client ids it was asked about.
type StubRateLimiter struct {
	AllowFunc func(ctx context.Context, clientID string) (core.Verdict, error)
	Verdict   core.Verdict
	Err       error

	mu    sync.Mutex
	calls []string
}

// NewStubRateLimiter creates a limiter that always allows.
func NewStubRateLimiter() *StubRateLimiter {
	return &StubRateLimiter{Verdict: core.Verdict{Allowed: true, Remaining: 1}}
}

func (l *StubRateLimiter) Allow(ctx context.Context, clientID string) (core.Verdict, error) {
	l.mu.Lock()
	l.calls = append(l.calls, clientID)
	l.mu.Unlock()

	if l.AllowFunc != nil {
		return l.AllowFunc(ctx, clientID)
	}
	if l.Err != nil {
		return core.Verdict{}, l.Err
	}
	return l.Verdict, nil
}

// Calls returns the client ids seen so far.
func (l *StubRateLimiter) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// CountingRateLimiter allows a fixed number of requests per client and then
// denies with a fixed retry hint. The window never rolls over.
type CountingRateLimiter struct {
	mu     sync.Mutex
	limit  int64
	retry  time.Duration
	counts map[string]int64
}

// NewCountingRateLimiter creates a limiter with the given per-client budget.
func NewCountingRateLimiter(limit int64, retryAfter time.Duration) *CountingRateLimiter {
	return &CountingRateLimiter{
		limit:  limit,
		retry:  retryAfter,
		counts: make(map[string]int64),
	}
}

func (l *CountingRateLimiter) Allow(_ context.Context, clientID string) (core.Verdict, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[clientID]++
	if l.counts[clientID] > l.limit {
		return core.Verdict{Allowed: false, RetryAfter: l.retry}, nil
	}
	return core.Verdict{Allowed: true, Remaining: l.limit - l.counts[clientID]}, nil
}

// MemBlobStore keeps staged payloads in memory.
type MemBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	PutErr    error
	GetErr    error
	RemoveErr error
}

// NewMemBlobStore creates an empty in-memory blob store.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemBlobStore) Put(_ context.Context, key string, r io.Reader, size int64) (int64, error) {
	if s.PutErr != nil {
		return 0, s.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	if size >= 0 && int64(len(data)) != size {
		return int64(len(data)), fmt.Errorf("blob %q: declared %d bytes, read %d", key, size, len(data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return int64(len(data)), nil
}

func (s *MemBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

func (s *MemBlobStore) Remove(_ context.Context, key string) error {
	if s.RemoveErr != nil {
		return s.RemoveErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Has reports whether a blob is currently staged under key.
func (s *MemBlobStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok
}

// Len reports the number of staged blobs.
func (s *MemBlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// MemAuditSink collects appended records in memory.
type MemAuditSink struct {
	mu      sync.Mutex
	records []model.AuditRecord

	Err error
}

func (s *MemAuditSink) Append(_ context.Context, rec model.AuditRecord) error {
	if s.Err != nil {
		return s.Err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (s *MemAuditSink) Records() []model.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditRecord(nil), s.records...)
}

// StubDecrypter returns the ciphertext unchanged unless overridden.
type StubDecrypter struct {
	DecryptFunc func(ctx context.Context, ciphertext []byte, encCtx map[string]string) ([]byte, error)
	Err         error
}

func (d *StubDecrypter) Decrypt(ctx context.Context, ciphertext []byte, encCtx map[string]string) ([]byte, error) {
	if d.DecryptFunc != nil {
		return d.DecryptFunc(ctx, ciphertext, encCtx)
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return ciphertext, nil
}

// StubEngine returns a fixed result unless overridden.
type StubEngine struct {
	InferFunc func(ctx context.Context, plaintext []byte, job *model.Job) (model.Result, error)
	Result    model.Result
	Err       error
}

// NewStubEngine creates an engine with a plausible default result.
func NewStubEngine() *StubEngine {
	return &StubEngine{Result: model.Result{
		"cats":            float64(2),
		"confidence":      0.91,
		"model":           "stub",
		"processing_time": "0.01s",
	}}
}

func (e *StubEngine) Infer(ctx context.Context, plaintext []byte, job *model.Job) (model.Result, error) {
	if e.InferFunc != nil {
		return e.InferFunc(ctx, plaintext, job)
	}
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Result.Clone(), nil
}
