// Package audit produces the signed, sequenced trail of egress policy
// decisions. Every evaluation appends exactly one record; a record that
// cannot be appended fails the evaluation upstream.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/target/sealbox/internal/core"
	"github.com/target/sealbox/internal/domain/model"
)

// Writer signs and sequences audit records before handing them to a sink.
type Writer struct {
	key  []byte
	sink core.AuditSink
	seq  atomic.Uint64
	now  func() time.Time
}

// WriterOptions groups the Writer dependencies.
type WriterOptions struct {
	// Key signs records (HMAC-SHA-256). Required.
	Key []byte
	// Sink receives the signed records. Required.
	Sink core.AuditSink
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewWriter creates a Writer.
func NewWriter(opts WriterOptions) (*Writer, error) {
	if len(opts.Key) == 0 {
		return nil, errors.New("audit signing key is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("audit sink is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Writer{
		key:  append([]byte(nil), opts.Key...),
		sink: opts.Sink,
		now:  opts.Now,
	}, nil
}

// MustNewWriter creates a Writer and panics on invalid options.
func MustNewWriter(opts WriterOptions) *Writer {
	w, err := NewWriter(opts)
	if err != nil {
		panic(fmt.Sprintf("audit.NewWriter: %v", err))
	}
	return w
}

// Entry carries one evaluation outcome into the trail.
type Entry struct {
	Point        model.EvaluationPoint
	Decision     model.Decision
	JobID        string
	Context      map[string]string
	PolicyDigest string
}

// Record appends a signed record for the entry. The error, if any, must
// propagate: a guard that cannot account for itself does not pass traffic.
func (w *Writer) Record(ctx context.Context, entry Entry) error {
	rec := model.AuditRecord{
		Timestamp:     w.now().UTC(),
		Sequence:      w.seq.Add(1),
		Point:         entry.Point,
		Effect:        entry.Decision.Effect,
		Reason:        entry.Decision.Reason,
		RuleID:        entry.Decision.RuleID,
		JobID:         entry.JobID,
		ContextDigest: ContextDigest(entry.Context),
		PolicyDigest:  entry.PolicyDigest,
	}
	rec.Signature = Sign(w.key, rec)

	if err := w.sink.Append(ctx, rec); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}

	return nil
}

// Sign computes the hex HMAC-SHA-256 signature over the canonical record
// bytes with the signature field cleared.
func Sign(key []byte, rec model.AuditRecord) string {
	rec.Signature = ""
	body, err := json.Marshal(rec)
	if err != nil {
		// AuditRecord contains only JSON-safe fields.
		panic(fmt.Sprintf("audit: marshal record: %v", err))
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the record's signature was produced with key.
func Verify(key []byte, rec model.AuditRecord) bool {
	return hmac.Equal([]byte(Sign(key, rec)), []byte(rec.Signature))
}

// ContextDigest hashes the canonical JSON of the encryption context. The
// trail stores only this digest, never raw context values, so audit storage
// cannot leak payload metadata.
func ContextDigest(encCtx map[string]string) string {
	if encCtx == nil {
		encCtx = map[string]string{}
	}

	body, err := json.Marshal(encCtx)
	if err != nil {
		panic(fmt.Sprintf("audit: marshal context: %v", err))
	}

	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
