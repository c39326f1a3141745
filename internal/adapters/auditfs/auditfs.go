// Package auditfs appends audit records to a local JSONL file, one record
// per line. It is the single-node implementation of the audit sink port; the
// Postgres sink serves multi-replica deployments.
package auditfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/target/sealbox/internal/domain/model"
)

// Sink writes one JSON line per record. Safe for concurrent use.
type Sink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// New opens (or creates) the trail file in append-only mode.
func New(path string) (*Sink, error) {
	if path == "" {
		return nil, errors.New("audit trail path cannot be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create audit trail dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit trail: %w", err)
	}

	return &Sink{f: f, enc: json.NewEncoder(f)}, nil
}

// Append writes the record and syncs it to disk. A record the kernel has not
// durably accepted is not an audit record.
func (s *Sink) Append(ctx context.Context, rec model.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync audit trail: %w", err)
	}

	return nil
}

// Close releases the trail file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
