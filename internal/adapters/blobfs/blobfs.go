// Package blobfs stages encrypted payloads in a local directory. It is the
// development and single-node implementation of the blob store port; the
// production deployment uses the MinIO adapter.
package blobfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store writes one file per staged payload under a root directory.
type Store struct {
	root string
}

// New creates the staging directory if needed and returns the store.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("staging directory cannot be empty")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	return &Store{root: root}, nil
}

// Put streams the payload to disk and returns the number of bytes written.
// When size is non-negative, a short or long write is an error.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	path := filepath.Join(s.root, key)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create blob %s: %w", key, err)
	}

	written, copyErr := io.Copy(f, r)
	closeErr := f.Close()

	if copyErr != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write blob %s: %w", key, copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("close blob %s: %w", key, closeErr)
	}
	if size >= 0 && written != size {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write blob %s: wrote %d bytes, expected %d", key, written, size)
	}

	return written, nil
}

// Get opens the staged payload for reading.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.root, key))
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}

	return f, nil
}

// Remove deletes the staged payload. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.root, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob %s: %w", key, err)
	}

	return nil
}

// validateKey rejects keys that could escape the staging directory. Keys are
// generated UUIDs in practice, so anything with path structure is a bug.
func validateKey(key string) error {
	if key == "" {
		return errors.New("blob key cannot be empty")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}
