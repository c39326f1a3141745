// Package miniostore stages encrypted payloads in an S3-compatible bucket
// (MinIO, AWS S3). It is the production implementation of the blob store
// port; multi-replica gateways and consumers share the staging area through
// the bucket instead of a local disk.
package miniostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ensureBucketTimeout bounds the connectivity check at startup.
const ensureBucketTimeout = 10 * time.Second

// Store holds staged payloads as bucket objects. Safe for concurrent use.
type Store struct {
	client *minio.Client
	bucket string
}

// Options configures the S3-compatible connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New creates the store, validating connectivity and creating the bucket if
// it does not exist yet.
func New(opts Options) (*Store, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, errors.New("minio credentials are required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}

	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ensureBucketTimeout)
	defer cancel()

	exists, err := cli.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Store{client: cli, bucket: opts.Bucket}, nil
}

// Put streams the payload to the bucket. size may be -1 when unknown; MinIO
// then falls back to multipart buffering.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error) {
	if key == "" {
		return 0, errors.New("blob key cannot be empty")
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return 0, fmt.Errorf("put blob %s: %w", key, err)
	}

	return info.Size, nil
}

// Get opens the staged payload. The Stat call surfaces a missing key now
// rather than on first read.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, errors.New("blob key cannot be empty")
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("stat blob %s: %w", key, err)
	}

	return obj, nil
}

// Remove deletes the staged payload. S3 removal of a missing key succeeds,
// matching the port contract.
func (s *Store) Remove(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("blob key cannot be empty")
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove blob %s: %w", key, err)
	}

	return nil
}
