package config

import (
	"fmt"
	"strings"
)

// StorageBackend selects where staged payload blobs live.
type StorageBackend string

const (
	// StorageBackendFS stages blobs in a local directory.
	StorageBackendFS StorageBackend = "fs"
	// StorageBackendMinio stages blobs in an S3-compatible bucket.
	StorageBackendMinio StorageBackend = "minio"
)

// UnmarshalText implements encoding.TextUnmarshaler for StorageBackend.
func (b *StorageBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "fs", "minio":
		*b = StorageBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid StorageBackend: %q (valid options: fs, minio)", v)
	}
}

// FSStorageConfig contains local directory staging configuration.
type FSStorageConfig struct {
	// Dir is the directory staged blobs are written to. Created on start
	// when missing.
	Dir string `env:"DIR" envDefault:"data/blobs"`
}

// MinioStorageConfig contains S3-compatible staging configuration.
type MinioStorageConfig struct {
	Endpoint  string `env:"ENDPOINT"   envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET"     envDefault:"sealbox-staging"`
	UseSSL    bool   `env:"USE_SSL"    envDefault:"false"`
}

// StorageConfig groups staged blob storage and the audit file sink.
type StorageConfig struct {
	// Backend selects the blob store implementation.
	Backend StorageBackend `env:"STORAGE_BACKEND" envDefault:"fs"`

	// FS configuration (used when Backend=fs).
	FS FSStorageConfig `envPrefix:"STORAGE_FS_"`

	// Minio configuration (used when Backend=minio).
	Minio MinioStorageConfig `envPrefix:"STORAGE_MINIO_"`

	// AuditPath is the append-only JSONL audit trail file. Used when the
	// audit database is disabled.
	AuditPath string `env:"STORAGE_AUDIT_PATH" envDefault:"data/audit.jsonl"`
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	if s.Backend == "" {
		s.Backend = StorageBackendFS
	}

	s.FS.Dir = strings.TrimSpace(s.FS.Dir)
	if s.FS.Dir == "" {
		s.FS.Dir = "data/blobs"
	}

	s.Minio.Endpoint = strings.TrimSpace(s.Minio.Endpoint)
	s.Minio.Bucket = strings.TrimSpace(s.Minio.Bucket)

	s.AuditPath = strings.TrimSpace(s.AuditPath)
	if s.AuditPath == "" {
		s.AuditPath = "data/audit.jsonl"
	}
}
