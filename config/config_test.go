package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestAppConfig_ParsePipelineEnv(t *testing.T) {
	t.Setenv("PIPELINE_MAX_UPLOAD_BYTES", "2097152")
	t.Setenv("PIPELINE_JOB_TTL", "30m")
	t.Setenv("PIPELINE_RATE_LIMIT", "5")
	t.Setenv("PIPELINE_RATE_WINDOW", "1m")
	t.Setenv("PIPELINE_CONSUMER_ENABLED", "false")
	t.Setenv("PIPELINE_WORKERS", "4")
	t.Setenv("PIPELINE_DEQUEUE_WAIT", "2s")
	t.Setenv("PIPELINE_BACKOFF", "500ms")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	expected := PipelineConfig{
		MaxUploadBytes:  2097152,
		JobTTL:          30 * time.Minute,
		RateLimit:       5,
		RateWindow:      time.Minute,
		ConsumerEnabled: false,
		Workers:         4,
		DequeueWait:     2 * time.Second,
		Backoff:         500 * time.Millisecond,
	}

	if !reflect.DeepEqual(cfg.Pipeline, expected) {
		t.Fatalf("unexpected pipeline configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Pipeline)
	}
}

func TestAppConfig_PipelineDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	if cfg.Pipeline.MaxUploadBytes != 10<<20 {
		t.Errorf("expected 10 MiB default payload cap, got %d", cfg.Pipeline.MaxUploadBytes)
	}
	if cfg.Pipeline.JobTTL != time.Hour {
		t.Errorf("expected 1h default job TTL, got %v", cfg.Pipeline.JobTTL)
	}
	if cfg.Pipeline.RateLimit != 100 {
		t.Errorf("expected default rate limit of 100, got %d", cfg.Pipeline.RateLimit)
	}
	if cfg.Pipeline.RateWindow != 15*time.Minute {
		t.Errorf("expected default rate window of 15m, got %v", cfg.Pipeline.RateWindow)
	}
	if !cfg.Pipeline.ConsumerEnabled {
		t.Error("expected consumer to be enabled by default")
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("expected a single default worker, got %d", cfg.Pipeline.Workers)
	}
}

func TestPipelineConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    PipelineConfig
		expected PipelineConfig
	}{
		{
			name:  "zero values clamped to floors",
			input: PipelineConfig{},
			expected: PipelineConfig{
				MaxUploadBytes: 10 << 20,
				JobTTL:         time.Minute,
				RateLimit:      1,
				RateWindow:     time.Second,
				Workers:        1,
				DequeueWait:    time.Second,
				Backoff:        100 * time.Millisecond,
			},
		},
		{
			name: "negative values clamped to floors",
			input: PipelineConfig{
				MaxUploadBytes: -1,
				JobTTL:         -time.Hour,
				RateLimit:      -5,
				RateWindow:     -time.Minute,
				Workers:        -2,
				DequeueWait:    -time.Second,
				Backoff:        -time.Second,
				SimLatency:     -time.Second,
			},
			expected: PipelineConfig{
				MaxUploadBytes: 10 << 20,
				JobTTL:         time.Minute,
				RateLimit:      1,
				RateWindow:     time.Second,
				Workers:        1,
				DequeueWait:    time.Second,
				Backoff:        100 * time.Millisecond,
			},
		},
		{
			name: "worker ceiling enforced",
			input: PipelineConfig{
				MaxUploadBytes: 1024,
				JobTTL:         time.Hour,
				RateLimit:      10,
				RateWindow:     time.Minute,
				Workers:        500,
				DequeueWait:    5 * time.Second,
				Backoff:        time.Second,
			},
			expected: PipelineConfig{
				MaxUploadBytes: 1024,
				JobTTL:         time.Hour,
				RateLimit:      10,
				RateWindow:     time.Minute,
				Workers:        64,
				DequeueWait:    5 * time.Second,
				Backoff:        time.Second,
			},
		},
		{
			name: "valid values untouched",
			input: PipelineConfig{
				MaxUploadBytes:  5 << 20,
				JobTTL:          2 * time.Hour,
				RateLimit:       50,
				RateWindow:      10 * time.Minute,
				ConsumerEnabled: true,
				Workers:         8,
				DequeueWait:     3 * time.Second,
				Backoff:         2 * time.Second,
				SimLatency:      10 * time.Millisecond,
			},
			expected: PipelineConfig{
				MaxUploadBytes:  5 << 20,
				JobTTL:          2 * time.Hour,
				RateLimit:       50,
				RateWindow:      10 * time.Minute,
				ConsumerEnabled: true,
				Workers:         8,
				DequeueWait:     3 * time.Second,
				Backoff:         2 * time.Second,
				SimLatency:      10 * time.Millisecond,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.input
			cfg.Sanitize()

			if !reflect.DeepEqual(cfg, tt.expected) {
				t.Errorf("unexpected sanitized config:\nexpected: %#v\ngot:      %#v", tt.expected, cfg)
			}
		})
	}
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name          string
		input         HTTPConfig
		expectedLevel int
	}{
		{
			name:          "level below range clamped up",
			input:         HTTPConfig{CompressionLevel: 0},
			expectedLevel: 1,
		},
		{
			name:          "level above range clamped down",
			input:         HTTPConfig{CompressionLevel: 15},
			expectedLevel: 9,
		},
		{
			name:          "level in range untouched",
			input:         HTTPConfig{CompressionLevel: 6},
			expectedLevel: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.input
			cfg.Sanitize()

			if cfg.CompressionLevel != tt.expectedLevel {
				t.Errorf("expected compression level %d, got %d", tt.expectedLevel, cfg.CompressionLevel)
			}
		})
	}

	t.Run("negative sizes reset to zero", func(t *testing.T) {
		cfg := HTTPConfig{MaxBodyBytes: -1, CompressionLevel: 6, CompressionMinSize: -10}
		cfg.Sanitize()

		if cfg.MaxBodyBytes != 0 {
			t.Errorf("expected max body bytes to reset to 0, got %d", cfg.MaxBodyBytes)
		}
		if cfg.CompressionMinSize != 0 {
			t.Errorf("expected compression min size to reset to 0, got %d", cfg.CompressionMinSize)
		}
	})
}

func TestStorageBackend_UnmarshalText(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    StorageBackend
		expectError bool
	}{
		{name: "fs", input: "fs", expected: StorageBackendFS},
		{name: "minio", input: "minio", expected: StorageBackendMinio},
		{name: "case insensitive", input: "MINIO", expected: StorageBackendMinio},
		{name: "unknown backend", input: "s3", expectError: true},
		{name: "empty", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var backend StorageBackend
			err := backend.UnmarshalText([]byte(tt.input))

			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if backend != tt.expected {
				t.Errorf("expected backend %q, got %q", tt.expected, backend)
			}
		})
	}
}

func TestAppConfig_ParseStorageEnv(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "minio")
	t.Setenv("STORAGE_MINIO_ENDPOINT", "minio.internal:9000")
	t.Setenv("STORAGE_MINIO_ACCESS_KEY", "staging-access")
	t.Setenv("STORAGE_MINIO_SECRET_KEY", "staging-secret")
	t.Setenv("STORAGE_MINIO_BUCKET", "payloads")
	t.Setenv("STORAGE_MINIO_USE_SSL", "true")
	t.Setenv("STORAGE_FS_DIR", "/var/lib/sealbox/blobs")
	t.Setenv("STORAGE_AUDIT_PATH", "/var/lib/sealbox/audit.jsonl")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	expected := StorageConfig{
		Backend: StorageBackendMinio,
		FS:      FSStorageConfig{Dir: "/var/lib/sealbox/blobs"},
		Minio: MinioStorageConfig{
			Endpoint:  "minio.internal:9000",
			AccessKey: "staging-access",
			SecretKey: "staging-secret",
			Bucket:    "payloads",
			UseSSL:    true,
		},
		AuditPath: "/var/lib/sealbox/audit.jsonl",
	}

	if !reflect.DeepEqual(cfg.Storage, expected) {
		t.Fatalf("unexpected storage configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Storage)
	}
}

func TestStorageConfig_Sanitize(t *testing.T) {
	cfg := StorageConfig{
		Backend:   "",
		FS:        FSStorageConfig{Dir: "  "},
		Minio:     MinioStorageConfig{Endpoint: " minio:9000 ", Bucket: " payloads "},
		AuditPath: "",
	}

	cfg.Sanitize()

	if cfg.Backend != StorageBackendFS {
		t.Errorf("expected fs backend fallback, got %q", cfg.Backend)
	}
	if cfg.FS.Dir != "data/blobs" {
		t.Errorf("expected default blob dir, got %q", cfg.FS.Dir)
	}
	if cfg.Minio.Endpoint != "minio:9000" {
		t.Errorf("expected trimmed endpoint, got %q", cfg.Minio.Endpoint)
	}
	if cfg.Minio.Bucket != "payloads" {
		t.Errorf("expected trimmed bucket, got %q", cfg.Minio.Bucket)
	}
	if cfg.AuditPath != "data/audit.jsonl" {
		t.Errorf("expected default audit path, got %q", cfg.AuditPath)
	}
}

func TestAppConfig_ParseAuditDBEnv(t *testing.T) {
	t.Setenv("AUDIT_DB_ENABLED", "true")
	t.Setenv("AUDIT_DB_HOST", "pg.internal")
	t.Setenv("AUDIT_DB_PORT", "5433")
	t.Setenv("AUDIT_DB_USER", "audit-writer")
	t.Setenv("AUDIT_DB_PASSWORD", "audit-password")
	t.Setenv("AUDIT_DB_NAME", "sealbox_audit")
	t.Setenv("AUDIT_DB_SSL_MODE", "require")
	t.Setenv("AUDIT_DB_RUN_MIGRATIONS_ON_START", "false")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	expected := AuditDBConfig{
		Enabled:              true,
		Host:                 "pg.internal",
		Port:                 5433,
		User:                 "audit-writer",
		Password:             "audit-password",
		Name:                 "sealbox_audit",
		SSLMode:              "require",
		RunMigrationsOnStart: false,
	}

	if !reflect.DeepEqual(cfg.AuditDB, expected) {
		t.Fatalf("unexpected audit db configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.AuditDB)
	}
}

func TestAppConfig_SanitizeTrimsKeys(t *testing.T) {
	cfg := AppConfig{
		PayloadEncryptionKey: "  payload-key  ",
		AuditSigningKey:      "\taudit-key\n",
	}
	cfg.Sanitize()

	if cfg.PayloadEncryptionKey != "payload-key" {
		t.Errorf("expected trimmed payload key, got %q", cfg.PayloadEncryptionKey)
	}
	if cfg.AuditSigningKey != "audit-key" {
		t.Errorf("expected trimmed audit key, got %q", cfg.AuditSigningKey)
	}
}

func TestAppConfig_DetectDevMode(t *testing.T) {
	t.Run("APP_ENV development enables dev mode", func(t *testing.T) {
		t.Setenv("APP_ENV", "development")

		cfg := AppConfig{}
		cfg.Sanitize()

		if !cfg.IsDev {
			t.Error("expected dev mode to be detected from APP_ENV")
		}
	})

	t.Run("production APP_ENV leaves dev mode off", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")

		cfg := AppConfig{}
		cfg.Sanitize()

		if cfg.IsDev {
			t.Error("expected dev mode to stay off")
		}
	})
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}
