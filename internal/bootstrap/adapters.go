package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/sealbox/config"
	"github.com/target/sealbox/internal/adapters/auditfs"
	"github.com/target/sealbox/internal/adapters/blobfs"
	"github.com/target/sealbox/internal/adapters/consumer"
	"github.com/target/sealbox/internal/adapters/miniostore"
	"github.com/target/sealbox/internal/adapters/redisbroker"
	"github.com/target/sealbox/internal/adapters/siminfer"
	"github.com/target/sealbox/internal/audit"
	"github.com/target/sealbox/internal/core"
	"github.com/target/sealbox/internal/data"
	"github.com/target/sealbox/internal/observability/statsd"
	"github.com/target/sealbox/internal/policy"
)

// AdapterSet holds the infrastructure adapters behind the service ports.
type AdapterSet struct {
	Store     core.JobStore
	Queue     core.JobQueue
	Limiter   core.RateLimiter
	Blobs     core.BlobStore
	AuditSink core.AuditSink
	Decrypter core.Decrypter
	Engine    core.InferenceEngine
	Guard     *policy.Engine
	Audit     *audit.Writer
}

// AdapterDeps groups dependencies for adapter construction.
type AdapterDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient
	AuditDB     *sql.DB
	Logger      *slog.Logger
}

// BuildAdapters wires broker, storage, crypto, inference, and policy
// adapters from configuration. All failures here are fatal: a gateway
// without its full complement of adapters must not take traffic.
func BuildAdapters(deps *AdapterDeps) (*AdapterSet, error) {
	if deps == nil || deps.Config == nil {
		return nil, fmt.Errorf("adapter deps and config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	blobs, err := buildBlobStore(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("build blob store: %w", err)
	}

	sink, err := buildAuditSink(cfg, deps.AuditDB, logger)
	if err != nil {
		return nil, fmt.Errorf("build audit sink: %w", err)
	}

	signingKey, err := AuditSigningKey(cfg.AuditSigningKey, cfg.IsDev, logger)
	if err != nil {
		return nil, err
	}
	writer, err := audit.NewWriter(audit.WriterOptions{
		Key:  signingKey,
		Sink: sink,
	})
	if err != nil {
		return nil, fmt.Errorf("build audit writer: %w", err)
	}

	guard, err := buildPolicyEngine(cfg.Policy, logger)
	if err != nil {
		return nil, fmt.Errorf("build policy engine: %w", err)
	}

	return &AdapterSet{
		Store: redisbroker.NewJobStore(deps.RedisClient),
		Queue: redisbroker.NewJobQueue(deps.RedisClient),
		Limiter: redisbroker.NewRateLimiter(redisbroker.RateLimiterOptions{
			Client: deps.RedisClient,
			Limit:  cfg.Pipeline.RateLimit,
			Window: cfg.Pipeline.RateWindow,
		}),
		Blobs:     blobs,
		AuditSink: sink,
		Decrypter: CreateDecrypter(cfg.PayloadEncryptionKey, logger),
		Engine:    siminfer.New(siminfer.Options{Latency: cfg.Pipeline.SimLatency}),
		Guard:     guard,
		Audit:     writer,
	}, nil
}

//nolint:ireturn // Returning BlobStore keeps backend selection behind the port.
func buildBlobStore(cfg config.StorageConfig, logger *slog.Logger) (core.BlobStore, error) {
	switch cfg.Backend {
	case config.StorageBackendMinio:
		store, err := miniostore.New(miniostore.Options{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio blob store: %w", err)
		}
		logger.Info("staged payload store ready", "backend", "minio", "bucket", cfg.Minio.Bucket)
		return store, nil
	case config.StorageBackendFS:
		fallthrough
	default:
		store, err := blobfs.New(cfg.FS.Dir)
		if err != nil {
			return nil, fmt.Errorf("fs blob store: %w", err)
		}
		logger.Info("staged payload store ready", "backend", "fs", "dir", cfg.FS.Dir)
		return store, nil
	}
}

//nolint:ireturn // Returning AuditSink keeps sink selection behind the port.
func buildAuditSink(cfg *config.AppConfig, db *sql.DB, logger *slog.Logger) (core.AuditSink, error) {
	if cfg.AuditDB.Enabled {
		if db == nil {
			return nil, fmt.Errorf("audit database enabled but no connection available")
		}
		logger.Info("audit trail sink ready", "sink", "postgres")
		return data.NewAuditRepo(db), nil
	}

	sink, err := auditfs.New(cfg.Storage.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("jsonl audit sink: %w", err)
	}
	logger.Info("audit trail sink ready", "sink", "jsonl", "path", cfg.Storage.AuditPath)
	return sink, nil
}

func buildPolicyEngine(cfg config.PolicyConfig, logger *slog.Logger) (*policy.Engine, error) {
	bundle := policy.DefaultBundle()
	if cfg.BundlePath != "" {
		loaded, err := policy.LoadBundle(cfg.BundlePath)
		if err != nil {
			return nil, fmt.Errorf("load policy bundle %s: %w", cfg.BundlePath, err)
		}
		bundle = loaded
	}

	engine, err := policy.NewEngine(policy.EngineOptions{Bundle: bundle})
	if err != nil {
		return nil, err
	}

	logger.Info("egress policy loaded",
		"rules", len(bundle.Rules),
		"digest", engine.Digest(),
		"source", policySource(cfg.BundlePath),
	)
	return engine, nil
}

func policySource(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}

// ConsumerConfig contains configuration for the inference consumer.
type ConsumerConfig struct {
	Queue       core.JobQueue
	Processor   consumer.Processor
	Logger      *slog.Logger
	Workers     int
	DequeueWait time.Duration
	Backoff     time.Duration
	Metrics     statsd.Sink
}

// RunConsumer starts the inference consumer loop. It blocks until the
// context is cancelled.
func RunConsumer(ctx context.Context, cfg ConsumerConfig) error {
	runner, err := consumer.NewRunner(consumer.RunnerOptions{
		Queue:       cfg.Queue,
		Processor:   cfg.Processor,
		Logger:      cfg.Logger,
		Workers:     cfg.Workers,
		DequeueWait: cfg.DequeueWait,
		Backoff:     cfg.Backoff,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create consumer runner: %w", err)
	}

	return runner.Run(ctx)
}
