package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/target/sealbox/config"
	"github.com/target/sealbox/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	// Log startup info
	logStartupInfo(ctx, logger, &cfg)

	cfgPtr := &cfg

	// Initialize infrastructure
	redisClient, auditDB, err := initInfrastructure(ctx, cfgPtr, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()
	if auditDB != nil {
		defer func() {
			if cerr := auditDB.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close audit database failed", "error", cerr)
			}
		}()
	}

	// Run migrations if the audit database is in play
	if auditDB != nil {
		if cfg.AuditDB.RunMigrationsOnStart {
			if err = bootstrap.RunMigrations(ctx, auditDB, logger); err != nil {
				return err
			}
		} else {
			logger.InfoContext(ctx, "skipping audit database migrations on startup", "reason", "disabled via config")
		}
	}

	// Initialize and run services
	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      cfgPtr,
		AuditDB:     auditDB,
		RedisClient: redisClient,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   cfgPtr,
		Services: services,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting sealbox service",
		"http_addr", cfg.HTTP.Addr,
		"storage_backend", cfg.Storage.Backend,
		"audit_db_enabled", cfg.AuditDB.Enabled,
		"consumer_enabled", cfg.Pipeline.ConsumerEnabled)
}

// initInfrastructure connects shared dependencies used by the service runtime.
// Redis backs the broker and is required; the audit database is optional.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (redis.UniversalClient, *sql.DB, error) {
	redisClient, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		AuditDB: cfg.AuditDB,
		Redis:   cfg.Redis,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	if !cfg.AuditDB.Enabled {
		return redisClient, nil, nil
	}

	auditDB, err := bootstrap.ConnectAuditDB(bootstrap.DatabaseConfig{
		AuditDB: cfg.AuditDB,
		Redis:   cfg.Redis,
		Logger:  logger,
	})
	if err != nil {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis after audit db connect failure", "error", cerr)
			return nil, nil, fmt.Errorf("connect audit db: %w", errors.Join(err, fmt.Errorf("close redis: %w", cerr)))
		}
		return nil, nil, fmt.Errorf("connect audit db: %w", err)
	}

	return redisClient, auditDB, nil
}
