package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/sealbox/config"
	"github.com/target/sealbox/internal/core"
	"github.com/target/sealbox/internal/observability/statsd"
	"github.com/target/sealbox/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Uploads       *service.UploadService
	Jobs          *service.JobService
	Processor     *service.ProcessorService
	Queue         core.JobQueue
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	AuditDB     *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "sealbox",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// PipelineServicesOptions groups inputs for pipeline service construction.
type PipelineServicesOptions struct {
	Adapters      *AdapterSet
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

func newUploadService(opts *PipelineServicesOptions) *service.UploadService {
	return service.MustNewUploadService(service.UploadServiceOptions{
		Store:          opts.Adapters.Store,
		Queue:          opts.Adapters.Queue,
		Blobs:          opts.Adapters.Blobs,
		Limiter:        opts.Adapters.Limiter,
		Logger:         opts.Logger,
		Metrics:        opts.Observability.MetricsSink,
		MaxUploadBytes: opts.Config.Pipeline.MaxUploadBytes,
		JobTTL:         opts.Config.Pipeline.JobTTL,
	})
}

func newJobService(opts *PipelineServicesOptions) *service.JobService {
	return service.MustNewJobService(service.JobServiceOptions{
		Store:  opts.Adapters.Store,
		Queue:  opts.Adapters.Queue,
		Logger: opts.Logger,
	})
}

func newProcessorService(opts *PipelineServicesOptions) *service.ProcessorService {
	return service.MustNewProcessorService(service.ProcessorServiceOptions{
		Store:     opts.Adapters.Store,
		Blobs:     opts.Adapters.Blobs,
		Decrypter: opts.Adapters.Decrypter,
		Engine:    opts.Adapters.Engine,
		Guard:     opts.Adapters.Guard,
		Audit:     opts.Adapters.Audit,
		Logger:    opts.Logger,
		Metrics:   opts.Observability.MetricsSink,
		JobTTL:    opts.Config.Pipeline.JobTTL,
	})
}

// buildPipelineServices assembles the service layer on top of the adapters;
// no business rules here.
func buildPipelineServices(opts *PipelineServicesOptions) ServiceContainer {
	return ServiceContainer{
		Uploads:       newUploadService(opts),
		Jobs:          newJobService(opts),
		Processor:     newProcessorService(opts),
		Queue:         opts.Adapters.Queue,
		Observability: opts.Observability,
	}
}

// NewServices builds the adapter set and the services the gateway and
// consumer share.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service deps are required")
	}
	if deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps missing AppConfig")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, deps.Config.Observability)
	adapters, err := BuildAdapters(&AdapterDeps{
		Config:      deps.Config,
		RedisClient: deps.RedisClient,
		AuditDB:     deps.AuditDB,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build adapters: %w", err)
	}

	return buildPipelineServices(&PipelineServicesOptions{
		Adapters:      adapters,
		Observability: observability,
		Config:        deps.Config,
		Logger:        logger,
	}), nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx    context.Context
	cfg    *ServiceOrchestrationConfig
	logger *slog.Logger
	errCh  chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	name    string
	enabled bool
	start   func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

// startGatewayHTTPServer starts the upload gateway. The HTTP surface is
// always on; only background components are role-gated.
func startGatewayHTTPServer(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !descriptor.enabled {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newConsumerBackgroundService(deps *serviceStartupDeps) backgroundService {
	enabled := false
	if deps != nil && deps.cfg != nil && deps.cfg.Config != nil {
		enabled = deps.cfg.Config.Pipeline.ConsumerEnabled
	}
	return backgroundService{
		name:    "inference consumer",
		enabled: enabled,
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			pipelineCfg := config.PipelineConfig{}
			if deps.cfg.Config != nil {
				pipelineCfg = deps.cfg.Config.Pipeline
			}
			return RunConsumer(ctx, ConsumerConfig{
				Queue:       deps.cfg.Services.Queue,
				Processor:   deps.cfg.Services.Processor,
				Logger:      deps.logger,
				Workers:     pipelineCfg.Workers,
				DequeueWait: pipelineCfg.DequeueWait,
				Backoff:     pipelineCfg.Backoff,
				Metrics:     deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newConsumerBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts the gateway and enabled background services and
// returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startGatewayHTTPServer(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	errCh := make(chan error, errorChannelBufferSize(cfg.Config))

	result := startServices(&serviceStartupDeps{
		ctx:    serviceCtx,
		cfg:    cfg,
		logger: logger,
		errCh:  errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		metrics:     cfg.Services.Observability.MetricsSink,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(cfg *config.AppConfig) int {
	count := 0
	if cfg != nil && cfg.Pipeline.ConsumerEnabled {
		count++
	}
	return count
}

func errorChannelBufferSize(cfg *config.AppConfig) int {
	size := errorChannelCapacity(cfg) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	metrics     *statsd.Client
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		// Create a timeout context for HTTP shutdown
		shutdownCtx, cancel := context.WithTimeout(cfg.ctx, shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	// Close the metrics sink last so stopping services can still report.
	if err := cfg.metrics.Close(); err != nil {
		cfg.logger.Warn("failed to close metrics sink", "error", err)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
