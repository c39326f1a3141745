package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/sealbox/internal/service"
)

// DefaultMaxBodyBytes caps the raw request body read by the gateway. It sits
// above the pipeline payload cap to leave room for base64 expansion and JSON
// or multipart framing around the payload itself.
const DefaultMaxBodyBytes int64 = 16 << 20

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	// Required: the submission door.
	Uploads *service.UploadService
	// Required: status polls and queue reads.
	Jobs *service.JobService
	// Optional: raw request body cap; defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// Optional: ingress instruments; a private registry is created when nil.
	Metrics *RequestMetrics
	// Optional: logger for handler errors.
	Logger *slog.Logger
}

// NewRouter creates and configures the gateway router. Transport middleware
// (logging, recovery, compression) wraps the returned handler in bootstrap;
// the request counter is applied here because it needs the mux to resolve
// route patterns.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	metrics := services.Metrics
	if metrics == nil {
		metrics = NewRequestMetrics()
	}
	maxBody := services.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	uploadHandlers := &UploadHandlers{
		Svc:          services.Uploads,
		MaxBodyBytes: maxBody,
		Logger:       services.Logger,
	}
	jobHandlers := &JobHandlers{Svc: services.Jobs, Logger: services.Logger}
	health := newHealthHandler()

	mux.HandleFunc("POST /upload", uploadHandlers.Submit)
	mux.HandleFunc("GET /status/{jobId}", jobHandlers.GetStatus)
	mux.HandleFunc("GET /queue/status", jobHandlers.QueueStatus)
	mux.Handle("GET /health", health)
	mux.Handle("HEAD /health", health)
	mux.Handle("GET /metrics", metrics.Handler())

	return metrics.Instrument(mux)
}
