// Package httpx provides the HTTP ingress for the sealbox submission pipeline.
package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/sealbox/internal/service"
)

// JobHandlers provides HTTP handlers for job status polls and queue reads.
type JobHandlers struct {
	Svc    *service.JobService
	Logger *slog.Logger
}

// GetStatus handles HTTP requests to retrieve the status of a submitted job.
// The body is the client-facing projection only; internal fields such as the
// blob key never appear in it.
func (h *JobHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Status(r.Context(), r.PathValue("jobId"))
	if err != nil {
		WriteAppError(w, AppErrorParams{R: r, Logger: h.Logger, Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// queueStatusResponse shapes the GET /queue/status body.
type queueStatusResponse struct {
	QueueLength int64  `json:"queueLength"`
	TotalJobs   int64  `json:"totalJobs"`
	Timestamp   string `json:"timestamp"`
}

// QueueStatus reports broker depth for operators. The numbers are a
// point-in-time read, not a polling surface.
func (h *JobHandlers) QueueStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.QueueStats(r.Context())
	if err != nil {
		WriteAppError(w, AppErrorParams{R: r, Logger: h.Logger, Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, queueStatusResponse{
		QueueLength: stats.QueueLength,
		TotalJobs:   stats.TotalJobs,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}
