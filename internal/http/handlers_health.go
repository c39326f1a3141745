package httpx

import (
	"net/http"
	"time"
)

// healthHandler reports liveness for readiness checks, with process uptime so
// restarts are visible in probe logs.
type healthHandler struct {
	started time.Time
}

func newHealthHandler() *healthHandler {
	return &healthHandler{started: time.Now()}
}

type healthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

// ServeHTTP returns a 200 status for readiness/liveness checks.
func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Seconds(),
	})
}
