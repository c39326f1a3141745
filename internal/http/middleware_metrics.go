package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestMetrics owns the Prometheus instruments for the HTTP ingress. Each
// router gets its own registry so tests never collide on global state.
type RequestMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

// NewRequestMetrics registers the ingress instruments on a fresh registry.
func NewRequestMetrics() *RequestMetrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sealbox_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	registry.MustRegister(requests)

	return &RequestMetrics{registry: registry, requests: requests}
}

// Handler serves the Prometheus exposition endpoint.
func (m *RequestMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument wraps the mux with the request counter. The path label is the
// route pattern the mux resolves (e.g. /status/{jobId}), not the raw URL, so
// label cardinality stays bounded; unmatched requests fall back to the raw
// path. The exposition endpoint itself is not counted.
func (m *RequestMetrics) Instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			mux.ServeHTTP(w, r)
			return
		}

		const defaultHTTPStatus = 200
		ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
		mux.ServeHTTP(ww, r)

		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = r.URL.Path
		}
		m.requests.WithLabelValues(r.Method, trimMethodPrefix(pattern), strconv.Itoa(ww.status)).Inc()
	})
}

// trimMethodPrefix strips the "GET " style prefix ServeMux patterns carry so
// the path label holds only the path.
func trimMethodPrefix(pattern string) string {
	if _, path, found := strings.Cut(pattern, " "); found {
		return path
	}
	return pattern
}
