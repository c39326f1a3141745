package httpx

import (
	"compress/gzip"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/target/sealbox/internal/errors"
)

// respWriter records the status and body size a handler produced.
type respWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Logging returns a middleware that writes one structured line per request.
// The route field is the matched mux pattern, not the raw path, so lines
// aggregate per route.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := trimMethodPrefix(r.Pattern)
			if route == "" {
				route = r.URL.Path
			}
			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int64("bytes", rec.bytes),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Recover returns a middleware that converts handler panics into logged 500
// responses with the standard error envelope. http.ErrAbortHandler passes
// through untouched.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "handler panic",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				WriteAppError(w, AppErrorParams{
					R: r,
					// Logger stays nil: the panic is already logged with its stack.
					Err: apperrors.Internal("internal server error"),
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CompressionConfig holds configuration for the compression middleware.
type CompressionConfig struct {
	// Level is the gzip level, gzip.BestSpeed through gzip.BestCompression.
	Level int
	// MinSize is the body size in bytes below which responses ship
	// uncompressed. Zero compresses everything eligible.
	MinSize int
	Logger  *slog.Logger
}

// compressibleTypes lists the media types this service emits that shrink
// under gzip. Binary payloads only ever leave as base64 inside JSON.
var compressibleTypes = map[string]bool{
	"application/json": true,
	"text/plain":       true,
}

// Compression returns a middleware that gzips eligible responses: the client
// must accept gzip, the body must be a compressible type with no prior
// Content-Encoding, and it must reach MinSize bytes.
func Compression(cfg CompressionConfig) func(http.Handler) http.Handler {
	if cfg.Level < gzip.BestSpeed || cfg.Level > gzip.BestCompression {
		cfg.Level = gzip.DefaultCompression
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pool := &sync.Pool{
		New: func() any {
			gz, err := gzip.NewWriterLevel(io.Discard, cfg.Level)
			if err != nil {
				return gzip.NewWriter(io.Discard)
			}
			return gz
		},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The response varies on Accept-Encoding whether or not this
			// particular client negotiates gzip.
			w.Header().Add("Vary", "Accept-Encoding")

			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}

			gzw := &gzipResponseWriter{
				ResponseWriter: w,
				pool:           pool,
				minSize:        cfg.MinSize,
				logger:         cfg.Logger,
				status:         http.StatusOK,
			}
			next.ServeHTTP(gzw, r)
			gzw.finish()
		})
	}
}

// acceptsGzip reports whether the Accept-Encoding header allows gzip,
// honoring a q=0 opt-out.
func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		token, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(token), "gzip") {
			continue
		}
		q := 1.0
		for _, p := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if ok && strings.EqualFold(strings.TrimSpace(k), "q") {
				if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
					q = parsed
				}
			}
		}
		return q > 0
	}
	return false
}

// gzipResponseWriter defers the header write until it knows whether the body
// is worth compressing. While undecided, body bytes accumulate in buf; the
// decision falls when buf reaches MinSize, at an explicit Flush, or at end
// of body.
type gzipResponseWriter struct {
	http.ResponseWriter
	pool    *sync.Pool
	minSize int
	logger  *slog.Logger

	status       int
	headerCalled bool
	decided      bool
	gz           *gzip.Writer
	buf          []byte
}

func (w *gzipResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *gzipResponseWriter) WriteHeader(status int) {
	if w.headerCalled || w.decided {
		return
	}
	w.headerCalled = true
	w.status = status

	// Bodyless statuses and pre-encoded or binary bodies go out as-is.
	if !compressibleStatus(status) || w.Header().Get("Content-Encoding") != "" {
		w.commitIdentity()
		return
	}
	if ct := w.Header().Get("Content-Type"); ct != "" && !compressibleType(ct) {
		w.commitIdentity()
	}
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if w.decided {
		if w.gz != nil {
			return w.gz.Write(b)
		}
		return w.ResponseWriter.Write(b)
	}

	w.buf = append(w.buf, b...)
	if len(w.buf) >= w.minSize {
		return len(b), w.decide()
	}
	return len(b), nil
}

// decide commits the response: gzip when the declared or sniffed type is
// compressible, identity otherwise. Buffered bytes drain through the chosen
// path.
func (w *gzipResponseWriter) decide() error {
	ct := w.Header().Get("Content-Type")
	if ct == "" {
		if len(w.buf) == 0 {
			return w.commitIdentity()
		}
		ct = http.DetectContentType(w.buf)
		w.Header().Set("Content-Type", ct)
	}
	if !compressibleType(ct) {
		return w.commitIdentity()
	}

	w.decided = true
	gz, ok := w.pool.Get().(*gzip.Writer)
	if !ok {
		gz = gzip.NewWriter(io.Discard)
	}
	gz.Reset(w.ResponseWriter)
	w.gz = gz

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(w.status)

	_, err := gz.Write(w.buf)
	w.buf = nil
	return err
}

// commitIdentity sends the headers and any buffered bytes uncompressed.
func (w *gzipResponseWriter) commitIdentity() error {
	w.decided = true
	w.ResponseWriter.WriteHeader(w.status)
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buf)
	w.buf = nil
	return err
}

// Flush forces a decision so streaming handlers get incremental delivery.
func (w *gzipResponseWriter) Flush() {
	if !w.decided {
		if err := w.decide(); err != nil {
			w.logger.Error("compression decision failed", "error", err)
			return
		}
	}
	if w.gz != nil {
		if err := w.gz.Flush(); err != nil {
			w.logger.Error("gzip flush failed", "error", err)
		}
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// finish closes out the response after the handler returns. A body that
// never reached MinSize ships uncompressed.
func (w *gzipResponseWriter) finish() {
	if !w.decided {
		if err := w.commitIdentity(); err != nil {
			w.logger.Error("writing buffered response failed", "error", err)
		}
		return
	}
	if w.gz == nil {
		return
	}
	if err := w.gz.Close(); err != nil {
		w.logger.Error("closing gzip writer failed", "error", err)
	}
	w.gz.Reset(io.Discard)
	w.pool.Put(w.gz)
	w.gz = nil
}

func compressibleStatus(status int) bool {
	return status >= http.StatusOK &&
		status != http.StatusNoContent &&
		status != http.StatusNotModified
}

func compressibleType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return compressibleTypes[mediaType]
}
