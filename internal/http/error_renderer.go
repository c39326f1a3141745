package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/target/sealbox/internal/errors"
)

// errorBody is the JSON error envelope rendered for every failed request.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// AppErrorParams groups parameters for WriteAppError to adhere to the ≤3
// params guideline.
type AppErrorParams struct {
	R      *http.Request
	Logger *slog.Logger
	Err    error
}

// WriteAppError renders an error response. Client failures (AppErrors with a
// 4xx code) keep their stable code and message. An oversized request body is
// promoted to FILE_TOO_LARGE. Everything else is an infrastructure failure:
// the detail goes to the log and the client gets a generic internal error.
func WriteAppError(w http.ResponseWriter, p AppErrorParams) {
	err := p.Err

	// MaxBytesReader trips before the pipeline's own size check can run, so
	// fold it into the same client-facing code.
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		err = apperrors.FileTooLargef("request body exceeds the %d byte limit", maxBytes.Limit)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || statusForCode(appErr.Code) >= http.StatusInternalServerError {
		if p.Logger != nil {
			p.Logger.ErrorContext(p.R.Context(), "request failed",
				slog.String("method", p.R.Method),
				slog.String("path", p.R.URL.Path),
				slog.Any("error", p.Err),
			)
		}
		WriteJSON(w, http.StatusInternalServerError, errorBody{
			Error: "internal server error",
			Code:  string(apperrors.ErrCodeInternal),
		})
		return
	}

	if appErr.Code == apperrors.ErrCodeRateLimited && appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(ceilSeconds(appErr.RetryAfter), 10))
	}

	WriteJSON(w, statusForCode(appErr.Code), errorBody{
		Error: appErr.Message,
		Code:  string(appErr.Code),
		Field: appErr.Field,
	})
}

// statusForCode maps stable error codes to HTTP statuses. Codes without a
// client-facing status (CONFLICT, UNAVAILABLE, INTERNAL_ERROR) map to 500 and
// are rendered generically.
func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeFileTooLarge,
		apperrors.ErrCodeInvalidFileType,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeInvalidJobID:
		return http.StatusBadRequest
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeEgressDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ceilSeconds rounds a duration up to whole seconds so a Retry-After hint
// never tells the client to come back too early.
func ceilSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
