package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/sealbox/internal/errors"
)

func renderError(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	WriteAppError(rr, AppErrorParams{
		R:      req,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Err:    err,
	})
	return rr
}

func TestWriteAppError_StatusByCode(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "file too large",
			err:        apperrors.FileTooLarge("payload exceeds the limit"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE_TOO_LARGE",
		},
		{
			name:       "invalid file type",
			err:        apperrors.InvalidFileType("not an accepted type"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_FILE_TYPE",
		},
		{
			name:       "invalid input",
			err:        apperrors.InvalidInput("malformed body"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "invalid job id",
			err:        apperrors.InvalidJobID("job id must be a UUID"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_JOB_ID",
		},
		{
			name:       "rate limited",
			err:        apperrors.RateLimited("slow down", 0),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "RATE_LIMIT_EXCEEDED",
		},
		{
			name:       "not found",
			err:        apperrors.NotFound("unknown job"),
			wantStatus: http.StatusNotFound,
			wantCode:   "JOB_NOT_FOUND",
		},
		{
			name:       "egress denied",
			err:        apperrors.EgressDenied("result contains a blocked field"),
			wantStatus: http.StatusForbidden,
			wantCode:   "EGRESS_DENIED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := renderError(t, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			body := decodeError(t, rr)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestWriteAppError_RetryAfterRoundsUp(t *testing.T) {
	rr := renderError(t, apperrors.RateLimited("slow down", 1500*time.Millisecond))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"),
		"partial seconds round up so clients never retry early")
}

func TestWriteAppError_MaxBytesErrorBecomesFileTooLarge(t *testing.T) {
	rr := renderError(t, &http.MaxBytesError{Limit: 99})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "FILE_TOO_LARGE", decodeError(t, rr).Code)
}

func TestWriteAppError_WrappedMaxBytesErrorBecomesFileTooLarge(t *testing.T) {
	wrapped := apperrors.Wrap(&http.MaxBytesError{Limit: 99},
		apperrors.ErrCodeInvalidInput, "malformed multipart body")

	rr := renderError(t, wrapped)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "FILE_TOO_LARGE", decodeError(t, rr).Code)
}

func TestWriteAppError_InfrastructureErrorsStayOpaque(t *testing.T) {
	rr := renderError(t, errors.New("redis: connection refused to 10.1.2.3:6379"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.Equal(t, "internal server error", body.Error)
	assert.NotContains(t, rr.Body.String(), "10.1.2.3")
}

func TestWriteAppError_InternalOnlyCodesStayOpaque(t *testing.T) {
	for _, err := range []error{
		apperrors.Conflict("record already exists"),
		apperrors.Unavailable("broker unreachable"),
		apperrors.Internal("invariant violated"),
	} {
		rr := renderError(t, err)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		body := decodeError(t, rr)
		assert.Equal(t, "INTERNAL_ERROR", body.Code)
		assert.Equal(t, "internal server error", body.Error)
	}
}

func TestWriteAppError_FieldSurfacesInBody(t *testing.T) {
	rr := renderError(t, apperrors.InvalidInputField("context", "context must be a JSON object"))

	body := decodeError(t, rr)
	assert.Equal(t, "context", body.Field)
}

func TestCeilSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int64
	}{
		{0, 0},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{30 * time.Second, 30},
		{time.Millisecond, 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ceilSeconds(tt.d), "ceilSeconds(%s)", tt.d)
	}
}
