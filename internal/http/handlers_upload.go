package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/target/sealbox/internal/domain/model"
	apperrors "github.com/target/sealbox/internal/errors"
	"github.com/target/sealbox/internal/service"
	"github.com/target/sealbox/internal/transcode"
)

// Multipart submissions spill parts beyond this to temp files.
const multipartMemoryLimit = 4 << 20

// filePartNames are the accepted multipart field names for the payload, in
// lookup order.
//
//nolint:gochecknoglobals // static read-only lookup shared by every request
var filePartNames = []string{"image", "file"}

// UploadHandlers provides the submission endpoint.
type UploadHandlers struct {
	Svc          *service.UploadService
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// submitResponse shapes the 202 body returned for an accepted submission.
type submitResponse struct {
	JobID  string          `json:"jobId"`
	Status model.JobStatus `json:"status"`
}

// Submit accepts one encrypted payload as either multipart/form-data (a file
// part named image or file, plus an optional context field holding a JSON
// object) or application/json (transport-encoded payload field). The payload
// travels to the blob store as a stream; validation order and all rejection
// codes come from the upload service.
func (h *UploadHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)

	input, cleanup, err := h.parseSubmission(r)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		WriteAppError(w, AppErrorParams{R: r, Logger: h.Logger, Err: err})
		return
	}
	input.ClientID = ClientID(r)

	job, err := h.Svc.Submit(r.Context(), input)
	if err != nil {
		WriteAppError(w, AppErrorParams{R: r, Logger: h.Logger, Err: err})
		return
	}

	WriteJSON(w, http.StatusAccepted, submitResponse{JobID: job.ID, Status: job.Status})
}

// parseSubmission dispatches on the request media type. The returned cleanup
// releases any temp resources held by the payload reader and may be nil.
func (h *UploadHandlers) parseSubmission(r *http.Request) (service.SubmitInput, func(), error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return service.SubmitInput{}, nil, apperrors.InvalidInput("malformed Content-Type header")
	}

	switch mediaType {
	case "multipart/form-data":
		return h.parseMultipart(r)
	case "application/json":
		input, err := parseJSONSubmission(r)
		return input, nil, err
	default:
		return service.SubmitInput{}, nil, apperrors.InvalidInput(
			"unsupported Content-Type: use multipart/form-data or application/json")
	}
}

// parseMultipart extracts the file part and optional context field from a
// form submission. The part's Content-Type header is the declared type and
// its filename the display name.
func (h *UploadHandlers) parseMultipart(r *http.Request) (service.SubmitInput, func(), error) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return service.SubmitInput{}, nil, apperrors.Wrap(
			err, apperrors.ErrCodeInvalidInput, "malformed multipart body")
	}

	file, header, err := openFilePart(r)
	if err != nil {
		return service.SubmitInput{}, nil, err
	}
	cleanup := func() {
		if cerr := file.Close(); cerr != nil && h.Logger != nil {
			h.Logger.WarnContext(r.Context(), "failed to close multipart file part",
				slog.Any("error", cerr))
		}
	}

	encCtx, err := parseContextField(r.FormValue("context"))
	if err != nil {
		return service.SubmitInput{}, cleanup, err
	}

	return service.SubmitInput{
		Payload:      file,
		Filename:     header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		Context:      encCtx,
	}, cleanup, nil
}

// openFilePart returns the first present file part among the accepted names.
func openFilePart(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	for _, name := range filePartNames {
		file, header, err := r.FormFile(name)
		if err == nil {
			return file, header, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, nil, apperrors.Wrap(
				err, apperrors.ErrCodeInvalidInput, "unreadable file part")
		}
	}
	return nil, nil, apperrors.InvalidInput(`multipart submission needs a file part named "image" or "file"`)
}

// jsonSubmission shapes an application/json upload body.
type jsonSubmission struct {
	Payload      string            `json:"payload"`
	Filename     string            `json:"filename"`
	DeclaredType string            `json:"declaredType"`
	Context      map[string]string `json:"context"`
}

// parseJSONSubmission decodes a JSON body and transcodes its payload back to
// raw bytes. Transcoding happens here, eagerly, so malformed transport text
// is a client error rather than a mid-stream staging failure.
func parseJSONSubmission(r *http.Request) (service.SubmitInput, error) {
	var body jsonSubmission
	if err := DecodeJSON(r, &body); err != nil {
		return service.SubmitInput{}, err
	}
	if body.Payload == "" {
		return service.SubmitInput{}, apperrors.InvalidInputField("payload", "payload is required")
	}

	raw, err := transcode.Decode(body.Payload)
	if err != nil {
		return service.SubmitInput{}, err
	}

	return service.SubmitInput{
		Payload:      bytes.NewReader(raw),
		Filename:     body.Filename,
		DeclaredType: body.DeclaredType,
		Context:      body.Context,
	}, nil
}

// parseContextField decodes the optional multipart context field, a JSON
// string-to-string object. Allowlisting and sanitization happen later in the
// upload service; this only rejects bodies that are not the right shape.
func parseContextField(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var encCtx map[string]string
	if err := json.Unmarshal([]byte(raw), &encCtx); err != nil {
		return nil, apperrors.InvalidInputField(
			"context", "context must be a JSON object with string values")
	}
	return encCtx, nil
}
