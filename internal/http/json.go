package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/target/sealbox/internal/errors"
)

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
// Malformed bodies come back as INVALID_INPUT so the error renderer gives the
// client a stable code; an oversized body keeps its MaxBytesError cause and
// is promoted to FILE_TOO_LARGE at render time.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "request body is not valid JSON")
	}
	return nil
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}
