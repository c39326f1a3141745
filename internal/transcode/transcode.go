// Package transcode converts between raw binary payloads and the text
// encoding they travel in (JSON submissions, broker records). Both directions
// move data through a fixed-size buffer so memory per call stays bounded on
// arbitrarily large inputs; the output is canonical standard base64.
package transcode

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/target/sealbox/internal/errors"
)

// ChunkSize is the buffer size moved per step when encoding or decoding.
const ChunkSize = 32768

// Encode converts data to transport-safe text. It is total over any input,
// including nil and empty slices (both encode to "").
func Encode(data []byte) string {
	var sb strings.Builder
	sb.Grow(base64.StdEncoding.EncodedLen(len(data)))
	// strings.Builder writes never fail, so neither can this.
	if err := EncodeTo(&sb, bytes.NewReader(data)); err != nil {
		panic("transcode: encode to builder: " + err.Error())
	}
	return sb.String()
}

// EncodeTo streams r through a base64 encoder into w, ChunkSize bytes at a
// time.
func EncodeTo(w io.Writer, r io.Reader) error {
	enc := base64.NewEncoder(base64.StdEncoding, w)
	if _, err := io.CopyBuffer(enc, r, make([]byte, ChunkSize)); err != nil {
		return fmt.Errorf("transcode: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("transcode: flush encoder: %w", err)
	}
	return nil
}

// Decode converts transport text back to raw bytes. Malformed text yields an
// INVALID_INPUT error rather than a silent partial result. Decode("") is an
// empty slice.
func Decode(text string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(base64.StdEncoding.DecodedLen(len(text)))
	if err := DecodeTo(&buf, strings.NewReader(text)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeTo streams base64 text from r into w, ChunkSize bytes at a time.
func DecodeTo(w io.Writer, r io.Reader) error {
	dec := base64.NewDecoder(base64.StdEncoding, r)
	if _, err := io.CopyBuffer(w, dec, make([]byte, ChunkSize)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "payload is not valid transport text")
	}
	return nil
}
