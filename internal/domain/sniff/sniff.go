// Package sniff determines a blob's true media type from its leading bytes.
// The sniffed type is authoritative over any client-declared content type;
// callers treat an Unknown result as fatal (fail closed).
package sniff

import "sort"

// ContentType is a sniffed media type. Unknown ("") means no signature
// matched; it is a value, not an error, so callers decide severity.
type ContentType string

// Unknown is returned when no signature matches, including for empty and
// short buffers.
const Unknown ContentType = ""

const (
	JPEG ContentType = "image/jpeg"
	PNG  ContentType = "image/png"
	GIF  ContentType = "image/gif"
	WebP ContentType = "image/webp"
)

// PrefixLen is the number of leading bytes Detect inspects. Callers that
// stream can tee off this many bytes and sniff without buffering the blob.
const PrefixLen = 16

type signature struct {
	mediaType ContentType
	offset    int
	magic     []byte
}

// Signature table ordered longest-prefix first so PNG wins over any shorter
// overlap. WebP needs two anchored runs (RIFF....WEBP).
var signatures = []signature{
	{PNG, 0, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{WebP, 0, []byte("RIFF")},
	{GIF, 0, []byte("GIF8")},
	{JPEG, 0, []byte{0xFF, 0xD8, 0xFF}},
}

var webpMarker = []byte("WEBP")

// Detect inspects the first bytes of data against the signature table and
// returns the matching media type, or Unknown when nothing matches.
func Detect(data []byte) ContentType {
	for _, sig := range signatures {
		if !matchAt(data, sig.offset, sig.magic) {
			continue
		}
		if sig.mediaType == WebP && !matchAt(data, 8, webpMarker) {
			continue
		}
		return sig.mediaType
	}
	return Unknown
}

func matchAt(data []byte, offset int, magic []byte) bool {
	if len(data) < offset+len(magic) {
		return false
	}
	for i, b := range magic {
		if data[offset+i] != b {
			return false
		}
	}
	return true
}

// Accepted reports whether t is in the accepted media-type set.
func Accepted(t ContentType) bool {
	switch t {
	case JPEG, PNG, GIF, WebP:
		return true
	default:
		return false
	}
}

// AcceptedTypes returns the accepted set in sorted order, for error messages
// and policy documents.
func AcceptedTypes() []string {
	types := []string{string(JPEG), string(PNG), string(GIF), string(WebP)}
	sort.Strings(types)
	return types
}
