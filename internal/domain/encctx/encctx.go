// Package encctx validates the non-secret metadata (encryption context)
// attached to a ciphertext submission. The context is allowlist-filtered and
// sanitized before any value is stored, evaluated, or logged; it must never
// carry content that would leak payload information if it escaped into a log
// line or markup.
package encctx

import (
	"sort"
	"strings"
)

// Allowlisted context keys. Anything else is dropped, not rejected.
const (
	KeySessionID       = "session_id"
	KeyUploadTimestamp = "upload_timestamp"
	KeyFileType        = "file_type"
	KeyProcessingStage = "processing_stage"
)

var allowlist = map[string]struct{}{
	KeySessionID:       {},
	KeyUploadTimestamp: {},
	KeyFileType:        {},
	KeyProcessingStage: {},
}

// AllowedKeys returns the allowlist in sorted order.
func AllowedKeys() []string {
	keys := make([]string, 0, len(allowlist))
	for k := range allowlist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate filters ctx down to allowlisted keys and rewrites each retained
// value with markup and control characters removed. Unknown keys drop
// silently. The result is never nil; empty input yields an empty map.
func Validate(ctx map[string]string) map[string]string {
	out := make(map[string]string, len(ctx))
	for k, v := range ctx {
		if _, ok := allowlist[k]; !ok {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

// sanitizeValue removes angle brackets, double quotes, and the control
// characters CR, LF, and TAB. Values are rewritten, never rejected.
func sanitizeValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\r', '\n', '\t':
			return -1
		default:
			return r
		}
	}, v)
}
