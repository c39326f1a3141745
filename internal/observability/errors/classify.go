package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/sealbox/internal/errors"
)

// Classify returns a normalized error class suitable for tagging metrics and
// logs. Pipeline errors classify by their stable code (e.g. "egress_denied");
// anything else falls back to the innermost concrete type name.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	if code := apperrors.GetCode(err); code != "" {
		return strings.ToLower(string(code))
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	return typeName(err)
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
