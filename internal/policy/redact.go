package policy

import (
	"strings"

	"github.com/target/sealbox/internal/domain/model"
)

// ApplyRedactions returns a copy of result with the named field paths
// removed. Paths address nested objects with dots ("meta.trace"); paths that
// do not resolve are ignored. The input result is never modified.
func ApplyRedactions(result model.Result, fields []string) model.Result {
	out := result.Clone()
	for _, field := range fields {
		removePath(map[string]any(out), strings.Split(field, "."))
	}
	return out
}

func removePath(node map[string]any, path []string) {
	if node == nil || len(path) == 0 {
		return
	}
	if len(path) == 1 {
		delete(node, path[0])
		return
	}
	child, ok := node[path[0]].(map[string]any)
	if !ok {
		return
	}
	removePath(child, path[1:])
}
