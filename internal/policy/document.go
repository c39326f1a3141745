package policy

import "github.com/target/sealbox/internal/domain/model"

// SubmissionDocument builds the decision document a pre-inference rule
// evaluates against. Numbers go in as float64 so JMESPath comparisons see
// JSON number types.
func SubmissionDocument(job *model.Job) map[string]any {
	enc := make(map[string]any, len(job.Context))
	for k, v := range job.Context {
		enc[k] = v
	}
	return map[string]any{
		"size":         float64(job.Size),
		"filename":     job.Filename,
		"declaredType": job.DeclaredType,
		"sniffedType":  job.SniffedType,
		"typeMismatch": job.TypeMismatch,
		"context":      enc,
	}
}

// ResultDocument builds the decision document a post-inference rule
// evaluates against. Cloning normalizes values to JSON types and keeps
// rule evaluation from aliasing the caller's result.
func ResultDocument(result model.Result) map[string]any {
	return map[string]any(result.Clone())
}
