package policy

import (
	"errors"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/sealbox/internal/domain/model"
)

// ReasonEvaluationFailed is the decision reason when a rule expression
// errors at evaluation time. The engine fails closed in that case.
const ReasonEvaluationFailed = "policy evaluation failed"

// ReasonNoMatch is the decision reason when no rule matched.
const ReasonNoMatch = "no matching rule"

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// EngineOptions groups dependencies for Engine.
type EngineOptions struct {
	Bundle    *Bundle           // Required: validated policy bundle
	Evaluator JMESPathEvaluator // Optional: defaults to the go-jmespath library
}

// Engine evaluates policy rules against decision documents. Within a point,
// deny rules are tried first, then redact, then allow; the first rule whose
// expression is truthy wins. When nothing matches the decision is allow.
type Engine struct {
	jems   JMESPathEvaluator
	digest string
	order  map[model.EvaluationPoint][]Rule
}

// NewEngine validates and compiles the bundle into an Engine. A rule whose
// expression fails to compile rejects the whole bundle.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Bundle == nil {
		return nil, errors.New("policy bundle is required")
	}
	if err := opts.Bundle.Validate(); err != nil {
		return nil, err
	}
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	for _, r := range opts.Bundle.Rules {
		if err := jems.Validate(r.When); err != nil {
			return nil, fmt.Errorf("rule %q: invalid when expression: %w", r.ID, err)
		}
	}

	order := make(map[model.EvaluationPoint][]Rule, 2)
	for _, point := range []model.EvaluationPoint{model.PointPre, model.PointPost} {
		for _, effect := range []model.Effect{model.EffectDeny, model.EffectRedact, model.EffectAllow} {
			for _, r := range opts.Bundle.Rules {
				if r.Point == point && r.Effect == effect {
					order[point] = append(order[point], r)
				}
			}
		}
	}

	return &Engine{
		jems:   jems,
		digest: opts.Bundle.Digest(),
		order:  order,
	}, nil
}

// MustNewEngine constructs a new Engine and panics on error.
// Use this when you want fail-fast behavior during application startup.
func MustNewEngine(opts EngineOptions) *Engine {
	engine, err := NewEngine(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when the bundle is invalid during startup
	}
	return engine
}

// Digest returns the SHA-256 digest of the loaded bundle.
func (e *Engine) Digest() string {
	return e.digest
}

// Evaluate applies the rules registered for point to doc and returns the
// winning decision. An expression error denies rather than allowing
// whatever the broken rule would have caught.
func (e *Engine) Evaluate(point model.EvaluationPoint, doc map[string]any) model.Decision {
	for _, rule := range e.order[point] {
		res, err := e.jems.Evaluate(rule.When, doc)
		if err != nil {
			return model.Decision{
				Effect: model.EffectDeny,
				Reason: ReasonEvaluationFailed,
				RuleID: rule.ID,
			}
		}
		if !truthy(res) {
			continue
		}
		d := model.Decision{
			Effect: rule.Effect,
			Reason: rule.Reason,
			RuleID: rule.ID,
		}
		if rule.Effect == model.EffectRedact && rule.Redactions != nil {
			fields := make([]string, len(rule.Redactions.Fields))
			copy(fields, rule.Redactions.Fields)
			d.Redactions = &model.Redactions{Fields: fields}
		}
		return d
	}
	return model.Decision{Effect: model.EffectAllow, Reason: ReasonNoMatch}
}

// truthy follows JMESPath truth semantics: false, null, empty strings,
// empty arrays, and empty objects are false-like; everything else matches.
func truthy(v any) bool {
	switch tv := v.(type) {
	case nil:
		return false
	case bool:
		return tv
	case string:
		return tv != ""
	case []any:
		return len(tv) > 0
	case map[string]any:
		return len(tv) > 0
	default:
		return true
	}
}
