package model

import (
	"fmt"
	"strings"
)

// Effect is a policy decision outcome.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Effect string

const (
	// EffectAllow releases the data unchanged.
	EffectAllow Effect = "allow"
	// EffectDeny blocks the data entirely.
	EffectDeny Effect = "deny"
	// EffectRedact releases the data with named field paths removed.
	EffectRedact Effect = "redact"
)

// Valid returns true if the Effect is one of the known outcomes.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny || e == EffectRedact
}

// UnmarshalText implements encoding.TextUnmarshaler so policy bundles reject
// unknown effects at load time.
func (e *Effect) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	ef := Effect(v)
	if ef.Valid() {
		*e = ef
		return nil
	}
	return fmt.Errorf("invalid Effect: %q", v)
}

// EvaluationPoint identifies where in the pipeline a policy decision is made.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type EvaluationPoint string

const (
	// PointPre is evaluated on submission metadata before inference runs.
	PointPre EvaluationPoint = "pre"
	// PointPost is evaluated on the raw inference result before release.
	PointPost EvaluationPoint = "post"
)

// Valid returns true if the EvaluationPoint is known.
func (p EvaluationPoint) Valid() bool {
	return p == PointPre || p == PointPost
}

// UnmarshalText implements encoding.TextUnmarshaler for bundle loading.
func (p *EvaluationPoint) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	ep := EvaluationPoint(v)
	if ep.Valid() {
		*p = ep
		return nil
	}
	return fmt.Errorf("invalid EvaluationPoint: %q", v)
}

// Redactions names the result field paths a redact decision removes.
type Redactions struct {
	Fields []string `json:"fields"`
}

// Decision is the egress policy guard's verdict for one evaluation. It is
// produced fresh per evaluation and persisted nowhere but the audit log.
type Decision struct {
	Effect     Effect      `json:"effect"`
	Reason     string      `json:"reason"`
	RuleID     string      `json:"ruleId,omitempty"`
	Redactions *Redactions `json:"redactions,omitempty"`
}

// Allowed is a convenience check for the pass-through outcome.
func (d Decision) Allowed() bool {
	return d.Effect == EffectAllow
}
