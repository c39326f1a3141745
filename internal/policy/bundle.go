package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/target/sealbox/internal/domain/model"
)

// Rule is a single egress policy rule. When evaluates against the decision
// document for the rule's point; a truthy result selects the rule's effect.
type Rule struct {
	ID         string                `json:"id"`
	Point      model.EvaluationPoint `json:"point"`
	Effect     model.Effect          `json:"effect"`
	Reason     string                `json:"reason"`
	When       string                `json:"when"`
	Redactions *model.Redactions     `json:"redactions,omitempty"`
}

// Bundle is a versioned set of policy rules, typically loaded from JSON.
type Bundle struct {
	Version string `json:"version"`
	Rules   []Rule `json:"rules"`
}

// Validate checks structural integrity of the bundle. Expression syntax is
// checked separately when an Engine compiles the bundle.
func (b *Bundle) Validate() error {
	if strings.TrimSpace(b.Version) == "" {
		return errors.New("policy bundle version is required")
	}
	seen := make(map[string]struct{}, len(b.Rules))
	for i, r := range b.Rules {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("rule %q: duplicate id", r.ID)
		}
		seen[r.ID] = struct{}{}
		if !r.Point.Valid() {
			return fmt.Errorf("rule %q: invalid point %q", r.ID, r.Point)
		}
		if !r.Effect.Valid() {
			return fmt.Errorf("rule %q: invalid effect %q", r.ID, r.Effect)
		}
		if strings.TrimSpace(r.Reason) == "" {
			return fmt.Errorf("rule %q: reason is required", r.ID)
		}
		if strings.TrimSpace(r.When) == "" {
			return fmt.Errorf("rule %q: when expression is required", r.ID)
		}
		if r.Effect == model.EffectRedact {
			if r.Redactions == nil || len(r.Redactions.Fields) == 0 {
				return fmt.Errorf("rule %q: redact rules need at least one field", r.ID)
			}
			for _, f := range r.Redactions.Fields {
				if strings.TrimSpace(f) == "" {
					return fmt.Errorf("rule %q: empty redaction field", r.ID)
				}
			}
		} else if r.Redactions != nil {
			return fmt.Errorf("rule %q: redactions are only valid on redact rules", r.ID)
		}
	}
	return nil
}

// Digest returns the SHA-256 of the bundle's canonical JSON form, hex encoded.
// The digest is stable across load-time formatting differences and is stamped
// on every audit record produced under this bundle.
func (b *Bundle) Digest() string {
	raw, err := json.Marshal(b)
	if err != nil {
		// Bundle holds only strings and slices; marshal cannot fail.
		panic(fmt.Sprintf("policy: marshal bundle: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// LoadBundle reads and validates a policy bundle from a JSON file. Unknown
// fields are rejected so misspelled rule keys fail loudly instead of silently
// weakening the policy.
func LoadBundle(path string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy bundle: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("parse policy bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy bundle: %w", err)
	}
	return &b, nil
}

// DefaultBundle returns the built-in conservative policy used when no bundle
// file is configured: cap input size before inference, refuse results that
// echo raw payload content, and drop low-confidence scores from stored
// results.
func DefaultBundle() *Bundle {
	return &Bundle{
		Version: "1.0",
		Rules: []Rule{
			{
				ID:     "in.max_upload_size",
				Point:  model.PointPre,
				Effect: model.EffectDeny,
				Reason: "file too large for processing",
				When:   "size > `26214400`",
			},
			{
				ID:     "out.payload_echo",
				Point:  model.PointPost,
				Effect: model.EffectDeny,
				Reason: "result echoes raw payload content",
				When:   "contains(to_string(@), '/9j/') || contains(to_string(@), 'iVBOR') || contains(to_string(@), 'data:image')",
			},
			{
				ID:     "out.min_confidence",
				Point:  model.PointPost,
				Effect: model.EffectRedact,
				Reason: "confidence below reporting threshold",
				When:   "confidence < `0.5`",
				Redactions: &model.Redactions{
					Fields: []string{"confidence"},
				},
			},
		},
	}
}
