package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/sealbox/internal/domain/model"
)

func validRule() Rule {
	return Rule{
		ID:     "pre.size",
		Point:  model.PointPre,
		Effect: model.EffectDeny,
		Reason: "too big",
		When:   "size > `100`",
	}
}

func TestBundleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Bundle)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Bundle) {},
		},
		{
			name:    "missing version",
			mutate:  func(b *Bundle) { b.Version = " " },
			wantErr: "version",
		},
		{
			name: "duplicate rule id",
			mutate: func(b *Bundle) {
				dup := validRule()
				b.Rules = append(b.Rules, dup)
			},
			wantErr: "duplicate",
		},
		{
			name:    "missing rule id",
			mutate:  func(b *Bundle) { b.Rules[0].ID = "" },
			wantErr: "id is required",
		},
		{
			name:    "invalid point",
			mutate:  func(b *Bundle) { b.Rules[0].Point = "during" },
			wantErr: "invalid point",
		},
		{
			name:    "invalid effect",
			mutate:  func(b *Bundle) { b.Rules[0].Effect = "reject" },
			wantErr: "invalid effect",
		},
		{
			name:    "missing reason",
			mutate:  func(b *Bundle) { b.Rules[0].Reason = "" },
			wantErr: "reason is required",
		},
		{
			name:    "missing when",
			mutate:  func(b *Bundle) { b.Rules[0].When = "  " },
			wantErr: "when expression is required",
		},
		{
			name: "redact without fields",
			mutate: func(b *Bundle) {
				b.Rules[0].Effect = model.EffectRedact
				b.Rules[0].Redactions = &model.Redactions{}
			},
			wantErr: "at least one field",
		},
		{
			name: "empty redaction field",
			mutate: func(b *Bundle) {
				b.Rules[0].Effect = model.EffectRedact
				b.Rules[0].Redactions = &model.Redactions{Fields: []string{" "}}
			},
			wantErr: "empty redaction field",
		},
		{
			name: "redactions on a deny rule",
			mutate: func(b *Bundle) {
				b.Rules[0].Redactions = &model.Redactions{Fields: []string{"x"}}
			},
			wantErr: "only valid on redact rules",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Bundle{Version: "1.0", Rules: []Rule{validRule()}}
			tt.mutate(b)

			err := b.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeBundleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadBundle(t *testing.T) {
	path := writeBundleFile(t, `{
		"version": "2.1",
		"rules": [
			{
				"id": "out.min_confidence",
				"point": "post",
				"effect": "redact",
				"reason": "confidence below reporting threshold",
				"when": "confidence < `+"`0.5`"+`",
				"redactions": {"fields": ["confidence"]}
			}
		]
	}`)

	b, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, "2.1", b.Version)
	require.Len(t, b.Rules, 1)
	assert.Equal(t, model.EffectRedact, b.Rules[0].Effect)
	assert.Equal(t, model.PointPost, b.Rules[0].Point)
}

func TestLoadBundle_NormalizesEffectCase(t *testing.T) {
	path := writeBundleFile(t, `{
		"version": "1.0",
		"rules": [
			{"id": "pre.size", "point": "PRE", "effect": "Deny", "reason": "too big", "when": "size > `+"`100`"+`"}
		]
	}`)

	b, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, model.EffectDeny, b.Rules[0].Effect)
	assert.Equal(t, model.PointPre, b.Rules[0].Point)
}

func TestLoadBundle_RejectsUnknownFields(t *testing.T) {
	path := writeBundleFile(t, `{
		"version": "1.0",
		"rules": [
			{"id": "pre.size", "point": "pre", "effect": "deny", "reason": "too big", "when": "size", "redact": ["x"]}
		]
	}`)

	_, err := LoadBundle(path)
	require.Error(t, err, "a misspelled rule key must fail the load, not weaken the policy")
}

func TestLoadBundle_RejectsUnknownEffect(t *testing.T) {
	path := writeBundleFile(t, `{
		"version": "1.0",
		"rules": [
			{"id": "pre.size", "point": "pre", "effect": "quarantine", "reason": "no", "when": "size"}
		]
	}`)

	_, err := LoadBundle(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quarantine")
}

func TestLoadBundle_MissingFile(t *testing.T) {
	_, err := LoadBundle(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestBundleDigest(t *testing.T) {
	a := &Bundle{Version: "1.0", Rules: []Rule{validRule()}}
	b := &Bundle{Version: "1.0", Rules: []Rule{validRule()}}
	assert.Equal(t, a.Digest(), b.Digest(), "identical bundles share a digest")
	assert.Len(t, a.Digest(), 64)

	b.Rules[0].Reason = "different"
	assert.NotEqual(t, a.Digest(), b.Digest(), "any rule change must change the digest")
}

func TestBundleDigest_IgnoresFileFormatting(t *testing.T) {
	compact := writeBundleFile(t,
		`{"version":"1.0","rules":[{"id":"pre.size","point":"pre","effect":"deny","reason":"too big","when":"size > `+"`100`"+`"}]}`)
	spaced := writeBundleFile(t, `{
		"rules": [
			{
				"when": "size > `+"`100`"+`",
				"reason": "too big",
				"effect": "deny",
				"point": "pre",
				"id": "pre.size"
			}
		],
		"version": "1.0"
	}`)

	a, err := LoadBundle(compact)
	require.NoError(t, err)
	b, err := LoadBundle(spaced)
	require.NoError(t, err)
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestDefaultBundle(t *testing.T) {
	engine := MustNewEngine(EngineOptions{Bundle: DefaultBundle()})

	t.Run("oversize submission is denied before inference", func(t *testing.T) {
		d := engine.Evaluate(model.PointPre, map[string]any{"size": float64(30 << 20)})
		assert.Equal(t, model.EffectDeny, d.Effect)
		assert.Equal(t, "in.max_upload_size", d.RuleID)
	})

	t.Run("ordinary submission passes", func(t *testing.T) {
		d := engine.Evaluate(model.PointPre, map[string]any{"size": float64(2048)})
		assert.Equal(t, model.EffectAllow, d.Effect)
	})

	t.Run("result echoing payload content is denied", func(t *testing.T) {
		d := engine.Evaluate(model.PointPost, map[string]any{"caption": "data:image/png;base64,AAAA"})
		assert.Equal(t, model.EffectDeny, d.Effect)
		assert.Equal(t, "out.payload_echo", d.RuleID)
	})

	t.Run("low confidence is redacted", func(t *testing.T) {
		d := engine.Evaluate(model.PointPost, map[string]any{"cats": float64(1), "confidence": 0.3})
		assert.Equal(t, model.EffectRedact, d.Effect)
		require.NotNil(t, d.Redactions)
		assert.Equal(t, []string{"confidence"}, d.Redactions.Fields)
	})

	t.Run("confident result passes", func(t *testing.T) {
		d := engine.Evaluate(model.PointPost, map[string]any{"cats": float64(2), "confidence": 0.91})
		assert.Equal(t, model.EffectAllow, d.Effect)
	})
}
