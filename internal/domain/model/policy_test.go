package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffect_Valid(t *testing.T) {
	assert.True(t, EffectAllow.Valid())
	assert.True(t, EffectDeny.Valid())
	assert.True(t, EffectRedact.Valid())
	assert.False(t, Effect("drop").Valid())
}

func TestEffect_UnmarshalText(t *testing.T) {
	var e Effect
	require.NoError(t, e.UnmarshalText([]byte("DENY")))
	assert.Equal(t, EffectDeny, e)

	assert.Error(t, e.UnmarshalText([]byte("reject")))
}

func TestEvaluationPoint_Valid(t *testing.T) {
	assert.True(t, PointPre.Valid())
	assert.True(t, PointPost.Valid())
	assert.False(t, EvaluationPoint("mid").Valid())
}

func TestDecision_WireFormat(t *testing.T) {
	d := Decision{
		Effect: EffectRedact,
		Reason: "confidence below threshold",
		RuleID: "redact-low-confidence",
		Redactions: &Redactions{
			Fields: []string{"confidence"},
		},
	}

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"effect": "redact",
		"reason": "confidence below threshold",
		"ruleId": "redact-low-confidence",
		"redactions": {"fields": ["confidence"]}
	}`, string(raw))
}

func TestDecision_Allowed(t *testing.T) {
	assert.True(t, Decision{Effect: EffectAllow}.Allowed())
	assert.False(t, Decision{Effect: EffectDeny}.Allowed())
	assert.False(t, Decision{Effect: EffectRedact}.Allowed())
}
