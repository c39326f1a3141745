package model

import "time"

// AuditRecord is one append-only entry in the egress guard's trail. Records
// carry a non-reversible digest of the encryption context, never the context
// or payload itself, and are chained by a monotonic sequence and an HMAC
// signature so tampering and gaps are detectable.
type AuditRecord struct {
	Timestamp     time.Time       `json:"timestamp"`
	Sequence      uint64          `json:"sequence"`
	Point         EvaluationPoint `json:"point"`
	Effect        Effect          `json:"effect"`
	Reason        string          `json:"reason"`
	RuleID        string          `json:"ruleId,omitempty"`
	JobID         string          `json:"jobId"`
	ContextDigest string          `json:"contextDigest"`
	PolicyDigest  string          `json:"policyDigest"`
	Signature     string          `json:"signature,omitempty"`
}
