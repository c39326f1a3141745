package config

import "strings"

// PolicyConfig contains egress policy bundle configuration.
type PolicyConfig struct {
	// BundlePath points at a JSON policy bundle on disk. Empty loads the
	// built-in default bundle.
	BundlePath string `env:"POLICY_BUNDLE_PATH" envDefault:""`
}

// Sanitize applies guardrails to policy configuration values.
func (p *PolicyConfig) Sanitize() {
	p.BundlePath = strings.TrimSpace(p.BundlePath)
}
