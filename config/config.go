package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Redis broker and audit database configuration
//   - http.go: HTTP server configuration
//   - pipeline.go: upload gateway and consumer tuning
//   - storage.go: staged payload storage configuration
//   - policy.go: egress policy bundle configuration
//   - observability.go: metrics emission configuration
type AppConfig struct {
	// IsDev relaxes production guardrails (missing keys warn instead of
	// refusing to start). Set DEV=true or APP_ENV=development.
	IsDev bool `env:"DEV" envDefault:"false"`

	// PayloadEncryptionKey decrypts staged payloads before inference.
	// A 64-char hex value is used as the raw 32-byte key; anything else
	// is hashed to key size. Empty selects the passthrough decrypter,
	// which treats staged bytes as plaintext.
	PayloadEncryptionKey string `env:"PAYLOAD_ENCRYPTION_KEY"`

	// AuditSigningKey keys the HMAC signature on egress audit records.
	// Required for production, optional for development.
	AuditSigningKey string `env:"AUDIT_SIGNING_KEY"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Broker and audit database configuration
	Redis   RedisConfig   `envPrefix:"REDIS_"`
	AuditDB AuditDBConfig `envPrefix:"AUDIT_DB_"`

	// Gateway and consumer tuning
	Pipeline PipelineConfig

	// Staged payload storage configuration
	Storage StorageConfig

	// Egress policy configuration
	Policy PolicyConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.PayloadEncryptionKey = strings.TrimSpace(c.PayloadEncryptionKey)
	c.AuditSigningKey = strings.TrimSpace(c.AuditSigningKey)

	c.HTTP.Sanitize()
	c.Pipeline.Sanitize()
	c.Storage.Sanitize()
	c.Policy.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}
