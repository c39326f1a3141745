package config

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// MaxBodyBytes caps the raw request body accepted by the gateway.
	// Zero lets the router derive a cap from the payload size limit.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"0"`

	// CompressionEnabled enables gzip compression for JSON responses.
	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`

	// CompressionLevel is the gzip compression level (1-9).
	// Default is 6 (standard gzip default).
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`

	// CompressionMinSize is the minimum response size in bytes before
	// compression kicks in. Zero compresses everything.
	CompressionMinSize int `env:"HTTP_COMPRESSION_MIN_SIZE" envDefault:"0"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.MaxBodyBytes < 0 {
		h.MaxBodyBytes = 0
	}

	// Clamp compression level to valid gzip range (1-9)
	if h.CompressionLevel < 1 {
		h.CompressionLevel = 1
	}
	if h.CompressionLevel > 9 {
		h.CompressionLevel = 9
	}

	if h.CompressionMinSize < 0 {
		h.CompressionMinSize = 0
	}
}
