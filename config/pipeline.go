package config

import "time"

// PipelineConfig contains upload gateway and inference consumer tuning.
type PipelineConfig struct {
	// MaxUploadBytes is the decoded payload size ceiling for a single
	// submission. Larger payloads are rejected with FILE_TOO_LARGE.
	MaxUploadBytes int64 `env:"PIPELINE_MAX_UPLOAD_BYTES" envDefault:"10485760"` // 10 MiB

	// JobTTL is how long a job record stays readable in the broker.
	// Status polls after expiry see JOB_NOT_FOUND.
	JobTTL time.Duration `env:"PIPELINE_JOB_TTL" envDefault:"1h"`

	// RateLimit is the number of submissions allowed per client over
	// each RateWindow.
	RateLimit int `env:"PIPELINE_RATE_LIMIT" envDefault:"100"`

	// RateWindow is the rolling window the rate limit applies to.
	RateWindow time.Duration `env:"PIPELINE_RATE_WINDOW" envDefault:"15m"`

	// ConsumerEnabled runs the inference consumer inside this process.
	// Set to false on gateway-only replicas in role-split deployments.
	ConsumerEnabled bool `env:"PIPELINE_CONSUMER_ENABLED" envDefault:"true"`

	// Workers is the number of consumer goroutines. Horizontal replicas
	// are the primary scaling lever; this stays low.
	Workers int `env:"PIPELINE_WORKERS" envDefault:"1"`

	// DequeueWait is the bounded blocking-pop wait per dequeue attempt.
	DequeueWait time.Duration `env:"PIPELINE_DEQUEUE_WAIT" envDefault:"5s"`

	// Backoff is the pause after a broker error before the consumer
	// retries, so a Redis outage does not turn into a busy loop.
	Backoff time.Duration `env:"PIPELINE_BACKOFF" envDefault:"1s"`

	// SimLatency adds an artificial delay per inference in the simulated
	// engine. Zero disables the delay.
	SimLatency time.Duration `env:"PIPELINE_SIM_LATENCY" envDefault:"0s"`
}

// Sanitize applies guardrails to pipeline configuration values.
func (p *PipelineConfig) Sanitize() {
	if p.MaxUploadBytes < 1 {
		p.MaxUploadBytes = 10 << 20
	}
	if p.JobTTL < time.Minute {
		p.JobTTL = time.Minute
	}
	if p.RateLimit < 1 {
		p.RateLimit = 1
	}
	if p.RateWindow < time.Second {
		p.RateWindow = time.Second
	}

	// Enforce worker bounds; BRPOP waits have one-second resolution
	if p.Workers < 1 {
		p.Workers = 1
	}
	if p.Workers > 64 {
		p.Workers = 64
	}
	if p.DequeueWait < time.Second {
		p.DequeueWait = time.Second
	}
	if p.Backoff < 100*time.Millisecond {
		p.Backoff = 100 * time.Millisecond
	}
	if p.SimLatency < 0 {
		p.SimLatency = 0
	}
}
