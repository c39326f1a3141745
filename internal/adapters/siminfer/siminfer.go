// Package siminfer is a deterministic stand-in for the inference engine. It
// reproduces the development detector's result shape and filename heuristics,
// but derives every value from a SHA-256 of the plaintext so identical
// payloads always yield identical results.
package siminfer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/target/sealbox/internal/domain/model"
)

// ModelName tags results produced by this engine.
const ModelName = "mock"

// Engine implements the inference port.
type Engine struct {
	latency time.Duration
}

// Options configures the Engine.
type Options struct {
	// Latency simulates model runtime per inference. Zero means no delay.
	Latency time.Duration
}

// New creates a simulated engine.
func New(opts Options) *Engine {
	return &Engine{latency: opts.Latency}
}

// Infer produces the detector result shape: cats count, confidence,
// processing_time, and model. Filenames hinting "cat" score high-confidence
// detections, "dog" scores zero, anything else spreads low counts.
func (e *Engine) Infer(ctx context.Context, plaintext []byte, job *model.Job) (model.Result, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}

	start := time.Now()
	if e.latency > 0 {
		timer := time.NewTimer(e.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	digest := sha256.Sum256(plaintext)
	name := strings.ToLower(job.Filename)

	var cats int
	var confidence float64
	switch {
	case strings.Contains(name, "cat"):
		cats = 1 + int(digest[0])%3
		confidence = 0.85 + float64(digest[1])/255*0.10
	case strings.Contains(name, "dog"):
		cats = 0
		confidence = 0.90
	default:
		spread := [...]int{0, 0, 0, 1, 1, 2}
		cats = spread[int(digest[0])%len(spread)]
		confidence = 0.60 + float64(digest[1])/255*0.30
	}

	return model.Result{
		"cats":            cats,
		"confidence":      math.Round(confidence*10000) / 10000,
		"processing_time": fmt.Sprintf("%.2fs", time.Since(start).Seconds()),
		"model":           ModelName,
	}, nil
}
