// Package mock provides a deterministic emotion engine for local runs and
// tests.
package mock

import (
	"context"
	"math"
	"sync"

	"ai-interview-audio-service/internal/service/audio"
)

// Classifier maps segment loudness to a label: quiet answers are "sad",
// moderate ones "neutral", loud ones "happy". A fixed label overrides this.
type Classifier struct {
	mu    sync.Mutex
	fixed string
	err   error
	calls []string
}

// New creates a loudness-based mock.
func New() *Classifier {
	return &Classifier{}
}

// NewFixed creates a mock that always returns label.
func NewFixed(label string) *Classifier {
	return &Classifier{fixed: label}
}

// NewFailing creates a mock that always returns err.
func NewFailing(err error) *Classifier {
	return &Classifier{err: err}
}

// Classify returns a label for seg.
func (c *Classifier) Classify(ctx context.Context, seg audio.Segment) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, seg.ID())
	fixed, err := c.fixed, c.err
	c.mu.Unlock()

	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fixed != "" {
		return fixed, nil
	}

	switch r := rms(seg.Samples()); {
	case r < 0.02:
		return "sad", nil
	case r < 0.2:
		return "neutral", nil
	default:
		return "happy", nil
	}
}

// Calls returns the IDs of classified segments in call order.
func (c *Classifier) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
