// Package mock provides a scripted speech engine for running the service
// without cloud credentials. Each call returns the next line of the script,
// cycling, so a streaming session eventually produces an end-of-turn phrase.
package mock

import (
	"context"
	"sync"
	"time"

	"ai-interview-audio-service/internal/service/audio"
)

// DefaultScript simulates a candidate answering over several flush cycles
// and closing the answer on the last line.
var DefaultScript = []string{
	"In my last role I was responsible for the payments backend",
	"we migrated the service to Go and cut latency in half",
	"the hardest part was keeping the old API running during the cutover",
	"I learned a lot about planning incremental rollouts, that's all",
}

// Adapter implements stt.Transcriber with scripted responses.
type Adapter struct {
	mu     sync.Mutex
	script []string
	next   int
	calls  int
	delay  time.Duration
	err    error

	// Silent segments (all zero) produce an empty transcript when set.
	detectSilence bool
}

// Option configures the mock.
type Option func(*Adapter)

// WithScript replaces the default script.
func WithScript(lines ...string) Option {
	return func(a *Adapter) { a.script = lines }
}

// WithDelay makes every call wait d or until ctx is done.
func WithDelay(d time.Duration) Option {
	return func(a *Adapter) { a.delay = d }
}

// WithError makes every call fail with err.
func WithError(err error) Option {
	return func(a *Adapter) { a.err = err }
}

// WithSilenceDetection returns "" for segments with no signal.
func WithSilenceDetection() Option {
	return func(a *Adapter) { a.detectSilence = true }
}

// New creates a mock engine.
func New(opts ...Option) *Adapter {
	a := &Adapter{script: DefaultScript}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Transcribe returns the next scripted line.
func (a *Adapter) Transcribe(ctx context.Context, seg audio.Segment, _ string) (string, error) {
	a.mu.Lock()
	a.calls++
	delay, err := a.delay, a.err
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if a.detectSilence && isSilent(seg) {
		return "", nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.script) == 0 {
		return "", nil
	}
	text := a.script[a.next%len(a.script)]
	a.next++
	return text, nil
}

// Calls returns how many times Transcribe was invoked.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func isSilent(seg audio.Segment) bool {
	for _, s := range seg.Samples() {
		if s > 1e-4 || s < -1e-4 {
			return false
		}
	}
	return true
}
