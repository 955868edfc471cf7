// Package stt defines the speech-to-text boundary and the guarded adapter
// the session orchestrator calls.
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"ai-interview-audio-service/internal/observability/logging"
	"ai-interview-audio-service/internal/observability/metrics"
	"ai-interview-audio-service/internal/resilience"
	"ai-interview-audio-service/internal/service/audio"
)

// Transcriber is implemented by speech engines (mock, Google, OpenAI).
type Transcriber interface {
	// Transcribe converts a segment to text. languageHint is a BCP-47 code
	// and may be empty.
	Transcribe(ctx context.Context, seg audio.Segment, languageHint string) (string, error)
}

// Reason classifies a transcription failure.
type Reason string

const (
	ReasonTimeout     Reason = "timeout"
	ReasonCanceled    Reason = "canceled"
	ReasonEngine      Reason = "engine_error"
	ReasonUnavailable Reason = "unavailable"
)

// Failure is returned alongside an empty transcript when the engine could not
// produce one.
type Failure struct {
	Provider string
	Reason   Reason
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("transcription failed (%s/%s): %v", f.Provider, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Config tunes the guarded adapter.
type Config struct {
	Provider      string
	Timeout       time.Duration
	MaxConcurrent int64
}

// DefaultConfig returns the adapter defaults.
func DefaultConfig() Config {
	return Config{
		Provider:      "mock",
		Timeout:       30 * time.Second,
		MaxConcurrent: 4,
	}
}

// Adapter bounds an engine with a timeout, a process-wide concurrency limit
// and a circuit breaker. It never returns partial text with an error.
type Adapter struct {
	engine   Transcriber
	provider string
	timeout  time.Duration
	sem      *semaphore.Weighted
	breaker  *resilience.Breaker
	metrics  *metrics.Metrics
}

// NewAdapter wraps engine.
func NewAdapter(engine Transcriber, cfg Config, m *metrics.Metrics) *Adapter {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}

	return &Adapter{
		engine:   engine,
		provider: cfg.Provider,
		timeout:  cfg.Timeout,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:   "stt-" + cfg.Provider,
			Counts: countsAsEngineFailure,
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerState(name, int(to))
			},
		}),
		metrics: m,
	}
}

// Provider returns the engine name.
func (a *Adapter) Provider() string { return a.provider }

// Transcribe runs the engine under the adapter's guards. On failure it
// returns "" and a *Failure.
func (a *Adapter) Transcribe(ctx context.Context, seg audio.Segment, languageHint string) (string, error) {
	start := time.Now()
	logger := logging.WithComponent("stt").With().
		Str("sttProvider", a.provider).
		Str("segmentId", seg.ID()).
		Logger()

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var text string
	err := a.sem.Acquire(callCtx, 1)
	if err == nil {
		err = func() error {
			defer a.sem.Release(1)
			return a.breaker.Execute(func() error {
				var engineErr error
				text, engineErr = a.engine.Transcribe(callCtx, seg, languageHint)
				return engineErr
			})
		}()
	}

	if err != nil {
		failure := &Failure{Provider: a.provider, Reason: classify(ctx, callCtx, err), Err: err}
		a.metrics.RecordTranscription(a.provider, string(failure.Reason), time.Since(start).Seconds())
		logger.Warn().
			Err(err).
			Str("reason", string(failure.Reason)).
			Dur("elapsed", time.Since(start)).
			Msg("Transcription failed, treating as empty transcript")
		return "", failure
	}

	a.metrics.RecordTranscription(a.provider, "", time.Since(start).Seconds())
	text = strings.TrimSpace(text)
	logger.Debug().
		Int("chars", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("Transcription completed")
	return text, nil
}

func classify(parent, call context.Context, err error) Reason {
	switch {
	case errors.Is(err, resilience.ErrOpen):
		return ReasonUnavailable
	case parent.Err() != nil:
		return ReasonCanceled
	case errors.Is(call.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonEngine
	}
}

func countsAsEngineFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}
