// Package emotion classifies the vocal emotion of an answer segment.
package emotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"ai-interview-audio-service/internal/observability/logging"
	"ai-interview-audio-service/internal/observability/metrics"
	"ai-interview-audio-service/internal/resilience"
	"ai-interview-audio-service/internal/service/audio"
)

// UnknownLabel is reported when inference fails.
const UnknownLabel = "unknown"

// DefaultLabels is the label set of the speech emotion model, in output
// order.
var DefaultLabels = []string{"angry", "disgust", "fear", "happy", "neutral", "sad", "surprise"}

// Classifier is implemented by emotion engines.
type Classifier interface {
	Classify(ctx context.Context, seg audio.Segment) (string, error)
}

// Reason classifies an inference failure.
type Reason string

const (
	ReasonTimeout     Reason = "timeout"
	ReasonCanceled    Reason = "canceled"
	ReasonEngine      Reason = "engine_error"
	ReasonUnavailable Reason = "unavailable"
)

// Failure is returned alongside UnknownLabel when the engine could not
// classify a segment.
type Failure struct {
	Provider string
	Reason   Reason
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("emotion inference failed (%s/%s): %v", f.Provider, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// ErrNoScores is returned when an engine produced no probabilities.
var ErrNoScores = errors.New("no scores")

// Argmax returns the label with the highest probability. When probs and
// labels differ in length the shorter one bounds the search.
func Argmax(probs []float64, labels []string) (string, error) {
	n := len(probs)
	if len(labels) < n {
		n = len(labels)
	}
	if n == 0 {
		return "", ErrNoScores
	}
	best := 0
	for i := 1; i < n; i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return labels[best], nil
}

// Config tunes the guarded adapter.
type Config struct {
	Provider      string
	Timeout       time.Duration
	MaxConcurrent int64
}

// Adapter bounds an engine with a timeout, a concurrency limit and a circuit
// breaker.
type Adapter struct {
	engine   Classifier
	provider string
	timeout  time.Duration
	sem      *semaphore.Weighted
	breaker  *resilience.Breaker
	metrics  *metrics.Metrics
}

// NewAdapter wraps engine.
func NewAdapter(engine Classifier, cfg Config, m *metrics.Metrics) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.Provider == "" {
		cfg.Provider = "mock"
	}

	return &Adapter{
		engine:   engine,
		provider: cfg.Provider,
		timeout:  cfg.Timeout,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name: "emotion-" + cfg.Provider,
			Counts: func(err error) bool {
				return err != nil && !errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerState(name, int(to))
			},
		}),
		metrics: m,
	}
}

// Classify runs the engine under the adapter's guards. On failure it returns
// UnknownLabel and a *Failure.
func (a *Adapter) Classify(ctx context.Context, seg audio.Segment) (string, error) {
	start := time.Now()
	logger := logging.WithComponent("emotion").With().
		Str("provider", a.provider).
		Str("segmentId", seg.ID()).
		Logger()

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var label string
	err := a.sem.Acquire(callCtx, 1)
	if err == nil {
		err = func() error {
			defer a.sem.Release(1)
			return a.breaker.Execute(func() error {
				var engineErr error
				label, engineErr = a.engine.Classify(callCtx, seg)
				return engineErr
			})
		}()
	}
	if err == nil && label == "" {
		err = ErrNoScores
	}

	if err != nil {
		reason := ReasonEngine
		switch {
		case errors.Is(err, resilience.ErrOpen):
			reason = ReasonUnavailable
		case ctx.Err() != nil:
			reason = ReasonCanceled
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			reason = ReasonTimeout
		}
		a.metrics.RecordEmotion(a.provider, string(reason), time.Since(start).Seconds())
		logger.Warn().
			Err(err).
			Str("reason", string(reason)).
			Msg("Emotion inference failed, reporting unknown")
		return UnknownLabel, &Failure{Provider: a.provider, Reason: reason, Err: err}
	}

	a.metrics.RecordEmotion(a.provider, "", time.Since(start).Seconds())
	logger.Debug().
		Str("emotion", label).
		Dur("elapsed", time.Since(start)).
		Msg("Emotion inference completed")
	return label, nil
}
