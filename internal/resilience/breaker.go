// Package resilience guards calls to slow or flaky inference engines.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrOpen is returned when the breaker rejects a call without running it.
var ErrOpen = errors.New("circuit breaker is open")

// ErrPanicked is recorded in place of an error when the guarded call panics.
var ErrPanicked = errors.New("guarded call panicked")

// State is the operating mode of a Breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero values get defaults.
type BreakerConfig struct {
	Name string

	// MaxFailures consecutive failures open the breaker. Default 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax successful trials close the breaker again. Default 1.
	HalfOpenMax int

	// Counts decides whether an error counts as a failure. Default: every
	// non-nil error.
	Counts func(error) bool

	// OnStateChange is called with the lock released after every transition.
	OnStateChange func(name string, from, to State)
}

// Breaker is a three-state circuit breaker (closed, open, half-open).
// Safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu             sync.Mutex
	state          State
	failures       int
	openedAt       time.Time
	trials         int
	trialSuccesses int
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Counts == nil {
		cfg.Counts = func(err error) bool { return err != nil }
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open. Errors from fn are returned
// unchanged; a rejected call returns ErrOpen. A panic in fn is recorded as a
// failure and then re-raised.
func (b *Breaker) Execute(fn func() error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	completed := false
	defer func() {
		if !completed {
			b.record(trial, ErrPanicked)
		}
	}()

	err = fn()
	completed = true
	b.record(trial, err)
	return err
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	var changed bool
	from := b.state

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.trials = 0
		b.trialSuccesses = 0
		changed = true
		fallthrough
	case StateHalfOpen:
		if b.trials >= b.cfg.HalfOpenMax {
			b.mu.Unlock()
			b.notify(changed, from, StateHalfOpen)
			return false, ErrOpen
		}
		b.trials++
		trial = true
	}
	to := b.state
	b.mu.Unlock()

	b.notify(changed, from, to)
	return trial, nil
}

func (b *Breaker) record(trial bool, err error) {
	b.mu.Lock()
	from := b.state
	failed := errors.Is(err, ErrPanicked) || b.cfg.Counts(err)

	switch {
	case trial && failed:
		b.trip()
	case trial && err != nil:
		// Uncounted error: free the trial slot without judging the engine.
		b.trials--
	case trial:
		b.trialSuccesses++
		if b.trialSuccesses >= b.cfg.HalfOpenMax {
			b.state = StateClosed
			b.failures = 0
		}
	case failed:
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.trip()
		}
	case err == nil:
		b.failures = 0
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from != to, from, to)
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
}

func (b *Breaker) notify(changed bool, from, to State) {
	if !changed {
		return
	}
	ev := log.Info()
	if to == StateOpen {
		ev = log.Warn()
	}
	ev.Str("breaker", b.cfg.Name).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state changed")

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.trials = 0
	b.trialSuccesses = 0
	b.mu.Unlock()

	b.notify(from != StateClosed, from, StateClosed)
}
