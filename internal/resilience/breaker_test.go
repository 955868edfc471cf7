package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errEngine = errors.New("engine down")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := NewBreaker(cfg)
	b.now = clock.now
	return b, clock
}

func fail() error    { return errEngine }
func succeed() error { return nil }

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Name: "stt", MaxFailures: 3})

	for i := 0; i < 3; i++ {
		if err := b.Execute(fail); !errors.Is(err, errEngine) {
			t.Fatalf("call %d: expected engine error, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("open breaker must not run the call")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 2})

	b.Execute(fail)
	b.Execute(succeed)
	b.Execute(fail)

	if b.State() != StateClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	tests := []struct {
		name  string
		trial func() error
		want  State
	}{
		{"trial success closes", succeed, StateClosed},
		{"trial failure reopens", fail, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, clock := newTestBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Second})
			b.Execute(fail)

			clock.advance(time.Second)
			b.Execute(tt.trial)

			if b.State() != tt.want {
				t.Errorf("expected %v, got %v", tt.want, b.State())
			}
		})
	}
}

func TestBreaker_UncountedErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{
		MaxFailures: 1,
		Counts: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
	})

	for i := 0; i < 5; i++ {
		b.Execute(func() error { return context.Canceled })
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []State
	b, clock := newTestBreaker(BreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		OnStateChange: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})

	b.Execute(fail)
	clock.advance(time.Second)
	b.Execute(succeed)

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], transitions[i])
		}
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 1})
	b.Execute(fail)
	b.Reset()

	if b.State() != StateClosed {
		t.Errorf("expected closed after reset, got %v", b.State())
	}
}

func TestBreaker_PanicCountsAsFailure(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Counts:       func(err error) bool { return err != nil && !errors.Is(err, context.Canceled) },
	})

	crash := func() error { panic("engine crashed") }
	run := func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to be re-raised")
			}
		}()
		b.Execute(crash)
	}

	run()
	if b.State() != StateOpen {
		t.Fatalf("expected open after a panic, got %v", b.State())
	}

	// A panicking half-open trial must give its slot back by re-opening.
	clock.advance(2 * time.Second)
	run()
	if b.State() != StateOpen {
		t.Fatalf("expected open after a panicking trial, got %v", b.State())
	}

	clock.advance(2 * time.Second)
	if err := b.Execute(succeed); err != nil {
		t.Fatalf("expected trial to run, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}
