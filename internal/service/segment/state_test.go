package segment

import (
	"errors"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle("sess-1")

	if lc.State() != StateAwaitingData {
		t.Errorf("expected AWAITING_DATA, got %s", lc.State())
	}
	if lc.SessionKey() != "sess-1" {
		t.Errorf("expected sess-1, got %s", lc.SessionKey())
	}
	if lc.Turn() != 0 {
		t.Errorf("expected turn 0, got %d", lc.Turn())
	}
}

func TestLifecycle_NotEndCycle(t *testing.T) {
	lc := NewLifecycle("sess-1")

	steps := []struct {
		name string
		fn   func() error
		want State
	}{
		{"receive", lc.Receive, StateAccumulating},
		{"receive again", lc.Receive, StateAccumulating},
		{"flush", lc.BeginFlush, StateFlushPending},
		{"transcribe", lc.BeginTranscribe, StateTranscribing},
		{"not end", lc.NotEnd, StateAwaitingData},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			t.Fatalf("%s: unexpected error: %v", s.name, err)
		}
		if lc.State() != s.want {
			t.Fatalf("%s: expected %s, got %s", s.name, s.want, lc.State())
		}
	}
	if lc.Turn() != 0 {
		t.Errorf("expected no delivered turns, got %d", lc.Turn())
	}
}

func TestLifecycle_EndOfTurnCycle(t *testing.T) {
	lc := NewLifecycle("sess-1")

	for _, fn := range []func() error{
		lc.Receive, lc.BeginFlush, lc.BeginTranscribe,
		lc.EndDetected, lc.BeginClassify, lc.Deliver,
	} {
		if err := fn(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if lc.State() != StateDelivered {
		t.Fatalf("expected DELIVERED, got %s", lc.State())
	}
	if lc.Turn() != 1 {
		t.Errorf("expected turn 1, got %d", lc.Turn())
	}

	// The next chunk starts a fresh turn.
	if err := lc.Receive(); err != nil {
		t.Fatalf("receive after delivery: %v", err)
	}
	if lc.State() != StateAccumulating {
		t.Errorf("expected ACCUMULATING, got %s", lc.State())
	}
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Lifecycle)
		op    func(*Lifecycle) error
	}{
		{"flush with nothing buffered", func(*Lifecycle) {}, (*Lifecycle).BeginFlush},
		{"transcribe before flush", func(l *Lifecycle) { _ = l.Receive() }, (*Lifecycle).BeginTranscribe},
		{"classify without end", func(l *Lifecycle) {
			_ = l.Receive()
			_ = l.BeginFlush()
			_ = l.BeginTranscribe()
		}, (*Lifecycle).BeginClassify},
		{"deliver before classify", func(l *Lifecycle) {
			_ = l.Receive()
			_ = l.BeginFlush()
			_ = l.BeginTranscribe()
			_ = l.EndDetected()
		}, (*Lifecycle).Deliver},
		{"receive mid cycle", func(l *Lifecycle) {
			_ = l.Receive()
			_ = l.BeginFlush()
		}, (*Lifecycle).Receive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLifecycle("sess-1")
			tt.setup(lc)
			before := lc.State()

			err := tt.op(lc)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			var te *TransitionError
			if !errors.As(err, &te) || te.From != before {
				t.Errorf("expected transition error from %s, got %v", before, err)
			}
			if lc.State() != before {
				t.Errorf("state changed on rejected transition: %s -> %s", before, lc.State())
			}
		})
	}
}

func TestLifecycle_Abort(t *testing.T) {
	lc := NewLifecycle("sess-1")
	_ = lc.Receive()
	_ = lc.BeginFlush()
	_ = lc.BeginTranscribe()

	lc.Abort()
	if lc.State() != StateAwaitingData {
		t.Fatalf("expected AWAITING_DATA after abort, got %s", lc.State())
	}

	lc.Close()
	lc.Abort()
	if lc.State() != StateClosed {
		t.Errorf("abort must not reopen a closed session, got %s", lc.State())
	}
}

func TestLifecycle_Close(t *testing.T) {
	lc := NewLifecycle("sess-1")
	_ = lc.Receive()

	lc.Close()
	lc.Close()
	if !lc.IsClosed() {
		t.Fatal("expected closed")
	}

	for name, op := range map[string]func() error{
		"receive":    lc.Receive,
		"flush":      lc.BeginFlush,
		"transcribe": lc.BeginTranscribe,
		"deliver":    lc.Deliver,
	} {
		if err := op(); !errors.Is(err, ErrSessionClosed) {
			t.Errorf("%s: expected ErrSessionClosed, got %v", name, err)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateAwaitingData, "AWAITING_DATA"},
		{StateAccumulating, "ACCUMULATING"},
		{StateFlushPending, "FLUSH_PENDING"},
		{StateTranscribing, "TRANSCRIBING"},
		{StateEndDetected, "END_DETECTED"},
		{StateClassifying, "CLASSIFYING"},
		{StateDelivered, "DELIVERED"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}
