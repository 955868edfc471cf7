// Package segment provides segment ID generation and the per-session
// processing lifecycle.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// State represents where a session is in its receive/flush/infer cycle.
type State int

const (
	// StateAwaitingData - No audio buffered since the last cycle.
	StateAwaitingData State = iota
	// StateAccumulating - Audio is buffering below the flush threshold.
	StateAccumulating
	// StateFlushPending - Threshold reached, snapshot taken.
	StateFlushPending
	// StateTranscribing - Segment handed to the speech engine.
	StateTranscribing
	// StateEndDetected - Transcript contained a closing phrase.
	StateEndDetected
	// StateClassifying - Segment handed to the emotion engine.
	StateClassifying
	// StateDelivered - End-of-turn result pushed. Next chunk starts a new turn.
	StateDelivered
	// StateClosed - Connection gone. Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateAwaitingData:
		return "AWAITING_DATA"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateFlushPending:
		return "FLUSH_PENDING"
	case StateTranscribing:
		return "TRANSCRIBING"
	case StateEndDetected:
		return "END_DETECTED"
	case StateClassifying:
		return "CLASSIFYING"
	case StateDelivered:
		return "DELIVERED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// Errors for invalid state transitions.
var (
	ErrSessionClosed     = errors.New("session is closed")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// TransitionError describes a rejected transition.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	AWAITING_DATA ─Receive→ ACCUMULATING ─BeginFlush→ FLUSH_PENDING ─BeginTranscribe→ TRANSCRIBING
//	TRANSCRIBING ─NotEnd→ AWAITING_DATA
//	TRANSCRIBING ─EndDetected→ END_DETECTED ─BeginClassify→ CLASSIFYING ─Deliver→ DELIVERED
//	DELIVERED ─Receive→ ACCUMULATING
//	any ─Close→ CLOSED
//
// Rules:
//   - Receive is only valid between cycles; a chunk arriving mid-cycle is a bug
//     in the caller, which serializes cycles per session.
//   - CLOSED rejects everything with ErrSessionClosed.
type Lifecycle struct {
	mu         sync.RWMutex
	sessionKey string
	state      State
	turn       int
}

// NewLifecycle creates a new lifecycle in AWAITING_DATA state.
func NewLifecycle(sessionKey string) *Lifecycle {
	return &Lifecycle{
		sessionKey: sessionKey,
		state:      StateAwaitingData,
	}
}

// SessionKey returns the session key.
func (l *Lifecycle) SessionKey() string {
	return l.sessionKey
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Turn returns the number of delivered end-of-turn results.
func (l *Lifecycle) Turn() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.turn
}

// IsClosed returns true once the session is closed.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Receive records an incoming chunk.
func (l *Lifecycle) Receive() error {
	return l.transition(StateAccumulating, StateAwaitingData, StateAccumulating, StateDelivered)
}

// BeginFlush records that the buffer was snapshotted.
func (l *Lifecycle) BeginFlush() error {
	return l.transition(StateFlushPending, StateAccumulating)
}

// BeginTranscribe records that the segment went to the speech engine.
func (l *Lifecycle) BeginTranscribe() error {
	return l.transition(StateTranscribing, StateFlushPending)
}

// NotEnd records a transcript without a closing phrase.
func (l *Lifecycle) NotEnd() error {
	return l.transition(StateAwaitingData, StateTranscribing)
}

// EndDetected records a transcript with a closing phrase.
func (l *Lifecycle) EndDetected() error {
	return l.transition(StateEndDetected, StateTranscribing)
}

// BeginClassify records that the segment went to the emotion engine.
func (l *Lifecycle) BeginClassify() error {
	return l.transition(StateClassifying, StateEndDetected)
}

// Deliver records that the end-of-turn result was pushed.
func (l *Lifecycle) Deliver() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check(StateDelivered, StateClassifying); err != nil {
		return err
	}
	l.state = StateDelivered
	l.turn++
	return nil
}

// Abort returns a session stuck mid-cycle to AWAITING_DATA. Used after a
// cycle fails unexpectedly. No-op once closed.
func (l *Lifecycle) Abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.IsTerminal() {
		l.state = StateAwaitingData
	}
}

// Close transitions to CLOSED. Can be called from any state. Idempotent.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateClosed
}

func (l *Lifecycle) transition(to State, from ...State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check(to, from...); err != nil {
		return err
	}
	l.state = to
	return nil
}

// check must be called with l.mu held.
func (l *Lifecycle) check(to State, from ...State) error {
	if l.state.IsTerminal() {
		return ErrSessionClosed
	}
	for _, f := range from {
		if l.state == f {
			return nil
		}
	}
	return &TransitionError{From: l.state, To: to}
}
