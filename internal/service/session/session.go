package session

import (
	"sync"
	"time"

	"ai-interview-audio-service/internal/service/buffer"
	"ai-interview-audio-service/internal/service/segment"
)

// Session is the state of one connected client. Cycles for a session run
// one at a time under mu.
type Session struct {
	key        string
	sourceRate int
	opened     time.Time

	mu        sync.Mutex
	buf       *buffer.Buffer
	lc        *segment.Lifecycle
	fragments []string

	closeOnce sync.Once
}

// Key returns the session key.
func (s *Session) Key() string { return s.key }

// SourceRate returns the client's sample rate in Hz.
func (s *Session) SourceRate() int { return s.sourceRate }

// State returns the lifecycle state.
func (s *Session) State() segment.State { return s.lc.State() }

// Turns returns the number of delivered answers.
func (s *Session) Turns() int { return s.lc.Turn() }

// Buffered returns the number of buffered PCM bytes.
func (s *Session) Buffered() int { return s.buf.Len() }

// Closed reports whether the session was released or replaced.
func (s *Session) Closed() bool { return s.lc.IsClosed() }

// close marks the session closed and drops its audio. It reports whether
// this call did the closing.
func (s *Session) close() bool {
	closed := false
	s.closeOnce.Do(func() {
		s.lc.Close()
		s.buf.Reset()
		closed = true
	})
	return closed
}
