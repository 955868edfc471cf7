// Package buffer accumulates raw audio bytes for a single session until
// enough audio is present to run inference.
package buffer

import (
	"errors"
	"sync"
	"time"

	"ai-interview-audio-service/internal/service/audio"
)

// DefaultMinSeconds is the amount of audio collected before a flush.
const DefaultMinSeconds = 3.0

// initialCap bounds the up-front allocation; the buffer grows on demand.
const initialCap = 64 * 1024

// ErrBufferFull is returned when an append would exceed the configured cap.
var ErrBufferFull = errors.New("session buffer full")

// Buffer is a growable byte buffer with a flush threshold.
// Safe for concurrent use.
type Buffer struct {
	mu         sync.Mutex
	data       []byte
	sampleRate int
	minBytes   int
	maxBytes   int
}

// New creates a buffer for PCM16 mono audio at sampleRate. The flush threshold
// is sampleRate * 2 * minSeconds bytes. maxBytes <= 0 disables the cap.
func New(sampleRate int, minSeconds float64, maxBytes int) *Buffer {
	if minSeconds <= 0 {
		minSeconds = DefaultMinSeconds
	}
	minBytes := ThresholdBytes(sampleRate, minSeconds)
	return &Buffer{
		sampleRate: sampleRate,
		minBytes:   minBytes,
		maxBytes:   maxBytes,
		data:       make([]byte, 0, min(minBytes, initialCap)),
	}
}

// ThresholdBytes is the flush threshold for PCM16 mono audio at sampleRate.
func ThresholdBytes(sampleRate int, minSeconds float64) int {
	if minSeconds <= 0 {
		minSeconds = DefaultMinSeconds
	}
	return int(float64(sampleRate*audio.BytesPerSample) * minSeconds)
}

// Append adds p to the buffer. When the cap would be exceeded the chunk is
// rejected whole and ErrBufferFull is returned.
func (b *Buffer) Append(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxBytes > 0 && len(b.data)+len(p) > b.maxBytes {
		return ErrBufferFull
	}
	b.data = append(b.data, p...)
	return nil
}

// ShouldFlush reports whether the buffer holds at least the threshold.
func (b *Buffer) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) >= b.minBytes
}

// SnapshotAndReset returns the buffered bytes and empties the buffer in one
// step. Appends racing with the call land either in the snapshot or in the
// next one, never both.
func (b *Buffer) SnapshotAndReset() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := b.data
	b.data = make([]byte, 0, min(b.minBytes, initialCap))
	return snapshot
}

// Reset discards buffered audio.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Threshold returns the flush threshold in bytes.
func (b *Buffer) Threshold() int {
	return b.minBytes
}

// Duration returns the playback length of the buffered audio.
func (b *Buffer) Duration() time.Duration {
	n := b.Len()
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(n/audio.BytesPerSample) * time.Second / time.Duration(b.sampleRate)
}
