// Package registry maps session keys to live outbound channels so results
// can be pushed to whoever owns a session.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"ai-interview-audio-service/internal/observability/metrics"
)

// ErrChannelGone is returned by channels whose peer has disconnected.
var ErrChannelGone = errors.New("channel gone")

// Channel is an outbound, message-oriented connection to a client.
// Implementations serialize their own writes.
type Channel interface {
	Send(ctx context.Context, payload any) error
	Close() error
}

// Send outcomes recorded in metrics.
const (
	OutcomeDelivered = "delivered"
	OutcomeNoChannel = "no_channel"
	OutcomeFailed    = "failed"
)

// Registry holds at most one channel per session key.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	metrics  *metrics.Metrics
}

// New creates an empty registry.
func New(m *metrics.Metrics) *Registry {
	return &Registry{
		channels: make(map[string]Channel),
		metrics:  m,
	}
}

// Connect registers ch for key, replacing any existing entry. The replaced
// channel is returned so the caller can close it.
func (r *Registry) Connect(key string, ch Channel) Channel {
	r.mu.Lock()
	prev := r.channels[key]
	r.channels[key] = ch
	n := len(r.channels)
	r.mu.Unlock()

	r.metrics.SetRegistryConnections(n)
	if prev != nil {
		log.Info().Str("sessionKey", key).Msg("Replacing existing connection for session")
	}
	return prev
}

// Disconnect removes the entry for key. Missing keys are ignored.
func (r *Registry) Disconnect(key string) {
	r.mu.Lock()
	delete(r.channels, key)
	n := len(r.channels)
	r.mu.Unlock()

	r.metrics.SetRegistryConnections(n)
}

// DisconnectChannel removes the entry for key only while it still maps to ch.
// It reports whether an entry was removed. Transports call this on teardown so
// a replaced connection never evicts its successor.
func (r *Registry) DisconnectChannel(key string, ch Channel) bool {
	r.mu.Lock()
	cur, ok := r.channels[key]
	removed := ok && cur == ch
	if removed {
		delete(r.channels, key)
	}
	n := len(r.channels)
	r.mu.Unlock()

	r.metrics.SetRegistryConnections(n)
	return removed
}

// Send pushes payload to the channel registered for key. It returns false when
// no channel is registered or the channel reports a write failure.
func (r *Registry) Send(ctx context.Context, key string, payload any) bool {
	r.mu.RLock()
	ch, ok := r.channels[key]
	r.mu.RUnlock()

	if !ok {
		log.Debug().Str("sessionKey", key).Msg("No channel registered, dropping payload")
		r.metrics.RecordRegistrySend(OutcomeNoChannel)
		return false
	}

	if err := ch.Send(ctx, payload); err != nil {
		log.Warn().Err(err).Str("sessionKey", key).Msg("Failed to push payload to channel")
		r.metrics.RecordRegistrySend(OutcomeFailed)
		return false
	}

	r.metrics.RecordRegistrySend(OutcomeDelivered)
	return true
}

// Has reports whether a channel is registered for key.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[key]
	return ok
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// CloseAll closes and removes every registered channel.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]Channel)
	r.mu.Unlock()

	for key, ch := range channels {
		if err := ch.Close(); err != nil {
			log.Debug().Err(err).Str("sessionKey", key).Msg("Error closing channel")
		}
	}
	r.metrics.SetRegistryConnections(0)
}
