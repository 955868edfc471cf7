package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"ai-interview-audio-service/internal/observability/logging"
	"ai-interview-audio-service/internal/service/registry"
	"ai-interview-audio-service/internal/service/session"
)

// wsChannel adapts a WebSocket connection to registry.Channel. Payloads are
// written as JSON text frames.
type wsChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newWSChannel(conn *websocket.Conn, writeTimeout time.Duration) *wsChannel {
	return &wsChannel{conn: conn, writeTimeout: writeTimeout}
}

func (c *wsChannel) Send(ctx context.Context, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return registry.ErrChannelGone
	}
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("%w: %w", registry.ErrChannelGone, err)
	}
	return nil
}

func (c *wsChannel) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith sends a close frame with code and closes the connection.
// Idempotent.
func (c *wsChannel) closeWith(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

// streamAudio serves GET /ws/audio/{sessionKey}?token=&rate=. Binary frames
// carry PCM16 little-endian mono audio; results come back as JSON text frames.
func (h *handlers) streamAudio(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "sessionKey")
	logger := logging.WithSession(key)

	if _, err := h.Verifier.Verify(bearerToken(r)); err != nil {
		h.Metrics.RecordAuthRejected("websocket")
		logger.Warn().Err(err).Msg("Rejecting stream with invalid token")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rate := h.Options.DefaultSourceRate
	if q := r.URL.Query().Get("rate"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			n = -1
		}
		rate = n
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	if h.Options.MaxFrameBytes > 0 {
		conn.SetReadLimit(h.Options.MaxFrameBytes)
	}
	ch := newWSChannel(conn, h.Options.WriteTimeout)

	sess, err := h.Orchestrator.Open(key, session.OpenOptions{SourceRate: rate})
	if err != nil {
		logger.Warn().Err(err).Msg("Cannot open session")
		_ = ch.closeWith(websocket.CloseInternalServerErr, err.Error())
		return
	}

	start := time.Now()
	h.Metrics.RecordStreamStart("websocket")
	if prev := h.Registry.Connect(key, ch); prev != nil {
		_ = prev.Close()
	}

	success := h.readLoop(r.Context(), conn, sess)

	h.Registry.DisconnectChannel(key, ch)
	h.Orchestrator.Release(sess)
	_ = ch.Close()
	h.Metrics.RecordStreamEnd("websocket", success, time.Since(start).Seconds())
}

// readLoop feeds frames to the orchestrator until the peer goes away or the
// session is replaced. It reports whether the stream ended cleanly.
func (h *handlers) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session) bool {
	logger := logging.WithSession(sess.Key())

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Msg("Client closed stream")
				return true
			}
			if sess.Closed() {
				// Closed by a newer connection for the same session.
				return true
			}
			logger.Warn().Err(err).Msg("Stream read failed")
			return false
		}

		if mt != websocket.BinaryMessage {
			logger.Debug().Int("type", mt).Msg("Ignoring non-binary frame")
			continue
		}

		err = h.Orchestrator.HandleChunk(ctx, sess, data)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrSessionClosed):
			return true
		default:
			// Malformed or dropped chunks and faulted cycles leave the session usable.
			logger.Debug().Err(err).Msg("Chunk not processed")
		}
	}
}
