package main

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// viewerEvent is the union of interim and turn events as shown in the page.
type viewerEvent struct {
	EventType  string `json:"eventType"`
	SessionKey string `json:"sessionKey"`
	SegmentID  string `json:"segmentId"`
	Timestamp  int64  `json:"timestamp"`
	Text       string `json:"text,omitempty"`
	Turn       int    `json:"turn,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Emotion    string `json:"emotion,omitempty"`
}

// client is one browser connection. Writes go through its own goroutine so a
// slow browser cannot stall the broadcast.
type client struct {
	conn *websocket.Conn
	send chan viewerEvent
}

// hub fans Kafka events out to connected browsers, optionally filtered by
// session key.
type hub struct {
	mu      sync.RWMutex
	clients map[*client]string // client -> session filter ("" for all)
}

func newHub() *hub {
	return &hub{clients: make(map[*client]string)}
}

func (h *hub) add(conn *websocket.Conn, filter string) *client {
	c := &client{conn: conn, send: make(chan viewerEvent, 64)}
	h.mu.Lock()
	h.clients[c] = filter
	n := len(h.clients)
	h.mu.Unlock()

	go c.writeLoop()
	log.Info().Int("clients", n).Str("filter", filter).Msg("Viewer connected")
	return c
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		log.Info().Int("clients", n).Msg("Viewer disconnected")
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast queues ev for every matching client. Clients with a full queue
// miss the event.
func (h *hub) broadcast(ev viewerEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c, filter := range h.clients {
		if filter != "" && filter != ev.SessionKey {
			continue
		}
		select {
		case c.send <- ev:
			delivered++
		default:
			log.Warn().Str("sessionKey", ev.SessionKey).Msg("Viewer queue full, dropping event")
		}
	}
	return delivered
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for ev := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Msg("Viewer write failed")
			return
		}
	}
}
