package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"

	"ai-interview-audio-service/internal/models"
)

func dialViewer(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastFiltersBySession(t *testing.T) {
	h := newHub()
	srv := httptest.NewServer(newRouter(h))
	defer srv.Close()

	all := dialViewer(t, srv, "")
	only := dialViewer(t, srv, "sess-2")
	waitClients(t, h, 2)

	if n := h.broadcast(viewerEvent{EventType: models.EventTranscriptInterim, SessionKey: "sess-1", Text: "hello"}); n != 1 {
		t.Errorf("expected 1 delivery, got %d", n)
	}
	if n := h.broadcast(viewerEvent{EventType: models.EventTurnCompleted, SessionKey: "sess-2", Turn: 1}); n != 2 {
		t.Errorf("expected 2 deliveries, got %d", n)
	}

	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first viewerEvent
	if err := all.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.SessionKey != "sess-1" || first.Text != "hello" {
		t.Errorf("unexpected first event %+v", first)
	}

	_ = only.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got viewerEvent
	if err := only.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.SessionKey != "sess-2" || got.Turn != 1 {
		t.Errorf("filtered viewer got %+v", got)
	}
}

func TestHubRemovesClosedViewers(t *testing.T) {
	h := newHub()
	srv := httptest.NewServer(newRouter(h))
	defer srv.Close()

	conn := dialViewer(t, srv, "")
	waitClients(t, h, 1)
	conn.Close()
	waitClients(t, h, 0)
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		msg  kafka.Message
		want viewerEvent
	}{
		{
			name: "turn event",
			msg: kafka.Message{
				Key:   []byte("sess-1"),
				Value: []byte(`{"eventType":"interview.turn.completed","sessionKey":"sess-1","segmentId":"sess-1-seg-3","turn":2,"answer":"done","emotion":"happy"}`),
			},
			want: viewerEvent{EventType: models.EventTurnCompleted, SessionKey: "sess-1", SegmentID: "sess-1-seg-3", Turn: 2, Answer: "done", Emotion: "happy"},
		},
		{
			name: "fields from key and headers",
			msg: kafka.Message{
				Key:     []byte("sess-9"),
				Value:   []byte(`{"text":"partial"}`),
				Headers: []kafka.Header{{Key: "eventType", Value: []byte(models.EventTranscriptInterim)}},
			},
			want: viewerEvent{EventType: models.EventTranscriptInterim, SessionKey: "sess-9", Text: "partial"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeEvent(tt.msg)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}

	if _, err := decodeEvent(kafka.Message{Value: []byte("not json")}); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
