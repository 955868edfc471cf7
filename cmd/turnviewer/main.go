// Command turnviewer consumes interim and turn events from Kafka and shows
// them live in a browser.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-interview-audio-service/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local dev tool
	},
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicInterim := flag.String("topic-interim", events.DefaultTopicInterim, "Interim transcript topic")
	topicTurn := flag.String("topic-turn", events.DefaultTopicTurn, "Completed turn topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := newHub()
	brokerList := strings.Split(*brokers, ",")
	go consume(ctx, h, brokerList, *topicInterim, *since)
	go consume(ctx, h, brokerList, *topicTurn, *since)

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           newRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("url", "http://localhost:"+*port).
		Strs("brokers", brokerList).
		Strs("topics", []string{*topicInterim, *topicTurn}).
		Msg("Turn viewer starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
}

func newRouter(h *hub) http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		c := h.add(conn, r.URL.Query().Get("session"))
		// Drain reads until the browser goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		h.remove(c)
	})
	return r
}

// consume reads one topic from partition 0 without a consumer group so it
// works through a port-forward.
func consume(ctx context.Context, h *hub, brokers []string, topic string, since time.Duration) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Cannot seek, reading from the committed offset")
	}
	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		ev, err := decodeEvent(msg)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping undecodable event")
			continue
		}
		log.Debug().
			Str("eventType", ev.EventType).
			Str("sessionKey", ev.SessionKey).
			Str("segmentId", ev.SegmentID).
			Msg("Received")
		h.broadcast(ev)
	}
}

func decodeEvent(msg kafka.Message) (viewerEvent, error) {
	var ev viewerEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ev, err
	}
	if ev.EventType == "" {
		for _, hdr := range msg.Headers {
			if hdr.Key == "eventType" {
				ev.EventType = string(hdr.Value)
			}
		}
	}
	if ev.SessionKey == "" {
		ev.SessionKey = string(msg.Key)
	}
	return ev, nil
}

const indexHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Interview turns</title>
<style>
body { font-family: sans-serif; margin: 2em; background: #fafafa; }
.ev { padding: .4em .8em; margin: .3em 0; border-radius: 4px; background: #fff; }
.interim { color: #666; }
.turn { border-left: 4px solid #2a7; }
.meta { font-size: .8em; color: #999; }
</style>
</head>
<body>
<h1>Interview turns</h1>
<div id="events"></div>
<script>
const list = document.getElementById("events");
const params = new URLSearchParams(location.search);
const ws = new WebSocket("ws://" + location.host + "/ws?session=" + encodeURIComponent(params.get("session") || ""));
ws.onmessage = (m) => {
  const ev = JSON.parse(m.data);
  const div = document.createElement("div");
  const meta = document.createElement("div");
  meta.className = "meta";
  meta.textContent = ev.sessionKey + " / " + ev.segmentId + " / " + new Date(ev.timestamp).toLocaleTimeString();
  const body = document.createElement("div");
  if (ev.eventType === "interview.turn.completed") {
    div.className = "ev turn";
    body.textContent = "Turn " + ev.turn + " [" + ev.emotion + "]: " + ev.answer;
  } else {
    div.className = "ev interim";
    body.textContent = ev.text || "(silence)";
  }
  div.append(meta, body);
  list.prepend(div);
};
</script>
</body>
</html>
`
