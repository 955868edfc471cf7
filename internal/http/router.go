package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"ai-interview-audio-service/internal/app"
	"ai-interview-audio-service/internal/auth"
	"ai-interview-audio-service/internal/observability/metrics"
	"ai-interview-audio-service/internal/service/feedback"
	"ai-interview-audio-service/internal/service/registry"
	"ai-interview-audio-service/internal/service/session"
)

// FeedbackGenerator reviews a single answer.
type FeedbackGenerator interface {
	Generate(ctx context.Context, req feedback.Request) (feedback.Feedback, error)
}

// Options tune the transport.
type Options struct {
	DefaultSourceRate int
	TargetRate        int
	MaxFrameBytes     int64
	MaxUploadBytes    int64
	WriteTimeout      time.Duration
}

// Dependencies are the services the router exposes. Feedback may be nil.
type Dependencies struct {
	App          *app.Application
	Orchestrator *session.Orchestrator
	Registry     *registry.Registry
	Verifier     auth.Verifier
	Feedback     FeedbackGenerator
	Metrics      *metrics.Metrics
	Options      Options
}

type handlers struct {
	Dependencies
	upgrader websocket.Upgrader
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Verifier == nil {
		deps.Verifier = auth.AllowAll{}
	}
	if deps.Options.WriteTimeout <= 0 {
		deps.Options.WriteTimeout = 5 * time.Second
	}
	if deps.Options.MaxUploadBytes <= 0 {
		deps.Options.MaxUploadBytes = 32 << 20
	}
	h := &handlers{
		Dependencies: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // browsers on other origins authenticate with the token
			},
		},
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Streaming sessions. Kept outside the access-log group because the
	// upgraded connection outlives the request.
	r.Get("/ws/audio/{sessionKey}", h.streamAudio)

	r.Group(func(r chi.Router) {
		r.Use(hlog.NewHandler(log.Logger))
		r.Use(hlog.RequestIDHandler("reqId", "Request-Id"))
		r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("HTTP request")
		}))

		r.Route("/v1", func(r chi.Router) {
			// Health endpoints
			r.Get("/liveness", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})
			r.Get("/readiness", h.readiness)

			r.Get("/sessions/{sessionKey}", h.sessionStatus)
			r.Post("/sessions/{sessionKey}/answers", h.uploadAnswer)
			r.Post("/feedback", h.generateFeedback)
		})
	})

	return r
}
