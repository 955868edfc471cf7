package app

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ai-interview-audio-service/internal/config"
	"ai-interview-audio-service/internal/observability/logging"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	ready atomic.Bool
}

// New constructs a new Application from the provided configuration and
// initializes the global logger.
func New(cfg *config.Config) *Application {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
		Service:    cfg.Service.Name,
	})

	a := &Application{
		Cfg:    cfg,
		Logger: log.With().Str("component", "application").Logger(),
	}

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("sttProvider", cfg.STT.Provider).
		Str("emotionProvider", cfg.Emotion.Provider).
		Msg("Interview audio service application created")
	return a
}

// Start marks the service ready to take traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	a.Logger.Info().
		Str("method", "Start").
		Time("startupTime", a.StartupTime).
		Msg("Interview audio service starting")
	return nil
}

// Ready reports whether the service is accepting traffic.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown stops reporting ready so load balancers drain the instance.
func (a *Application) Shutdown() {
	a.ready.Store(false)
	a.Logger.Info().
		Str("method", "Shutdown").
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Interview audio service shutting down")
}
