// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
	Service    string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
		Service:    "ai-interview-audio-service",
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	ctx := zerolog.New(output).With().Timestamp().Caller()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	log.Logger = ctx.Logger()
}

// WithSession returns a logger with session context.
func WithSession(sessionKey string) *zerolog.Logger {
	l := log.With().
		Str("sessionKey", sessionKey).
		Logger()
	return &l
}

// WithSegment returns a logger with segment context.
func WithSegment(sessionKey, segmentID string) *zerolog.Logger {
	l := log.With().
		Str("sessionKey", sessionKey).
		Str("segmentId", segmentID).
		Logger()
	return &l
}

// WithComponent returns a logger tagged with the component name.
func WithComponent(component string) *zerolog.Logger {
	l := log.With().
		Str("component", component).
		Logger()
	return &l
}
