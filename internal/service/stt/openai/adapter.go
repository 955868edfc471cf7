// Package openai provides a Whisper speech engine backed by the OpenAI
// transcription API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"

	"ai-interview-audio-service/internal/service/audio"
)

// Config holds OpenAI STT configuration.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Prompt   string
}

// DefaultConfig returns the transcription defaults.
func DefaultConfig() Config {
	return Config{
		Model:    goopenai.Whisper1,
		Language: "en",
	}
}

// Adapter implements stt.Transcriber by uploading each segment as WAV.
type Adapter struct {
	client *goopenai.Client
	cfg    Config
}

// New creates an OpenAI STT engine.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai stt: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	log.Info().Str("model", cfg.Model).Msg("OpenAI STT engine initialized")
	return &Adapter{client: goopenai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Transcribe uploads the segment and returns the recognized text.
func (a *Adapter) Transcribe(ctx context.Context, seg audio.Segment, languageHint string) (string, error) {
	if seg.Len() == 0 {
		return "", nil
	}

	lang := isoLanguage(languageHint)
	if lang == "" {
		lang = isoLanguage(a.cfg.Language)
	}

	resp, err := a.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    a.cfg.Model,
		Reader:   bytes.NewReader(seg.WAV()),
		FilePath: seg.ID() + ".wav",
		Language: lang,
		Prompt:   a.cfg.Prompt,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return resp.Text, nil
}

// isoLanguage reduces a BCP-47 tag such as "en-US" to the ISO-639-1 code the
// transcription API expects.
func isoLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
