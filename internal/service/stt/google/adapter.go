// Package google provides a Google Cloud Speech-to-Text engine.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog/log"

	"ai-interview-audio-service/internal/service/audio"
)

// Config holds Google STT configuration.
type Config struct {
	LanguageCode    string
	AudioEncoding   string
	Model           string
	EnablePunctuate bool
}

// DefaultConfig returns the recognition defaults.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		AudioEncoding:   "LINEAR16",
		EnablePunctuate: true,
	}
}

// recognizer is the subset of speech.Client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Adapter implements stt.Transcriber with synchronous Recognize calls.
// One client is shared by all sessions.
type Adapter struct {
	client recognizer
	cfg    Config
}

// New creates a Google STT engine.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	log.Info().
		Str("languageCode", cfg.LanguageCode).
		Str("encoding", cfg.AudioEncoding).
		Msg("Google STT engine initialized")
	return &Adapter{client: c, cfg: cfg}, nil
}

// Transcribe sends the segment as a single recognition request and joins the
// top alternative of every result.
func (a *Adapter) Transcribe(ctx context.Context, seg audio.Segment, languageHint string) (string, error) {
	resp, err := a.client.Recognize(ctx, a.buildRequest(seg, languageHint))
	if err != nil {
		return "", fmt.Errorf("google recognize: %w", err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

func (a *Adapter) buildRequest(seg audio.Segment, languageHint string) *speechpb.RecognizeRequest {
	lang := languageHint
	if lang == "" {
		lang = a.cfg.LanguageCode
	}
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
			SampleRateHertz:            int32(seg.SampleRate()),
			LanguageCode:               lang,
			Model:                      a.cfg.Model,
			EnableAutomaticPunctuation: a.cfg.EnablePunctuate,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: seg.PCM16()},
		},
	}
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// parseAudioEncoding maps a config string to the Google encoding enum.
// Unknown values fall back to LINEAR16.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
