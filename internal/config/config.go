// Package config loads service configuration from the environment.
// Unset or unparseable values fall back to defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Service       ServiceConfig
	Audio         AudioConfig
	STT           STTConfig
	Emotion       EmotionConfig
	Turn          TurnConfig
	Auth          AuthConfig
	Kafka         KafkaConfig
	Feedback      FeedbackConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name        string
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsPort string
}

type AudioConfig struct {
	SourceSampleRateHz int
	TargetSampleRateHz int
	MinSegmentSeconds  float64
	MaxBufferBytes     int
	MaxFrameBytes      int64
	RetainTranscript   bool
	WSWriteTimeout     time.Duration
}

type STTConfig struct {
	Provider      string // mock, google, openai
	LanguageCode  string
	AudioEncoding string
	Model         string
	Timeout       time.Duration
	MaxConcurrent int
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

type EmotionConfig struct {
	Provider      string // mock, remote
	ServiceURL    string
	Timeout       time.Duration
	MaxConcurrent int
	Labels        []string
}

type TurnConfig struct {
	EndPhrases []string
	EndWords   []string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	Leeway    time.Duration
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicInterim string
	TopicTurn    string
	Principal    string
}

type FeedbackConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-interview-audio")
	openAIKey := os.Getenv("OPENAI_API_KEY")
	openAIBaseURL := os.Getenv("OPENAI_BASE_URL")

	return &Config{
		Service: ServiceConfig{
			Name:        envOrDefault("SERVICE_NAME", "ai-interview-audio-service"),
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		Audio: AudioConfig{
			SourceSampleRateHz: envOrDefaultInt("AUDIO_SOURCE_SAMPLE_RATE_HZ", 48000),
			TargetSampleRateHz: envOrDefaultInt("AUDIO_TARGET_SAMPLE_RATE_HZ", 16000),
			MinSegmentSeconds:  envOrDefaultFloat("AUDIO_MIN_SEGMENT_SECONDS", 3),
			MaxBufferBytes:     envOrDefaultInt("AUDIO_MAX_BUFFER_BYTES", 5*1024*1024),
			MaxFrameBytes:      int64(envOrDefaultInt("AUDIO_MAX_FRAME_BYTES", 1024*1024)),
			RetainTranscript:   envOrDefaultBool("AUDIO_RETAIN_TRANSCRIPT", true),
			WSWriteTimeout:     envOrDefaultDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			AudioEncoding: envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			Model:         os.Getenv("STT_MODEL"),
			Timeout:       envOrDefaultDuration("STT_TIMEOUT", 30*time.Second),
			MaxConcurrent: envOrDefaultInt("STT_MAX_CONCURRENT", 4),
			OpenAIAPIKey:  openAIKey,
			OpenAIBaseURL: openAIBaseURL,
			OpenAIModel:   envOrDefault("STT_OPENAI_MODEL", "whisper-1"),
		},
		Emotion: EmotionConfig{
			Provider:      envOrDefault("EMOTION_PROVIDER", "mock"),
			ServiceURL:    os.Getenv("EMOTION_SERVICE_URL"),
			Timeout:       envOrDefaultDuration("EMOTION_TIMEOUT", 10*time.Second),
			MaxConcurrent: envOrDefaultInt("EMOTION_MAX_CONCURRENT", 4),
			Labels:        envOrDefaultList("EMOTION_LABELS", nil),
		},
		Turn: TurnConfig{
			EndPhrases: envOrDefaultList("TURN_END_PHRASES", nil),
			EndWords:   envOrDefaultList("TURN_END_WORDS", nil),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
			JWTIssuer: os.Getenv("AUTH_JWT_ISSUER"),
			Leeway:    envOrDefaultDuration("AUTH_JWT_LEEWAY", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicInterim: envOrDefault("KAFKA_TOPIC_INTERIM", "interview.transcript.interim"),
			TopicTurn:    envOrDefault("KAFKA_TOPIC_TURN", "interview.turn.completed"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Feedback: FeedbackConfig{
			APIKey:  openAIKey,
			BaseURL: openAIBaseURL,
			Model:   envOrDefault("FEEDBACK_MODEL", "gpt-4o-mini"),
			Timeout: envOrDefaultDuration("FEEDBACK_TIMEOUT", 30*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma-separated value, dropping empty items.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
