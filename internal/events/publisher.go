// Package events publishes transcript and turn events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-interview-audio-service/internal/models"
	"ai-interview-audio-service/internal/observability/metrics"
)

// Default topic names.
const (
	DefaultTopicInterim = "interview.transcript.interim"
	DefaultTopicTurn    = "interview.turn.completed"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes interim transcripts and completed turns to separate
// Kafka topics. With Kafka disabled it only logs.
type Publisher struct {
	writerInterim messageWriter
	writerTurn    messageWriter
	principal     string
	topicInterim  string
	topicTurn     string
	enabled       bool
	metrics       *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicInterim string
	TopicTurn    string
	Principal    string
	Enabled      bool
}

// New creates a publisher. A nil config, Enabled=false or an empty broker
// list yields log-only mode.
func New(cfg *Config, m *metrics.Metrics) *Publisher {
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			topicInterim: DefaultTopicInterim,
			topicTurn:    DefaultTopicTurn,
			metrics:      m,
		}
	}

	p := &Publisher{
		principal:    cfg.Principal,
		topicInterim: orDefault(cfg.TopicInterim, DefaultTopicInterim),
		topicTurn:    orDefault(cfg.TopicTurn, DefaultTopicTurn),
		metrics:      m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerInterim = newWriter(cfg.Brokers, p.topicInterim, transport)
	p.writerTurn = newWriter(cfg.Brokers, p.topicTurn, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicInterim", p.topicInterim).
		Str("topicTurn", p.topicTurn).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishInterim publishes a per-cycle transcript event.
func (p *Publisher) PublishInterim(ctx context.Context, ev models.TranscriptInterim) error {
	return p.publish(ctx, p.writerInterim, p.topicInterim, ev.EventType, ev.SessionKey, ev)
}

// PublishTurn publishes a completed answer.
func (p *Publisher) PublishTurn(ctx context.Context, ev models.TurnCompleted) error {
	return p.publish(ctx, p.writerTurn, p.topicTurn, ev.EventType, ev.SessionKey, ev)
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	// Keyed by session so one session's events stay ordered on a partition.
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerInterim != nil {
		if e := p.writerInterim.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing interim writer")
			err = e
		}
	}
	if p.writerTurn != nil {
		if e := p.writerTurn.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turn writer")
			err = e
		}
	}
	return err
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
