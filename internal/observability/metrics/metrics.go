// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_interview_audio"

// Metrics holds all Prometheus metrics for the service.
// All Record methods are safe to call on a nil receiver.
type Metrics struct {
	// Stream metrics
	StreamsTotal   *prometheus.CounterVec
	StreamsActive  *prometheus.GaugeVec
	StreamsFailed  *prometheus.CounterVec
	StreamDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsOpened prometheus.Counter
	CycleFaults    prometheus.Counter

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioChunksReceived prometheus.Counter
	ChunksDropped       *prometheus.CounterVec
	SegmentsFlushed     prometheus.Counter
	SegmentSeconds      prometheus.Histogram
	UploadsTotal        *prometheus.CounterVec

	// Inference metrics
	TranscriptionLatency  *prometheus.HistogramVec
	TranscriptionFailures *prometheus.CounterVec
	EmotionLatency        *prometheus.HistogramVec
	EmotionFailures       *prometheus.CounterVec
	EmotionLabels         *prometheus.CounterVec
	BreakerState          *prometheus.GaugeVec

	// Turn metrics
	TurnsCompleted  prometheus.Counter
	PayloadsInvalid *prometheus.CounterVec

	// Registry metrics
	RegistrySends       *prometheus.CounterVec
	RegistryConnections prometheus.Gauge

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Auth metrics
	AuthRejected *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance registered on the default
// Prometheus registerer.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Stream metrics
		StreamsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of audio streams started",
		}, []string{"transport"}),
		StreamsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently open audio streams",
		}, []string{"transport"}),
		StreamsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of streams that ended with an error",
		}, []string{"transport"}),
		StreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of audio streams in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"transport"}),

		// Session metrics
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions with live state",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Total number of sessions opened",
		}),
		CycleFaults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_faults_total",
			Help:      "Total number of processing cycles aborted by an unexpected fault",
		}),

		// Audio metrics
		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total audio chunks received",
		}),
		ChunksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Total audio chunks dropped before buffering",
		}, []string{"reason"}),
		SegmentsFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_flushed_total",
			Help:      "Total number of buffered segments flushed to inference",
		}),
		SegmentSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_duration_seconds",
			Help:      "Audio length of flushed segments in seconds",
			Buckets:   []float64{1, 2, 3, 4, 5, 10, 30, 60},
		}),
		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of one-shot answer uploads",
		}, []string{"status"}),

		// Inference metrics
		TranscriptionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Speech-to-text latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		TranscriptionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_failures_total",
			Help:      "Total number of failed transcriptions",
		}, []string{"provider", "reason"}),
		EmotionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "emotion_latency_seconds",
			Help:      "Emotion inference latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"provider"}),
		EmotionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emotion_failures_total",
			Help:      "Total number of failed emotion inferences",
		}, []string{"provider", "reason"}),
		EmotionLabels: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emotion_labels_total",
			Help:      "Emotion labels assigned to completed answers",
		}, []string{"label"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),

		// Turn metrics
		TurnsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_completed_total",
			Help:      "Total number of answers closed by an end-of-turn phrase",
		}),
		PayloadsInvalid: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_invalid_total",
			Help:      "Total number of outbound payloads rejected by schema validation",
		}, []string{"kind"}),

		// Registry metrics
		RegistrySends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_sends_total",
			Help:      "Total number of payload pushes through the connection registry",
		}, []string{"outcome"}),
		RegistryConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_connections",
			Help:      "Number of channels registered",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// Auth metrics
		AuthRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejected_total",
			Help:      "Total number of connections rejected by token verification",
		}, []string{"transport"}),
	}
}

// RecordStreamStart records a new stream starting.
func (m *Metrics) RecordStreamStart(transport string) {
	if m == nil {
		return
	}
	m.StreamsTotal.WithLabelValues(transport).Inc()
	m.StreamsActive.WithLabelValues(transport).Inc()
}

// RecordStreamEnd records a stream ending.
func (m *Metrics) RecordStreamEnd(transport string, success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StreamsActive.WithLabelValues(transport).Dec()
	m.StreamDuration.WithLabelValues(transport).Observe(durationSeconds)
	if !success {
		m.StreamsFailed.WithLabelValues(transport).Inc()
	}
}

// RecordSessionOpened records a session gaining live state.
func (m *Metrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionClosed records a session releasing its state.
func (m *Metrics) RecordSessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// RecordCycleFault records a processing cycle aborted by a panic.
func (m *Metrics) RecordCycleFault() {
	if m == nil {
		return
	}
	m.CycleFaults.Inc()
}

// RecordAudioReceived records audio bytes and chunks received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	if m == nil {
		return
	}
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioChunksReceived.Inc()
}

// RecordChunkDropped records a chunk rejected before buffering.
func (m *Metrics) RecordChunkDropped(reason string) {
	if m == nil {
		return
	}
	m.ChunksDropped.WithLabelValues(reason).Inc()
}

// RecordSegmentFlushed records a buffered segment handed to inference.
func (m *Metrics) RecordSegmentFlushed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsFlushed.Inc()
	m.SegmentSeconds.Observe(durationSeconds)
}

// RecordUpload records a one-shot upload outcome.
func (m *Metrics) RecordUpload(status string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(status).Inc()
}

// RecordTranscription records a transcription call. An empty reason means
// success.
func (m *Metrics) RecordTranscription(provider, reason string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionLatency.WithLabelValues(provider).Observe(latencySeconds)
	if reason != "" {
		m.TranscriptionFailures.WithLabelValues(provider, reason).Inc()
	}
}

// RecordEmotion records an emotion inference call. An empty reason means
// success.
func (m *Metrics) RecordEmotion(provider, reason string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.EmotionLatency.WithLabelValues(provider).Observe(latencySeconds)
	if reason != "" {
		m.EmotionFailures.WithLabelValues(provider, reason).Inc()
	}
}

// RecordBreakerState records the state of a named circuit breaker.
func (m *Metrics) RecordBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordTurnCompleted records an end-of-turn result and its emotion label.
func (m *Metrics) RecordTurnCompleted(emotion string) {
	if m == nil {
		return
	}
	m.TurnsCompleted.Inc()
	m.EmotionLabels.WithLabelValues(emotion).Inc()
}

// RecordPayloadInvalid records an outbound payload that failed validation.
func (m *Metrics) RecordPayloadInvalid(kind string) {
	if m == nil {
		return
	}
	m.PayloadsInvalid.WithLabelValues(kind).Inc()
}

// RecordRegistrySend records the outcome of a registry push.
func (m *Metrics) RecordRegistrySend(outcome string) {
	if m == nil {
		return
	}
	m.RegistrySends.WithLabelValues(outcome).Inc()
}

// SetRegistryConnections records the number of registered channels.
func (m *Metrics) SetRegistryConnections(n int) {
	if m == nil {
		return
	}
	m.RegistryConnections.Set(float64(n))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	if m == nil {
		return
	}
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordAuthRejected records a connection rejected by token verification.
func (m *Metrics) RecordAuthRejected(transport string) {
	if m == nil {
		return
	}
	m.AuthRejected.WithLabelValues(transport).Inc()
}
