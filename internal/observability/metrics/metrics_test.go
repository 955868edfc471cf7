package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	m.RecordStreamStart("websocket")
	m.RecordStreamEnd("websocket", true, 1)
	m.RecordSessionOpened()
	m.RecordAudioReceived(10)
	m.RecordTranscription("mock", "timeout", 0.1)
	m.RecordTurnCompleted("happy")
	m.RecordRegistrySend("delivered")
	m.RecordKafkaPublish("t", "interim", nil, 0.01)
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAudioReceived(100)
	m.RecordAudioReceived(50)
	if got := testutil.ToFloat64(m.AudioBytesReceived); got != 150 {
		t.Errorf("expected 150 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.AudioChunksReceived); got != 2 {
		t.Errorf("expected 2 chunks, got %v", got)
	}

	m.RecordTranscription("google", "", 0.5)
	m.RecordTranscription("google", "timeout", 30)
	if got := testutil.ToFloat64(m.TranscriptionFailures.WithLabelValues("google", "timeout")); got != 1 {
		t.Errorf("expected 1 timeout failure, got %v", got)
	}

	m.RecordKafkaPublish("interview.turn.completed", "turn", errors.New("boom"), 0.01)
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("interview.turn.completed", "turn")); got != 1 {
		t.Errorf("expected 1 kafka error, got %v", got)
	}
}

func TestMetrics_SessionGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSessionOpened()
	m.RecordSessionOpened()
	m.RecordSessionClosed()

	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsOpened); got != 2 {
		t.Errorf("expected 2 opened sessions, got %v", got)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Registering twice on separate registries must not panic.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
