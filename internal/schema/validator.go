// Package schema checks outbound payloads before they leave the service.
package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"ai-interview-audio-service/internal/models"
	"ai-interview-audio-service/internal/observability/metrics"
)

// ErrInvalidPayload is matched by every *ValidationError.
var ErrInvalidPayload = errors.New("invalid payload")

// ValidationError names the offending payload kind and field.
type ValidationError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s %s", e.Kind, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPayload
}

type Validator struct {
	metrics *metrics.Metrics
}

func New(m *metrics.Metrics) *Validator {
	return &Validator{metrics: m}
}

// Validate returns a *ValidationError when payload breaks its contract.
func (v *Validator) Validate(payload any) error {
	err := check(payload)
	if err != nil {
		var ve *ValidationError
		kind := "unknown"
		if errors.As(err, &ve) {
			kind = ve.Kind
		}
		v.metrics.RecordPayloadInvalid(kind)
		log.Warn().Err(err).Msg("Payload failed validation")
	}
	return err
}

func check(payload any) error {
	switch p := payload.(type) {
	case models.InterimResult, *models.InterimResult:
		// Empty text is a valid interim result.
		return nil
	case models.TurnResult:
		return checkTurn(p)
	case *models.TurnResult:
		return checkTurn(*p)
	case models.UploadResult:
		return checkUpload(p)
	case *models.UploadResult:
		return checkUpload(*p)
	case models.TranscriptInterim:
		return checkEvent("event.interim", models.EventTranscriptInterim, p.EventType, p.SessionKey, p.SegmentID, p.Timestamp)
	case *models.TranscriptInterim:
		return checkEvent("event.interim", models.EventTranscriptInterim, p.EventType, p.SessionKey, p.SegmentID, p.Timestamp)
	case models.TurnCompleted:
		return checkTurnEvent(p)
	case *models.TurnCompleted:
		return checkTurnEvent(*p)
	default:
		return &ValidationError{Kind: "unknown", Field: "type", Reason: fmt.Sprintf("%T is not a known payload", payload)}
	}
}

func checkTurn(p models.TurnResult) error {
	if p.Command != models.CommandNextQuestion {
		return &ValidationError{Kind: "turn", Field: "command", Reason: fmt.Sprintf("must be %s", models.CommandNextQuestion)}
	}
	if p.Emotion == "" {
		return &ValidationError{Kind: "turn", Field: "emotion", Reason: "is required"}
	}
	return nil
}

func checkUpload(p models.UploadResult) error {
	switch {
	case p.SessionKey == "":
		return &ValidationError{Kind: "upload", Field: "sessionKey", Reason: "is required"}
	case p.Emotion == "":
		return &ValidationError{Kind: "upload", Field: "emotion", Reason: "is required"}
	case p.DurationMs < 0:
		return &ValidationError{Kind: "upload", Field: "durationMs", Reason: "must not be negative"}
	}
	return nil
}

func checkEvent(kind, wantType, eventType, sessionKey, segmentID string, ts int64) error {
	switch {
	case eventType != wantType:
		return &ValidationError{Kind: kind, Field: "eventType", Reason: fmt.Sprintf("must be %s", wantType)}
	case sessionKey == "":
		return &ValidationError{Kind: kind, Field: "sessionKey", Reason: "is required"}
	case segmentID == "":
		return &ValidationError{Kind: kind, Field: "segmentId", Reason: "is required"}
	case ts <= 0:
		return &ValidationError{Kind: kind, Field: "timestamp", Reason: "must be positive"}
	}
	return nil
}

func checkTurnEvent(p models.TurnCompleted) error {
	if err := checkEvent("event.turn", models.EventTurnCompleted, p.EventType, p.SessionKey, p.SegmentID, p.Timestamp); err != nil {
		return err
	}
	if p.Emotion == "" {
		return &ValidationError{Kind: "event.turn", Field: "emotion", Reason: "is required"}
	}
	return nil
}
