package models

// Event types carried in the eventType field and Kafka header.
const (
	EventTranscriptInterim = "interview.transcript.interim"
	EventTurnCompleted     = "interview.turn.completed"
)

// TranscriptInterim is published for every transcription cycle.
type TranscriptInterim struct {
	EventType  string `json:"eventType"`
	SessionKey string `json:"sessionKey"`
	SegmentID  string `json:"segmentId"`
	Timestamp  int64  `json:"timestamp"`
	Text       string `json:"text"`
}

// TurnCompleted hands a finished answer to downstream interview storage.
type TurnCompleted struct {
	EventType  string `json:"eventType"`
	SessionKey string `json:"sessionKey"`
	SegmentID  string `json:"segmentId"`
	Timestamp  int64  `json:"timestamp"`
	Turn       int    `json:"turn"`
	Answer     string `json:"answer"`
	Emotion    string `json:"emotion"`
}
