// Package models defines the payloads pushed to clients and the events
// published to Kafka.
package models

// CommandNextQuestion tells the client the answer is complete and the next
// question may be asked.
const CommandNextQuestion = "NEXT_QUESTION"

// InterimResult is pushed after every transcription cycle.
type InterimResult struct {
	Text string `json:"text"`
}

// TurnResult is pushed once an end of turn is detected.
type TurnResult struct {
	Command string `json:"command"`
	Emotion string `json:"emotion"`
	Answer  string `json:"answer"`
}

// UploadResult is returned by the one-shot upload endpoint.
type UploadResult struct {
	SessionKey  string `json:"sessionKey"`
	Text        string `json:"text"`
	Emotion     string `json:"emotion"`
	EndDetected bool   `json:"endDetected"`
	Answer      string `json:"answer"`
	DurationMs  int64  `json:"durationMs"`
}

// SessionStatus describes a live session.
type SessionStatus struct {
	SessionKey    string `json:"sessionKey"`
	State         string `json:"state"`
	BufferedBytes int    `json:"bufferedBytes"`
	SourceRate    int    `json:"sourceRateHz"`
	Turns         int    `json:"turns"`
}
