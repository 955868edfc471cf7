// Package remote calls a model server that hosts the speech emotion
// network. Feature extraction happens here so the server only runs the
// forward pass.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-interview-audio-service/internal/service/audio"
	"ai-interview-audio-service/internal/service/emotion"
)

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Shape    []int     `json:"shape"`
	Features []float32 `json:"features"`
}

// PredictResponse is the model server reply. Probabilities follow the label
// order of the classifier; Label is used when probabilities are absent.
type PredictResponse struct {
	Probabilities []float64 `json:"probabilities"`
	Label         string    `json:"label,omitempty"`
}

// Config holds model server settings.
type Config struct {
	URL     string
	Labels  []string
	Timeout time.Duration
}

// Client implements emotion.Classifier over HTTP.
type Client struct {
	url       string
	labels    []string
	http      *http.Client
	extractor *emotion.FeatureExtractor
}

// New creates a client. The feature extractor is built once and shared.
func New(cfg Config, extractor *emotion.FeatureExtractor) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = emotion.DefaultLabels
	}
	return &Client{
		url:       strings.TrimRight(cfg.URL, "/"),
		labels:    labels,
		http:      &http.Client{Timeout: cfg.Timeout},
		extractor: extractor,
	}
}

// Classify extracts log-mel features from seg and returns the arg-max label.
func (c *Client) Classify(ctx context.Context, seg audio.Segment) (string, error) {
	feats := c.extractor.Extract(seg.Samples())

	b, err := json.Marshal(PredictRequest{
		Shape:    []int{1, 1, feats.Mels, feats.Frames},
		Features: feats.Values,
	})
	if err != nil {
		return "", fmt.Errorf("emotion marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/predict", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		const maxErr = 4096
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
		return "", fmt.Errorf("emotion %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("emotion decode: %w", err)
	}

	if len(out.Probabilities) == 0 && out.Label != "" {
		return out.Label, nil
	}
	if len(out.Probabilities) != len(c.labels) {
		return "", fmt.Errorf("emotion: got %d scores for %d labels", len(out.Probabilities), len(c.labels))
	}
	return emotion.Argmax(out.Probabilities, c.labels)
}
