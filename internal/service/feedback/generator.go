// Package feedback turns a completed answer into coaching feedback using an
// OpenAI chat model.
package feedback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"
)

// ErrEmptyAnswer is returned when there is nothing to review.
var ErrEmptyAnswer = errors.New("answer is empty")

const systemPrompt = "You are an experienced interview coach. Review the candidate's answer " +
	"and give specific, constructive feedback grounded in what they actually said."

// Request is one question/answer pair to review.
type Request struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Emotion  string `json:"emotion"`
}

// Feedback is the parsed model response.
type Feedback struct {
	Summary      string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Config holds generator settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

// DefaultConfig returns the generator defaults.
func DefaultConfig() Config {
	return Config{
		Model:       goopenai.GPT4oMini,
		Timeout:     30 * time.Second,
		MaxTokens:   600,
		Temperature: 0.3,
	}
}

// Generator produces feedback for single answers.
type Generator struct {
	client *goopenai.Client
	cfg    Config
}

// New creates a generator. It fails without an API key.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("feedback: api key is required")
	}
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Generator{client: goopenai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Generate asks the model for feedback on req.
func (g *Generator) Generate(ctx context.Context, req Request) (Feedback, error) {
	if strings.TrimSpace(req.Answer) == "" {
		return Feedback{}, ErrEmptyAnswer
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return Feedback{}, fmt.Errorf("feedback chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Feedback{}, fmt.Errorf("feedback chat completion: no response choices")
	}

	content := resp.Choices[0].Message.Content
	log.Debug().
		Str("model", g.cfg.Model).
		Dur("duration", time.Since(start)).
		Int("chars", len(content)).
		Msg("Feedback generated")

	return parse(content), nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	if req.Question != "" {
		fmt.Fprintf(&b, "Question: %s\n", req.Question)
	}
	fmt.Fprintf(&b, "Answer: %s\n", req.Answer)
	if req.Emotion != "" && req.Emotion != "unknown" {
		fmt.Fprintf(&b, "Detected vocal emotion: %s\n", req.Emotion)
	}
	b.WriteString(`
Reply in this format:

FEEDBACK: two or three sentences of overall feedback

STRENGTHS:
- strength drawn from the answer

IMPROVEMENTS:
- concrete improvement
`)
	return b.String()
}

// parse reads the sectioned reply. Unstructured replies become the summary.
func parse(content string) Feedback {
	var fb Feedback
	var section *[]string

	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "FEEDBACK:"):
			fb.Summary = strings.TrimSpace(strings.TrimPrefix(line, "FEEDBACK:"))
			section = nil
		case strings.HasPrefix(line, "STRENGTHS:"):
			section = &fb.Strengths
		case strings.HasPrefix(line, "IMPROVEMENTS:"):
			section = &fb.Improvements
		case section != nil && isBullet(line):
			if item := strings.TrimSpace(strings.TrimLeft(line, "-*• ")); item != "" {
				*section = append(*section, item)
			}
		}
	}

	if fb.Summary == "" {
		fb.Summary = strings.TrimSpace(content)
	}
	return fb
}

func isBullet(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "•")
}
