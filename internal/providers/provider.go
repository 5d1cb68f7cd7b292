package providers

import (
	"context"
	"fmt"
)

type SourceName string

const SourceGemini SourceName = "GEMINI"

// GenerationConfig is sent with every request.
type GenerationConfig struct {
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:           "gemini-2.0-flash",
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 8192,
	}
}

// Reply is the raw text the model produced, before any cleanup.
type Reply struct {
	Text       string         `json:"text"`
	LatencyMs  int            `json:"latency_ms,omitempty"`
	TokenUsage map[string]any `json:"token_usage,omitempty"`
}

// Session is a single-turn conversation bound to one API key, with no prior
// history.
type Session interface {
	Name() SourceName
	Ask(ctx context.Context, prompt string) (Reply, error)
}

// Factory opens a fresh Session for the given key.
type Factory interface {
	Open(ctx context.Context, key string) (Session, error)
}

// ErrRateLimit is returned when the provider answered 429.
type ErrRateLimit struct {
	Err error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (429): %v", e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }
