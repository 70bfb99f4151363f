package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrStreamConsumed is yielded when a Fragments sequence is ranged over a
// second time. Completion streams cannot be restarted.
var ErrStreamConsumed = errors.New("completion stream already consumed")

// Config holds LLM client configuration.
type Config struct {
	Provider string // "openai" or "anthropic"
	APIKey   string // Required: API key for the provider
	BaseURL  string // Optional: custom API endpoint
	Model    string // Model name (e.g., "gpt-4.1-mini", "claude-sonnet-4-5-20250514")
}

// Fragments is a lazy, finite sequence of text fragments produced by a
// streaming completion. A non-nil error ends the sequence.
type Fragments = iter.Seq2[string, error]

// StreamClient issues chat-style streaming completions.
type StreamClient interface {
	StreamCompletion(ctx context.Context, req StreamRequest) Fragments
	Model() string
}

// StreamRequest is a single system+user completion call.
type StreamRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
}

// New creates a StreamClient for cfg.Provider. Defaults to OpenAI if no
// provider is specified.
func New(cfg Config) (StreamClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

func Temp(t float64) *float64 {
	return &t
}

// Once wraps seq so that it can only be ranged over once; later attempts
// yield ErrStreamConsumed.
func Once(seq Fragments) Fragments {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}
		seq(yield)
	}
}
