package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	client anthropic.Client
	model  string
}

func newAnthropicClient(cfg Config) StreamClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250514"
	}

	return &anthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (c *anthropicClient) StreamCompletion(ctx context.Context, req StreamRequest) Fragments {
	return Once(func(yield func(string, error) bool) {
		maxTokens := req.MaxTokens
		if maxTokens == 0 {
			maxTokens = 750
		}

		// Anthropic takes the system prompt separately from the messages array
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: int64(maxTokens),
			System: []anthropic.TextBlockParam{
				{Type: "text", Text: req.SystemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
			},
		}
		if req.Temperature != nil {
			params.Temperature = anthropic.Float(*req.Temperature)
		}

		start := time.Now()
		stream := c.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		fragments := 0
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			fragments++
			if !yield(text.Text, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("anthropic stream: %w", err))
			return
		}

		slog.DebugContext(ctx, "llm stream completed",
			"model", c.model,
			"duration_ms", time.Since(start).Milliseconds(),
			"fragments", fragments)
	})
}

func (c *anthropicClient) Model() string {
	return c.model
}
