package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openaiClient struct {
	client openai.Client
	model  string
}

func newOpenAIClient(cfg Config) StreamClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4.1-mini"
	}

	return &openaiClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *openaiClient) StreamCompletion(ctx context.Context, req StreamRequest) Fragments {
	return Once(func(yield func(string, error) bool) {
		maxTokens := req.MaxTokens
		if maxTokens == 0 {
			maxTokens = 750
		}

		params := openai.ChatCompletionNewParams{
			Model: c.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(req.SystemPrompt),
				openai.UserMessage(req.UserPrompt),
			},
			MaxTokens: openai.Int(int64(maxTokens)),
		}
		if req.Temperature != nil {
			params.Temperature = openai.Float(*req.Temperature)
		}

		start := time.Now()
		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		fragments := 0
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			fragments++
			if !yield(content, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("openai stream: %w", err))
			return
		}

		slog.DebugContext(ctx, "llm stream completed",
			"model", c.model,
			"duration_ms", time.Since(start).Milliseconds(),
			"fragments", fragments)
	})
}

func (c *openaiClient) Model() string {
	return c.model
}
