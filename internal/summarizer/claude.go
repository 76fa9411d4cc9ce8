package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Claude is a Completer backed by the Anthropic Messages API.
type Claude struct {
	client anthropic.Client
	model  string
}

// NewClaude returns a Claude completer, or nil when apiKey is empty.
func NewClaude(apiKey, model string, opts ...option.RequestOption) *Claude {
	if apiKey == "" {
		return nil
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Claude{client: anthropic.NewClient(opts...), model: model}
}

// Complete sends prompt as a single user message and returns the text blocks of the reply.
func (c *Claude) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarizer: messages: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("summarizer: empty response")
	}
	return b.String(), nil
}

// NewFromKey returns a Summarizer backed by Claude when enabled and apiKey is set.
func NewFromKey(apiKey, model string, enabled bool, maxTokens int, logger *slog.Logger) *Summarizer {
	var c Completer
	if enabled {
		if cl := NewClaude(apiKey, model); cl != nil {
			c = cl
		}
	}
	return New(c, enabled, maxTokens, logger)
}
