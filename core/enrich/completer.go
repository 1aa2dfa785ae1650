// Package enrich produces the generated recommendation text attached
// to actionable findings.
package enrich

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"wastescan/internal/errors"
)

// Completer is the generative text boundary. Model selection and
// fallback ordering stay outside the implementation.
type Completer interface {
	Complete(ctx context.Context, model, prompt string, maxTokens int) (string, error)
}

// AnthropicCompleter calls the Anthropic Messages API
type AnthropicCompleter struct {
	client anthropic.Client
}

// NewAnthropicCompleter builds a completer from the given API key,
// falling back to the ANTHROPIC_API_KEY environment variable
func NewAnthropicCompleter(apiKey string) (*AnthropicCompleter, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New(errors.TypeConfig, "ANTHROPIC_API_KEY not set")
		}
	}
	return &AnthropicCompleter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Complete implements Completer
func (c *AnthropicCompleter) Complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", errors.TransientProvider("generative call failed", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
