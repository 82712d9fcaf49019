// Package provider contains completion adapters for the supported AI
// backends. Each adapter flattens the prompt context into the vendor's
// message format and returns plain text; retry and timeout policy live in
// the orchestrator, not here.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	domain "github.com/turnhub/turnhub/internal/domain/provider"
)

// AnthropicOptions configure the Anthropic completer.
type AnthropicOptions struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Anthropic wraps the Anthropic Messages API behind provider.Completer.
type Anthropic struct {
	client *anthropic.Client
	opts   AnthropicOptions
}

// NewAnthropic creates an Anthropic completer using the official client.
func NewAnthropic(optFns ...func(o *AnthropicOptions)) *Anthropic {
	opts := AnthropicOptions{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Anthropic{client: &client, opts: opts}
}

// Complete implements provider.Completer.
func (a *Anthropic) Complete(ctx context.Context, prompt domain.PromptContext) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       a.opts.Model,
		Messages:    anthropicMessages(prompt),
		MaxTokens:   a.opts.MaxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
	}
	if system := systemText(prompt); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err, "anthropic")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("%w: anthropic returned no text", domain.ErrFailed)
	}
	return text, nil
}

func anthropicMessages(prompt domain.PromptContext) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(labelled(m))))
	}
	return messages
}

// labelled prefixes a human message with its sender so the model can keep
// multi-party context straight.
func labelled(m domain.Message) string {
	if m.Sender == "" {
		return m.Text
	}
	return m.Sender + ": " + m.Text
}

func systemText(prompt domain.PromptContext) string {
	system := prompt.System
	if prompt.Persona != "" {
		if system != "" {
			system += "\n\n"
		}
		system += prompt.Persona
	}
	return system
}

func classify(err error, vendor string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", domain.ErrTimeout, vendor, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrFailed, vendor, err)
}
