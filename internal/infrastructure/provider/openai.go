package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	domain "github.com/turnhub/turnhub/internal/domain/provider"
)

// OpenAIOptions configure the OpenAI completer.
type OpenAIOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

// OpenAI wraps the OpenAI Chat Completions API behind provider.Completer.
type OpenAI struct {
	client *openai.Client
	opts   OpenAIOptions
}

// NewOpenAI creates an OpenAI completer using the official client. The API
// key is read from the environment by the SDK.
func NewOpenAI(optFns ...func(o *OpenAIOptions)) *OpenAI {
	client := openai.NewClient()
	return NewOpenAIFromClient(&client, optFns...)
}

// NewOpenAIFromClient creates an OpenAI completer from an existing client.
func NewOpenAIFromClient(client *openai.Client, optFns ...func(o *OpenAIOptions)) *OpenAI {
	opts := OpenAIOptions{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0.7,
		MaxTokens:   1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &OpenAI{client: client, opts: opts}
}

// Complete implements provider.Completer.
func (o *OpenAI) Complete(ctx context.Context, prompt domain.PromptContext) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.Messages)+1)
	if system := systemText(prompt); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, m := range prompt.Messages {
		if m.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(m.Text))
			continue
		}
		messages = append(messages, openai.UserMessage(labelled(m)))
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               o.opts.Model,
		Messages:            messages,
		Temperature:         openai.Float(o.opts.Temperature),
		MaxCompletionTokens: openai.Int(o.opts.MaxTokens),
	})
	if err != nil {
		return "", classify(err, "openai")
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: openai returned no text", domain.ErrFailed)
	}
	return resp.Choices[0].Message.Content, nil
}
