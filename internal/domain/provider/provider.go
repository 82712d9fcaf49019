// Package provider defines the external completion capability consumed by
// the reply orchestrator. The wire format is the adapter's concern; callers
// see complete(prompt) -> text with a small error taxonomy.
package provider

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_completer.go -package=mocks . Completer

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is a hard provider timeout; it is fatal for the attempt
	// and is not retried.
	ErrTimeout = errors.New("completion provider timeout")
	// ErrFailed is a transient provider failure; bounded retries apply.
	ErrFailed = errors.New("completion provider failure")
)

// Message is one prior utterance in the prompt context.
type Message struct {
	Role   string `json:"role"` // "user" or "assistant"
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text"`
}

// PromptContext carries the full conversation context for one completion.
type PromptContext struct {
	System   string    `json:"system,omitempty"`
	Persona  string    `json:"persona,omitempty"`
	Messages []Message `json:"messages"`
}

// Completer produces one completion for a prompt context.
type Completer interface {
	Complete(ctx context.Context, prompt PromptContext) (string, error)
}
