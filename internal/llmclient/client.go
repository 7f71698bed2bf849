// Package llmclient adapts hosted language model APIs to one completion interface.
package llmclient

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Request is a single chat completion: one system prompt and one user prompt.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	// MaxTokens of zero uses the client's configured default.
	MaxTokens        int
	PresencePenalty  float64
	FrequencyPenalty float64
}

// Client generates text. Implementations only repeat a call the provider throttled;
// general retries and rate limiting belong to the caller.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Model reports the model name recorded in article metadata.
	Model() string
}
