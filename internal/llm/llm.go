package llm

import (
	"context"
	"errors"
)

// Client abstracts LLM providers for the document analysis agents.
type Client interface {
	// Complete sends one system/user prompt pair and returns the model's
	// reply text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation used when no provider is
// configured. Jobs that reach the pipeline fail with a clear error instead
// of hanging.
type PlaceholderClient struct{}

// Complete returns ErrNotImplemented.
func (PlaceholderClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	_ = ctx
	_ = systemPrompt
	_ = userPrompt
	return "", ErrNotImplemented
}

var _ Client = PlaceholderClient{}
