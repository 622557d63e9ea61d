// Package provider defines the chat-completion capability used for LLM
// reranking, its wire-neutral types, and a health guard that stops calling
// a failing backend for a while.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in separate packages (e.g.
// provider.openai_compatible) and also implement core.Module.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}
