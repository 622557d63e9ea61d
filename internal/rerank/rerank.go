// Package rerank asks an LLM to pick the most relevant memories from an
// already filtered list and parses its reply.
package rerank

import (
	"context"
	"fmt"

	"github.com/vadash/openvault-sub001/internal/provider"
)

// DefaultMaxTokens bounds the reranker's reply.
const DefaultMaxTokens = 256

// Reranker sends a prompt and returns the raw reply text.
type Reranker interface {
	Rerank(ctx context.Context, messages []provider.LLMMessage) (string, error)
}

// Func adapts a plain function to Reranker.
type Func func(ctx context.Context, messages []provider.LLMMessage) (string, error)

// Rerank implements Reranker.
func (f Func) Rerank(ctx context.Context, messages []provider.LLMMessage) (string, error) {
	return f(ctx, messages)
}

// ProviderReranker adapts a provider.Provider to Reranker.
type ProviderReranker struct {
	provider  provider.Provider
	maxTokens int
}

// Compile-time interface checks.
var (
	_ Reranker = Func(nil)
	_ Reranker = (*ProviderReranker)(nil)
)

// NewProviderReranker returns a Reranker backed by p. A maxTokens of zero
// uses DefaultMaxTokens.
func NewProviderReranker(p provider.Provider, maxTokens int) *ProviderReranker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &ProviderReranker{provider: p, maxTokens: maxTokens}
}

// Rerank implements Reranker. It requests deterministic JSON output.
func (r *ProviderReranker) Rerank(ctx context.Context, messages []provider.LLMMessage) (string, error) {
	temperature := 0.0
	resp, err := r.provider.Complete(ctx, provider.CompletionRequest{
		Messages:    messages,
		MaxTokens:   r.maxTokens,
		Temperature: &temperature,
		JSONMode:    true,
	})
	if err != nil {
		return "", fmt.Errorf("rerank: completion failed: %w", err)
	}
	return resp.Content, nil
}
