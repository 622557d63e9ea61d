// Package embedding defines the text-embedding capability consumed by
// retrieval and the optional capabilities providers may add on top of it.
package embedding

import (
	"context"
	"errors"
)

// DefaultChunkSize is the query length, in runes, assumed for providers
// that do not implement ChunkSizer.
const DefaultChunkSize = 1000

var (
	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("embedding: empty text")

	// ErrRequest wraps transport and protocol failures.
	ErrRequest = errors.New("embedding: request failed")
)

// Embedder turns text into a vector. Providers may apply query framing
// internally; callers always pass raw text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkSizer is implemented by embedders that know their preferred input
// length in runes.
type ChunkSizer interface {
	OptimalChunkSize() int
}

// DocumentEmbedder is implemented by embedders that frame stored documents
// differently from queries.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// OptimalChunkSize returns e's preferred input length or DefaultChunkSize.
func OptimalChunkSize(e Embedder) int {
	if cs, ok := e.(ChunkSizer); ok {
		if n := cs.OptimalChunkSize(); n > 0 {
			return n
		}
	}
	return DefaultChunkSize
}

// EmbedDocument embeds text as a stored document, using document framing
// when e supports it.
func EmbedDocument(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if de, ok := e.(DocumentEmbedder); ok {
		return de.EmbedDocument(ctx, text)
	}
	return e.Embed(ctx, text)
}
