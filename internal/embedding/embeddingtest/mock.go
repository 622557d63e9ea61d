// Package embeddingtest provides a hand-written Embedder mock.
package embeddingtest

import (
	"context"
	"sync"
)

// Embedder is a configurable embedding.Embedder for tests. When EmbedFunc
// is nil, Vectors is consulted by exact text and unknown text returns Err
// or a nil vector.
type Embedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	Vectors   map[string][]float32
	Err       error
	ChunkSize int

	mu    sync.Mutex
	texts []string
}

// Embed implements embedding.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()

	if e.EmbedFunc != nil {
		return e.EmbedFunc(ctx, text)
	}
	if v, ok := e.Vectors[text]; ok {
		return v, nil
	}
	return nil, e.Err
}

// OptimalChunkSize implements embedding.ChunkSizer. Zero means unset.
func (e *Embedder) OptimalChunkSize() int { return e.ChunkSize }

// Texts returns every text passed to Embed, in call order.
func (e *Embedder) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

// Calls returns the number of Embed calls.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.texts)
}
