package embedding

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Cached wraps an Embedder with a bounded LRU of query embeddings. The
// oldest entry is evicted on overflow and reads move an entry to the back.
// Document embeddings pass through uncached.
type Cached struct {
	next Embedder
	max  int

	mu      sync.Mutex
	entries *orderedmap.OrderedMap[string, []float32]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Compile-time interface checks.
var (
	_ Embedder         = (*Cached)(nil)
	_ ChunkSizer       = (*Cached)(nil)
	_ DocumentEmbedder = (*Cached)(nil)
)

// NewCached wraps next with an LRU holding at most size entries.
// A size below 1 is treated as 1.
func NewCached(next Embedder, size int) *Cached {
	return &Cached{
		next:    next,
		max:     max(size, 1),
		entries: orderedmap.New[string, []float32](),
	}
}

// Embed implements Embedder.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	if vec, ok := c.entries.Get(text); ok {
		_ = c.entries.MoveToBack(text)
		c.mu.Unlock()
		c.hits.Add(1)
		return slices.Clone(vec), nil
	}
	c.mu.Unlock()
	c.misses.Add(1)

	vec, err := c.next.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		return vec, err
	}

	c.mu.Lock()
	c.entries.Set(text, slices.Clone(vec))
	for c.entries.Len() > c.max {
		oldest := c.entries.Oldest()
		c.entries.Delete(oldest.Key)
	}
	c.mu.Unlock()
	return vec, nil
}

// EmbedDocument implements DocumentEmbedder.
func (c *Cached) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return EmbedDocument(ctx, c.next, text)
}

// OptimalChunkSize implements ChunkSizer by delegating to the wrapped
// embedder.
func (c *Cached) OptimalChunkSize() int {
	return OptimalChunkSize(c.next)
}

// Len returns the number of cached entries.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Hits returns the number of cache hits so far.
func (c *Cached) Hits() uint64 { return c.hits.Load() }

// Misses returns the number of cache misses so far.
func (c *Cached) Misses() uint64 { return c.misses.Load() }
