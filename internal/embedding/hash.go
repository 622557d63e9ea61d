package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/vadash/openvault-sub001/internal/core"
	"github.com/vadash/openvault-sub001/internal/lexical"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Hash{})
}

// DefaultHashDimensions is the vector size of the hash embedder.
const DefaultHashDimensions = 256

// Hash is a deterministic local embedder. Each lexical token is hashed to a
// signed bucket so texts sharing vocabulary get a positive cosine
// similarity. It needs no network and suits tests and offline setups.
type Hash struct {
	Dimensions int `yaml:"dimensions"`
	ChunkSize  int `yaml:"chunk_size"`
}

// NewHash returns a hash embedder with the given dimensions.
func NewHash(dimensions int) *Hash {
	h := &Hash{Dimensions: dimensions}
	h.defaults()
	return h
}

// ModuleInfo implements core.Module.
func (h *Hash) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "embedding.hash",
		New: func() core.Module { return NewHash(0) },
	}
}

// Configure implements core.Configurable.
func (h *Hash) Configure(node *yaml.Node) error {
	if err := node.Decode(h); err != nil {
		return err
	}
	h.defaults()
	return nil
}

// Validate implements core.Validator.
func (h *Hash) Validate() error {
	if h.Dimensions < 8 {
		return fmt.Errorf("embedding.hash: dimensions must be at least 8, got %d", h.Dimensions)
	}
	return nil
}

func (h *Hash) defaults() {
	if h.Dimensions == 0 {
		h.Dimensions = DefaultHashDimensions
	}
	if h.ChunkSize == 0 {
		h.ChunkSize = DefaultChunkSize
	}
}

// Embed implements Embedder. Text without any token yields ErrEmptyText.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := lexical.Tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}

	vec := make([]float32, h.Dimensions)
	for _, tok := range tokens {
		sum := xxhash.Sum64String(tok)
		idx := sum % uint64(h.Dimensions)
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil, ErrEmptyText
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// OptimalChunkSize implements ChunkSizer.
func (h *Hash) OptimalChunkSize() int { return h.ChunkSize }

// Compile-time interface assertions.
var (
	_ core.Module       = (*Hash)(nil)
	_ core.Configurable = (*Hash)(nil)
	_ core.Validator    = (*Hash)(nil)
	_ Embedder          = (*Hash)(nil)
	_ ChunkSizer        = (*Hash)(nil)
)
