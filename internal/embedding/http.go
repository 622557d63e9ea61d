package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/vadash/openvault-sub001/internal/core"
	"gopkg.in/yaml.v3"
)

const (
	kindAPI    = "api"
	kindOllama = "ollama"
)

func init() {
	core.RegisterModule(&HTTPEmbedder{kind: kindAPI})
	core.RegisterModule(&HTTPEmbedder{kind: kindOllama})
}

// HTTPEmbedder calls a remote embedding endpoint. Kind "api" speaks the
// OpenAI embeddings protocol; kind "ollama" speaks Ollama's /api/embed.
type HTTPEmbedder struct {
	kind   string
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewHTTPEmbedder builds an embedder of the given kind outside the module
// system.
func NewHTTPEmbedder(kind string, cfg Config, client *http.Client) (*HTTPEmbedder, error) {
	e := &HTTPEmbedder{kind: kind, config: cfg, client: client, logger: slog.Default()}
	e.config.defaults(kind)
	if kind != kindAPI && kind != kindOllama {
		return nil, fmt.Errorf("embedding: unknown provider kind %q", kind)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: e.config.Timeout}
	}
	return e, nil
}

// ModuleInfo implements core.Module.
func (e *HTTPEmbedder) ModuleInfo() core.ModuleInfo {
	kind := e.kind
	return core.ModuleInfo{
		ID:  core.ModuleID("embedding." + kind),
		New: func() core.Module { return &HTTPEmbedder{kind: kind} },
	}
}

// Configure implements core.Configurable.
func (e *HTTPEmbedder) Configure(node *yaml.Node) error {
	if err := node.Decode(&e.config); err != nil {
		return err
	}
	return nil
}

// Provision implements core.Provisioner.
func (e *HTTPEmbedder) Provision(ctx *core.AppContext) error {
	e.config.defaults(e.kind)
	e.logger = ctx.Logger
	e.client = &http.Client{Timeout: e.config.Timeout}
	return nil
}

// Validate implements core.Validator.
func (e *HTTPEmbedder) Validate() error {
	return e.config.validate("embedding." + e.kind)
}

// Embed implements Embedder with query framing.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, e.config.QueryPrefix, text)
}

// EmbedDocument implements DocumentEmbedder with document framing.
func (e *HTTPEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, e.config.DocumentPrefix, text)
}

// OptimalChunkSize implements ChunkSizer.
func (e *HTTPEmbedder) OptimalChunkSize() int {
	return e.config.ChunkSize
}

func (e *HTTPEmbedder) embed(ctx context.Context, prefix, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	input := prefix + text

	var (
		vec []float32
		err error
	)
	switch e.kind {
	case kindOllama:
		vec, err = e.requestOllama(ctx, input)
	default:
		vec, err = e.requestAPI(ctx, input)
	}
	if err != nil {
		return nil, err
	}
	if e.config.Dimensions > 0 && len(vec) != e.config.Dimensions {
		return nil, fmt.Errorf("%w: embedding dimension %d, want %d", ErrRequest, len(vec), e.config.Dimensions)
	}
	return vec, nil
}

type apiRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type apiResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *HTTPEmbedder) requestAPI(ctx context.Context, input string) ([]float32, error) {
	var resp apiResponse
	if err := e.post(ctx, "/embeddings", apiRequest{Model: e.config.Model, Input: input}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("%w: got %d embeddings, want 1", ErrRequest, len(resp.Data))
	}
	item := resp.Data[0]
	if item.Index != 0 {
		return nil, fmt.Errorf("%w: invalid embedding index %d", ErrRequest, item.Index)
	}
	if len(item.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding vector", ErrRequest)
	}
	return slices.Clone(item.Embedding), nil
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *HTTPEmbedder) requestOllama(ctx context.Context, input string) ([]float32, error) {
	var resp ollamaResponse
	if err := e.post(ctx, "/api/embed", apiRequest{Model: e.config.Model, Input: input}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != 1 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: expected one non-empty embedding", ErrRequest)
	}
	return resp.Embeddings[0], nil
}

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

func (e *HTTPEmbedder) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}
	for k, v := range e.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return fmt.Errorf("%w: HTTP %d: %s", ErrRequest, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrRequest, err)
	}
	return nil
}

// Compile-time interface assertions.
var (
	_ core.Module       = (*HTTPEmbedder)(nil)
	_ core.Configurable = (*HTTPEmbedder)(nil)
	_ core.Provisioner  = (*HTTPEmbedder)(nil)
	_ core.Validator    = (*HTTPEmbedder)(nil)
	_ Embedder          = (*HTTPEmbedder)(nil)
	_ DocumentEmbedder  = (*HTTPEmbedder)(nil)
	_ ChunkSizer        = (*HTTPEmbedder)(nil)
)
