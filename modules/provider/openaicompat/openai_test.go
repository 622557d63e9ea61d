package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vadash/openvault-sub001/internal/provider"
	"gopkg.in/yaml.v3"
)

func newTestProvider(baseURL string) *Provider {
	return &Provider{
		config: Config{
			BaseURL: baseURL,
			APIKey:  "test-key",
			Model:   "test-model",
			Timeout: 5 * time.Second,
		},
		client: &http.Client{Timeout: 5 * time.Second},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func userMessage(content string) provider.CompletionRequest {
	return provider.CompletionRequest{
		Messages: []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: content}},
	}
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

func TestConfigure(t *testing.T) {
	t.Parallel()

	yamlData := `
base_url: "https://api.example.com/v1/"
api_key: "sk-test-123"
model: "gpt-4o-mini"
max_tokens: 256
headers:
  X-Custom: "value"
`
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(yamlData), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}

	p := &Provider{}
	if err := p.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if p.config.BaseURL != "https://api.example.com/v1" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", p.config.BaseURL)
	}
	if p.config.Model != "gpt-4o-mini" || p.config.MaxTokens != 256 {
		t.Errorf("Model/MaxTokens = %q/%d", p.config.Model, p.config.MaxTokens)
	}
	if p.config.Headers["X-Custom"] != "value" {
		t.Errorf("Headers = %v", p.config.Headers)
	}
	if p.config.Timeout != 30*time.Second {
		t.Errorf("default Timeout = %v, want 30s", p.config.Timeout)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"missing base_url", Config{Model: "m"}, "base_url"},
		{"bad scheme", Config{BaseURL: "ftp://host", Model: "m"}, "scheme"},
		{"missing model", Config{BaseURL: "http://localhost:8000/v1"}, "model"},
		{"negative max_tokens", Config{BaseURL: "http://h", Model: "m", MaxTokens: -1}, "max_tokens"},
		{"no api key is fine", Config{BaseURL: "http://localhost:8000/v1", Model: "m"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &Provider{config: tt.config}
			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %v does not contain %q", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Complete
// ---------------------------------------------------------------------------

func TestComplete(t *testing.T) {
	t.Parallel()

	var got oaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)

		writeJSON(w, oaiResponse{
			Choices: []oaiChoice{{
				Message:      oaiMessage{Role: "assistant", Content: `{"selected":[2]}`},
				FinishReason: "stop",
			}},
			Usage: oaiUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	temp := 0.0
	req := userMessage("pick")
	req.JSONMode = true
	req.Temperature = &temp
	req.MaxTokens = 64

	resp, err := newTestProvider(srv.URL).Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != `{"selected":[2]}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != provider.FinishReasonStop {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", got.ResponseFormat)
	}
	if got.Temperature == nil || *got.Temperature != 0 || got.MaxTokens != 64 {
		t.Errorf("temperature/max_tokens = %v/%d", got.Temperature, got.MaxTokens)
	}
	if got.Model != "test-model" || len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("request = %+v", got)
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, "slow down", provider.ErrRateLimit},
		{"server error", http.StatusBadGateway, "upstream", provider.ErrProviderDown},
		{"auth", http.StatusUnauthorized, "bad key", provider.ErrAuthentication},
		{"context length", http.StatusBadRequest, `{"error":{"code":"context_length_exceeded"}}`, provider.ErrContextLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestProvider(srv.URL).Complete(context.Background(), userMessage("Hi"))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestComplete_ContextCancelNotProviderDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestProvider(srv.URL).Complete(ctx, userMessage("Hi"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("cancellation must not be reported as provider down: %v", err)
	}
}

func TestCustomHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("HTTP-Referer") != "openvault" {
			t.Errorf("missing custom header")
		}
		writeJSON(w, oaiResponse{Choices: []oaiChoice{{Message: oaiMessage{Content: "ok"}}}})
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	p.config.Headers = map[string]string{"HTTP-Referer": "openvault"}
	if _, err := p.Complete(context.Background(), userMessage("Hi")); err != nil {
		t.Fatal(err)
	}
}

func TestConfigMaxTokensFallback(t *testing.T) {
	t.Parallel()

	req := buildRequest("m", 512, userMessage("Hi"))
	if req.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d, want config fallback 512", req.MaxTokens)
	}
	if req.ResponseFormat != nil {
		t.Error("response_format should be omitted without JSON mode")
	}
}

func TestMapFinishReason(t *testing.T) {
	t.Parallel()

	tests := map[string]provider.FinishReason{
		"stop":           provider.FinishReasonStop,
		"length":         provider.FinishReasonLength,
		"content_filter": provider.FinishReasonFiltering,
		"eos":            provider.FinishReason("eos"),
	}
	for in, want := range tests {
		if got := mapFinishReason(in); got != want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestModelName(t *testing.T) {
	t.Parallel()

	if got := newTestProvider("http://x").ModelName(); got != "test-model" {
		t.Errorf("ModelName() = %q", got)
	}
}
