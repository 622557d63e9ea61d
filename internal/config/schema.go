// Package config handles YAML configuration loading, environment variable
// expansion, and validation for openvault.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vadash/openvault-sub001/internal/provider"
	"github.com/vadash/openvault-sub001/internal/querycontext"
	"github.com/vadash/openvault-sub001/internal/scoring"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir is where modules keep persistent files.
	DataDir string `yaml:"data_dir"`

	Log       LogConfig       `yaml:"log"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Backfill  BackfillConfig  `yaml:"backfill"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "embedding.ollama").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// RetrievalConfig holds pipeline defaults. Per-call budgets and the smart
// flag may be overridden by the caller.
type RetrievalConfig struct {
	Constants scoring.Constants   `yaml:"constants"`
	Settings  scoring.Settings    `yaml:"settings"`
	Query     querycontext.Config `yaml:"query"`

	Stage1Budget  int     `yaml:"stage1_budget"`
	Stage2Budget  int     `yaml:"stage2_budget"`
	Smart         bool    `yaml:"smart"`
	CharsPerToken float64 `yaml:"chars_per_token"`

	EmbedTimeout  time.Duration `yaml:"embed_timeout"`
	RerankTimeout time.Duration `yaml:"rerank_timeout"`

	// Executor scores on a dedicated goroutine with a content cache.
	Executor bool `yaml:"executor"`
	// POVFilter drops secret events the point-of-view character did not
	// witness before scoring.
	POVFilter bool `yaml:"pov_filter"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Reranker  RerankerConfig  `yaml:"reranker"`

	// Store is the module ID of the memory store. Empty uses an in-memory
	// store.
	Store string `yaml:"store"`
}

// EmbeddingConfig selects the embedding provider module.
type EmbeddingConfig struct {
	// Provider is a module ID in the "embedding" namespace. Empty disables
	// the vector signal.
	Provider string `yaml:"provider"`
	// CacheSize bounds the query embedding LRU. Zero disables caching.
	CacheSize int `yaml:"cache_size"`
}

// RerankerConfig selects the LLM provider module used in smart mode.
type RerankerConfig struct {
	// Provider is a module ID in the "provider" namespace. Empty makes
	// smart mode behave like simple mode.
	Provider  string                `yaml:"provider"`
	MaxTokens int                   `yaml:"max_tokens"`
	Health    provider.HealthConfig `yaml:"health"`
}

// BackfillConfig schedules the embedding backfill job.
type BackfillConfig struct {
	// Schedule is a 5-field cron expression. Empty disables the job.
	Schedule  string `yaml:"schedule"`
	BatchSize int    `yaml:"batch_size"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	// OTLPEndpoint is a host:port for the OTLP/HTTP exporter. Empty
	// disables export.
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// Default returns a configuration with every default filled in. Load
// decodes on top of it, so absent keys keep these values.
func Default() *Config {
	return &Config{
		Version: "1",
		DataDir: "./data",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Retrieval: RetrievalConfig{
			Constants:     scoring.DefaultConstants(),
			Settings:      scoring.DefaultSettings(),
			Query:         querycontext.DefaultConfig(),
			Stage1Budget:  2000,
			Stage2Budget:  1000,
			CharsPerToken: 3.5,
			EmbedTimeout:  5 * time.Second,
			RerankTimeout: 20 * time.Second,
			Executor:      true,
			Embedding: EmbeddingConfig{
				CacheSize: 256,
			},
			Reranker: RerankerConfig{
				MaxTokens: 256,
			},
		},
		Backfill: BackfillConfig{
			BatchSize: 32,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "openvault",
			SampleRatio: 1,
		},
	}
}
