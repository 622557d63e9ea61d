package embedding

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the configuration for an HTTP embedding provider.
type Config struct {
	BaseURL        string            `yaml:"base_url"`
	APIKey         string            `yaml:"api_key"`
	Model          string            `yaml:"model"`
	Dimensions     int               `yaml:"dimensions"`
	QueryPrefix    string            `yaml:"query_prefix"`
	DocumentPrefix string            `yaml:"document_prefix"`
	ChunkSize      int               `yaml:"chunk_size"`
	Headers        map[string]string `yaml:"headers"`
	Timeout        time.Duration     `yaml:"timeout"`
}

// defaults sets default values for unset fields. kind selects the base URL
// used when none is configured.
func (c *Config) defaults(kind string) {
	if c.BaseURL == "" {
		switch kind {
		case kindOllama:
			c.BaseURL = "http://127.0.0.1:11434"
		default:
			c.BaseURL = "https://api.openai.com/v1"
		}
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// validate returns an error if required fields are missing.
func (c *Config) validate(id string) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%s: base_url is not a valid URL: %w", id, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: base_url scheme must be http or https, got %q", id, u.Scheme)
	}
	if c.Model == "" {
		return fmt.Errorf("%s: model is required", id)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("%s: dimensions must not be negative", id)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("%s: chunk_size must not be negative", id)
	}
	return nil
}
