package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/vadash/openvault-sub001/internal/core"
)

// Validate checks the structural validity of a Config: version, module IDs
// against the registry, retrieval parameters, and references from the
// retrieval section to configured modules. All problems are joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateRetrieval(cfg)...)
	errs = append(errs, validateBackfill(cfg)...)

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of text, json", cfg.Log.Format))
	}

	return errors.Join(errs...)
}

func validateRetrieval(cfg *Config) []error {
	r := cfg.Retrieval
	var errs []error

	if err := r.Constants.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := r.Settings.Validate(); err != nil {
		errs = append(errs, err)
	}
	if r.Stage1Budget < 0 || r.Stage2Budget < 0 {
		errs = append(errs, errors.New("config: retrieval budgets must not be negative"))
	}
	if r.CharsPerToken < 0 {
		errs = append(errs, errors.New("config: retrieval.chars_per_token must not be negative"))
	}
	if r.Embedding.CacheSize < 0 {
		errs = append(errs, errors.New("config: retrieval.embedding.cache_size must not be negative"))
	}

	errs = append(errs, checkReference(cfg, "retrieval.embedding.provider", r.Embedding.Provider, "embedding")...)
	errs = append(errs, checkReference(cfg, "retrieval.reranker.provider", r.Reranker.Provider, "provider")...)
	errs = append(errs, checkReference(cfg, "retrieval.store", r.Store, "memory")...)
	return errs
}

// checkReference verifies that a retrieval key names a configured module in
// the expected namespace.
func checkReference(cfg *Config, key, id, namespace string) []error {
	if id == "" {
		return nil
	}
	var errs []error
	if got := core.ModuleID(id).Namespace(); got != namespace {
		errs = append(errs, fmt.Errorf("config: %s %q must be in namespace %q", key, id, namespace))
	}
	if _, ok := cfg.Modules[id]; !ok {
		errs = append(errs, fmt.Errorf("config: %s references %q which has no modules entry", key, id))
	}
	return errs
}

func validateBackfill(cfg *Config) []error {
	if cfg.Backfill.Schedule == "" {
		return nil
	}
	var errs []error
	if _, err := cron.ParseStandard(cfg.Backfill.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("config: backfill.schedule: %w", err))
	}
	if cfg.Retrieval.Embedding.Provider == "" {
		errs = append(errs, errors.New("config: backfill.schedule requires retrieval.embedding.provider"))
	}
	return errs
}
