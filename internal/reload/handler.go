package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vadash/openvault-sub001/internal/config"
)

// Applier takes a validated configuration and applies what can change at
// runtime.
type Applier interface {
	ApplyConfig(ctx context.Context, cfg *config.Config) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, cfg *config.Config) error

// ApplyConfig implements Applier.
func (f ApplierFunc) ApplyConfig(ctx context.Context, cfg *config.Config) error { return f(ctx, cfg) }

// Handler loads, validates and applies configuration on reload requests.
type Handler struct {
	applier Applier
	logger  *slog.Logger
}

// NewHandler creates a reload handler.
func NewHandler(applier Applier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{applier: applier, logger: logger.With("component", "reload")}
}

// HandleReload loads a fresh config from disk, validates it and applies it.
// An invalid file leaves the running configuration untouched.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("reload: loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("reload: validating config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload: context cancelled before apply: %w", err)
	}
	if err := h.applier.ApplyConfig(ctx, cfg); err != nil {
		return fmt.Errorf("reload: applying config: %w", err)
	}

	h.logger.Info("reload: configuration applied", "path", configPath)
	return nil
}
