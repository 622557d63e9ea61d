package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/vadash/openvault-sub001/internal/config"
	"github.com/vadash/openvault-sub001/internal/reload"
	"github.com/vadash/openvault-sub001/internal/retrieval"
)

// Run starts every module and the job scheduler, then blocks until ctx is
// done. SIGHUP and changes to the configuration file re-apply retrieval
// tuning without a restart. The caller still owns Close.
func (a *App) Run(ctx context.Context) error {
	if err := a.core.Start(); err != nil {
		return err
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var changes <-chan reload.Event
	if a.cfgPath != "" {
		watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: a.cfgPath})
		watcher.Start(ctx)
		defer watcher.Stop()
		changes = watcher.Events()
	}
	handler := reload.NewHandler(a, a.Logger)

	a.Logger.Info("app: running", "config", a.cfgPath, "memories", a.Store.Len())
	for {
		select {
		case <-ctx.Done():
			a.Logger.Info("app: shutting down", "cause", context.Cause(ctx))
			return nil
		case <-hup:
			a.Logger.Info("app: SIGHUP received, reloading configuration")
			a.reload(ctx, handler)
		case evt := <-changes:
			a.Logger.Info("app: configuration file changed, reloading", "path", evt.ConfigPath)
			a.reload(ctx, handler)
		}
	}
}

func (a *App) reload(ctx context.Context, h *reload.Handler) {
	if a.cfgPath == "" {
		a.Logger.Warn("app: reload requested but no configuration file is known")
		return
	}
	if err := h.HandleReload(ctx, a.cfgPath); err != nil {
		a.Logger.Error("app: reload failed, keeping current configuration", "error", err)
	}
}

// ApplyConfig implements reload.Applier. Scoring, query and budget tuning
// take effect for the next retrieval. Module and provider wiring is fixed at
// startup; changes to it are reported and ignored.
func (a *App) ApplyConfig(_ context.Context, cfg *config.Config) error {
	old := a.Config()
	if keys := restartKeys(old, cfg); len(keys) > 0 {
		a.Logger.Warn("app: some changes need a restart and were not applied", "keys", keys)
	}

	next := *old
	next.Retrieval = wiredRetrieval(old.Retrieval, cfg.Retrieval)

	a.selector.swap(retrieval.New(a.retrievalOptions(next.Retrieval)))
	a.cfg.Store(&next)
	return nil
}

// wiredRetrieval returns cfg with the startup-only fields taken from old.
func wiredRetrieval(old, cfg config.RetrievalConfig) config.RetrievalConfig {
	cfg.Embedding = old.Embedding
	cfg.Reranker = old.Reranker
	cfg.Store = old.Store
	cfg.Executor = old.Executor
	return cfg
}

// restartKeys lists the settings that differ between old and cfg but are
// only read at startup.
func restartKeys(old, cfg *config.Config) []string {
	var keys []string
	add := func(changed bool, key string) {
		if changed {
			keys = append(keys, key)
		}
	}
	add(old.DataDir != cfg.DataDir, "data_dir")
	add(old.Log != cfg.Log, "log")
	add(old.Retrieval.Embedding != cfg.Retrieval.Embedding, "retrieval.embedding")
	add(old.Retrieval.Reranker != cfg.Retrieval.Reranker, "retrieval.reranker")
	add(old.Retrieval.Store != cfg.Retrieval.Store, "retrieval.store")
	add(old.Retrieval.Executor != cfg.Retrieval.Executor, "retrieval.executor")
	add(old.Backfill != cfg.Backfill, "backfill")
	add(old.Telemetry != cfg.Telemetry, "telemetry")
	add(!slices.Equal(moduleIDs(old), moduleIDs(cfg)), "modules")
	return keys
}

func moduleIDs(cfg *config.Config) []string {
	return config.Resolve(cfg)
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/openvault/openvault.yaml →
// ~/.config/openvault/openvault.yaml → ./openvault.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "openvault", "openvault.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "openvault", "openvault.yaml"))
	}

	candidates = append(candidates, "openvault.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/openvault if set, otherwise ~/.local/share/openvault.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "openvault")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "openvault")
}
