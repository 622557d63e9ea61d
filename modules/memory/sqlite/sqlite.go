// Package sqlite implements a persistent memory event store module backed
// by modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vadash/openvault-sub001/internal/core"
	"github.com/vadash/openvault-sub001/internal/memory"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ memory.Store      = (*Store)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides a SQLite-backed memory.Store, registered as the
// "memory.store" service.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	// Pragma values are interpolated, so they are checked before opening.
	if err := m.config.validate(); err != nil {
		return err
	}
	m.config.resolvePath(ctx.DataDir)

	db, err := open(context.Background(), m.config.Path, m.config)
	if err != nil {
		return err
	}
	m.store = &Store{db: db}

	ctx.RegisterService("memory.store", m.store)

	m.logger.Info("sqlite: memory store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"synchronous", m.config.Synchronous,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.store.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite: memory store stopping")
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// Store returns the provisioned store.
func (m *Module) Store() memory.Store {
	return m.store
}
