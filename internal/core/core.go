package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App manages the lifecycle of a set of loaded modules.
type App struct {
	ctx     *AppContext
	modules []moduleInstance
	logger  *slog.Logger
}

type moduleInstance struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates a new App with the given context.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// Context returns the application context modules were provisioned with.
func (a *App) Context() *AppContext { return a.ctx }

// LoadModules instantiates, provisions, and validates the modules for ids
// in order. If any step fails, already-loaded modules are stopped.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.cleanup()
			return fmt.Errorf("core: loading module %s: %w", id, err)
		}
		info := mod.ModuleInfo()
		a.modules = append(a.modules, moduleInstance{id: info.ID, module: mod})
		a.logger.Info("core: module loaded", "module", string(info.ID))
	}
	return nil
}

// Module returns the loaded instance of id.
func (a *App) Module(id string) (Module, bool) {
	for _, mi := range a.modules {
		if string(mi.id) == id {
			return mi.module, true
		}
	}
	return nil, false
}

// ModuleAs returns the loaded module id as a T. It fails when the module
// is not loaded or does not implement T.
func ModuleAs[T any](a *App, id string) (T, error) {
	var zero T
	mod, ok := a.Module(id)
	if !ok {
		return zero, fmt.Errorf("core: module %s is not loaded", id)
	}
	typed, ok := mod.(T)
	if !ok {
		return zero, fmt.Errorf("core: module %s (%T) does not provide %T", id, mod, zero)
	}
	return typed, nil
}

// Start starts every loaded module that implements Starter, in load order.
// If one fails, the modules already started are stopped in reverse order.
func (a *App) Start() error {
	for i := range a.modules {
		mi := &a.modules[i]
		s, ok := mi.module.(Starter)
		if !ok {
			continue
		}
		a.logger.Info("core: starting module", "module", string(mi.id))
		if err := s.Start(); err != nil {
			a.logger.Error("core: module start failed", "module", string(mi.id), "error", err)
			a.stopModules(i - 1)
			return fmt.Errorf("core: starting module %s: %w", mi.id, err)
		}
		mi.started = true
	}
	return nil
}

// Stop stops all started modules in reverse order.
func (a *App) Stop() {
	a.stopModules(len(a.modules) - 1)
}

// Run starts all modules and blocks until ctx is done, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.logger.Info("core: shutting down", "cause", context.Cause(ctx))
	a.Stop()
	return nil
}

// Close stops every loaded module, started or not.
func (a *App) Close() {
	a.cleanup()
}

func (a *App) stopModules(fromIndex int) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := fromIndex; i >= 0; i-- {
		mi := &a.modules[i]
		if !mi.started {
			continue
		}
		if s, ok := mi.module.(Stopper); ok {
			a.logger.Info("core: stopping module", "module", string(mi.id))
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("core: module stop error", "module", string(mi.id), "error", err)
			}
		}
		mi.started = false
	}
}

func (a *App) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.modules) - 1; i >= 0; i-- {
		if s, ok := a.modules[i].module.(Stopper); ok {
			_ = s.Stop(ctx)
		}
	}
	a.modules = nil
}
