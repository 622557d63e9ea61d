// Package gateway serves the retrieval pipeline over HTTP. It binds to
// loopback by default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/vadash/openvault-sub001/internal/core"
	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/retrieval"
	"github.com/vadash/openvault-sub001/internal/worker"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// availability reports whether the reranker backend is usable.
type availability interface {
	Available() bool
}

// executorStats exposes scoring executor counters.
type executorStats interface {
	Stats() worker.Stats
}

// cacheStats exposes embedding cache counters.
type cacheStats interface {
	Len() int
	Hits() uint64
	Misses() uint64
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	gatherer  prometheus.Gatherer
	startedAt time.Time
	streams   streamSet

	// Resolved lazily at Start() via service registry.
	retriever retrieval.Selector
	store     memory.Store
	reranker  availability
	executor  executorStats
	cache     cacheStats
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = NewMetrics(ctx.Metrics)

	g.gatherer = prometheus.DefaultGatherer
	if gth, ok := ctx.Metrics.(prometheus.Gatherer); ok {
		g.gatherer = gth
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if (g.config.Auth.BasicUser == "") != (g.config.Auth.BasicPass == "") {
		return errors.New("gateway: basic auth needs both basic_user and basic_pass")
	}
	if g.config.RateLimit.RequestsPerMin < 0 {
		return errors.New("gateway: rate_limit.requests_per_min must not be negative")
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	if g.retriever == nil {
		return errors.New("gateway: service retrieval.orchestrator not registered")
	}
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: api routes are unauthenticated", "addr", g.config.Bind)
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway: listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway: shutting down", "streams", g.streams.len())
	g.streams.closeAll()
	return g.server.Shutdown(shutdownCtx)
}

// resolveServices binds optional collaborators. Missing ones degrade the
// routes that need them.
func (g *Gateway) resolveServices() {
	if svc, ok := g.appCtx.Service("retrieval.orchestrator"); ok {
		g.retriever, _ = svc.(retrieval.Selector)
	}
	if svc, ok := g.appCtx.Service("memory.store"); ok {
		g.store, _ = svc.(memory.Store)
	}
	if svc, ok := g.appCtx.Service("provider.reranker"); ok {
		g.reranker, _ = svc.(availability)
	}
	if svc, ok := g.appCtx.Service("worker.executor"); ok {
		g.executor, _ = svc.(executorStats)
	}
	if svc, ok := g.appCtx.Service("embedding.cache"); ok {
		g.cache, _ = svc.(cacheStats)
	}
}
