// Package app wires configuration, modules and the retrieval pipeline into
// a running openvault process. The CLI commands share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vadash/openvault-sub001/internal/backfill"
	"github.com/vadash/openvault-sub001/internal/config"
	"github.com/vadash/openvault-sub001/internal/core"
	"github.com/vadash/openvault-sub001/internal/cron"
	"github.com/vadash/openvault-sub001/internal/embedding"
	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/provider"
	"github.com/vadash/openvault-sub001/internal/rerank"
	"github.com/vadash/openvault-sub001/internal/retrieval"
	"github.com/vadash/openvault-sub001/internal/telemetry"
	"github.com/vadash/openvault-sub001/internal/worker"
)

// Options configures New and Open.
type Options struct {
	// ConfigPath is watched for changes by Run. Open resolves it when empty.
	ConfigPath string
	// DataDir overrides the data_dir setting.
	DataDir string
	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer
}

// App is a wired openvault instance.
type App struct {
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Store    memory.Store

	cfg       atomic.Pointer[config.Config]
	cfgPath   string
	core      *core.App
	selector  *liveSelector
	embedder  embedding.Embedder
	reranker  rerank.Reranker
	executor  *worker.Executor
	scheduler *cron.Scheduler
	shutdown  telemetry.ShutdownFunc
}

// Open resolves and loads the configuration file, validates it and builds
// the application.
func Open(ctx context.Context, opts Options) (*App, error) {
	if opts.ConfigPath == "" {
		path, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		opts.ConfigPath = path
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts)
}

// New builds the application from a validated configuration: it loads the
// configured modules, resolves the embedder, reranker and store, and
// registers the orchestrator and its collaborators as services. Modules are
// not started; Run does that.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := telemetry.NewLogger(out, cfg.Log.Level, cfg.Log.Format, telemetry.NewRedactor(moduleSecrets(cfg.Modules)...))
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, err
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	appCtx := core.NewAppContext(logger, dataDir, reg).WithModuleConfigs(cfg.Modules)
	a := &App{
		Logger:    logger,
		Registry:  reg,
		cfgPath:   opts.ConfigPath,
		core:      core.NewApp(appCtx),
		selector:  &liveSelector{},
		scheduler: cron.NewScheduler(logger),
		shutdown:  shutdown,
	}
	a.cfg.Store(cfg)
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if err := a.core.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, err
	}
	if err := a.wire(appCtx, cfg); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) wire(appCtx *core.AppContext, cfg *config.Config) error {
	r := cfg.Retrieval

	if r.Embedding.Provider != "" {
		e, err := core.ModuleAs[embedding.Embedder](a.core, r.Embedding.Provider)
		if err != nil {
			return err
		}
		a.embedder = e
		if r.Embedding.CacheSize > 0 {
			cached := embedding.NewCached(e, r.Embedding.CacheSize)
			a.embedder = cached
			appCtx.RegisterService("embedding.cache", cached)
			a.registerCacheMetrics(cached)
		}
	}

	if r.Reranker.Provider != "" {
		p, err := core.ModuleAs[provider.Provider](a.core, r.Reranker.Provider)
		if err != nil {
			return err
		}
		guard := provider.NewGuard(p, r.Reranker.Health, a.Logger)
		appCtx.RegisterService("provider.reranker", guard)
		a.reranker = rerank.NewProviderReranker(guard, r.Reranker.MaxTokens)
	}

	if r.Store != "" {
		store, err := core.ServiceAs[memory.Store](appCtx, "memory.store")
		if err != nil {
			return fmt.Errorf("app: store %s: %w", r.Store, err)
		}
		a.Store = store
	} else {
		a.Store = memory.NewInMemoryStore()
		appCtx.RegisterService("memory.store", a.Store)
	}
	a.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "openvault_memories",
		Help: "Memories held by the store.",
	}, func() float64 { return float64(a.Store.Len()) }))

	if r.Executor {
		a.executor = worker.New(a.Logger)
		appCtx.RegisterService("worker.executor", a.executor)
		a.registerExecutorMetrics()
	}

	a.selector.swap(retrieval.New(a.retrievalOptions(r)))
	appCtx.RegisterService("retrieval.orchestrator", a.selector)

	if cfg.Backfill.Schedule != "" && a.embedder != nil {
		job := backfill.New(a.Store, a.embedder, backfill.Options{
			Schedule:  cfg.Backfill.Schedule,
			BatchSize: cfg.Backfill.BatchSize,
			Timeout:   r.EmbedTimeout,
			Logger:    a.Logger,
		})
		if err := a.scheduler.Register(job); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) retrievalOptions(r config.RetrievalConfig) retrieval.Options {
	opts := retrieval.Options{
		Constants:     r.Constants,
		Settings:      r.Settings,
		Query:         r.Query,
		CharsPerToken: r.CharsPerToken,
		EmbedTimeout:  r.EmbedTimeout,
		RerankTimeout: r.RerankTimeout,
		POVFilter:     r.POVFilter,
		Embedder:      a.embedder,
		Reranker:      a.reranker,
		Logger:        a.Logger,
		Metrics:       a.Registry,
	}
	if a.executor != nil {
		opts.Scorer = a.executor
	}
	return opts
}

func (a *App) registerExecutorMetrics() {
	counter := func(name, help string, read func(worker.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(read(a.executor.Stats())) })
	}
	a.Registry.MustRegister(
		counter("openvault_executor_calls_total", "Scoring calls served by the executor.",
			func(s worker.Stats) uint64 { return s.Calls }),
		counter("openvault_executor_refreshes_total", "Executor content cache refreshes.",
			func(s worker.Stats) uint64 { return s.Refreshes }),
		counter("openvault_executor_failures_total", "Executor scoring calls that failed.",
			func(s worker.Stats) uint64 { return s.Failures }),
	)
}

func (a *App) registerCacheMetrics(c *embedding.Cached) {
	a.Registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "openvault_embedding_cache_hits_total",
			Help: "Query embedding cache hits.",
		}, func() float64 { return float64(c.Hits()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "openvault_embedding_cache_misses_total",
			Help: "Query embedding cache misses.",
		}, func() float64 { return float64(c.Misses()) }),
	)
}

// ErrNoEmbedder is returned by Backfill when no embedding provider is
// configured.
var ErrNoEmbedder = errors.New("app: no embedding provider configured")

// Backfill embeds every stored memory that has no embedding yet, outside
// the job schedule.
func (a *App) Backfill(ctx context.Context) (backfill.Result, error) {
	if a.embedder == nil {
		return backfill.Result{}, ErrNoEmbedder
	}
	job := backfill.New(a.Store, a.embedder, backfill.Options{
		BatchSize: a.Config().Backfill.BatchSize,
		Timeout:   a.Config().Retrieval.EmbedTimeout,
		Logger:    a.Logger,
	})
	return job.Backfill(ctx)
}

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config { return a.cfg.Load() }

// Selector returns the retrieval entry point. It follows configuration
// reloads.
func (a *App) Selector() retrieval.Selector { return a.selector }

// Scheduler returns the job scheduler.
func (a *App) Scheduler() *cron.Scheduler { return a.scheduler }

// Close stops every loaded module and releases the executor and tracer.
// It is safe to call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.core != nil {
		a.core.Close()
	}
	if a.executor != nil {
		if err := a.executor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: tracing shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// liveSelector forwards to the current orchestrator, which reloads swap.
type liveSelector struct {
	cur atomic.Pointer[retrieval.Orchestrator]
}

var _ retrieval.Selector = (*liveSelector)(nil)

func (s *liveSelector) Select(ctx context.Context, rc retrieval.Context, candidates []*memory.Event) (retrieval.Result, error) {
	return s.cur.Load().Select(ctx, rc, candidates)
}

func (s *liveSelector) swap(o *retrieval.Orchestrator) { s.cur.Store(o) }
