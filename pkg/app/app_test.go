package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vadash/openvault-sub001/internal/backfill"
	"github.com/vadash/openvault-sub001/internal/config"
	"github.com/vadash/openvault-sub001/internal/memory"
	"github.com/vadash/openvault-sub001/internal/retrieval"
	_ "github.com/vadash/openvault-sub001/modules/memory/sqlite"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func parseConfig(t *testing.T, raw string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, Options{DataDir: t.TempDir(), LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func seed(t *testing.T, store memory.Store) {
	t.Helper()
	for _, ev := range []*memory.Event{
		{ID: "a", Summary: "Alice found the silver key in the cellar", Importance: 5, MessageIDs: []int{9}},
		{ID: "b", Summary: "Bob talked about the harvest", Importance: 2, MessageIDs: []int{3}},
	} {
		if err := store.Put(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
}

func gathered(t *testing.T, a *App) []string {
	t.Helper()
	mfs, err := a.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(mfs))
	for i, mf := range mfs {
		names[i] = mf.GetName()
	}
	return names
}

// ---------------------------------------------------------------------------
// Wiring
// ---------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	a := newApp(t, config.Default())
	if _, ok := a.Store.(*memory.InMemoryStore); !ok {
		t.Fatalf("store = %T, want in-memory", a.Store)
	}
	if a.executor == nil {
		t.Error("executor should be enabled by default")
	}
	seed(t, a.Store)

	events, _ := a.Store.List(context.Background())
	res, err := a.Selector().Select(context.Background(), retrieval.Context{
		UserText:     "silver key",
		ChatLength:   10,
		Stage1Budget: 1000,
		Stage2Budget: 1000,
	}, events)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Memories) != 2 || res.Memories[0].ID != "a" {
		t.Errorf("memories = %v", res.Memories)
	}

	names := gathered(t, a)
	for _, want := range []string{"openvault_memories", "openvault_executor_calls_total", "openvault_retrievals_total"} {
		if !slices.Contains(names, want) {
			t.Errorf("registry missing %s", want)
		}
	}
}

func TestNew_EmbedderCacheAndBackfill(t *testing.T) {
	t.Parallel()

	a := newApp(t, parseConfig(t, `
version: "1"
retrieval:
  executor: false
  embedding:
    provider: embedding.hash
    cache_size: 8
backfill:
  schedule: "@hourly"
modules:
  embedding.hash:
    dimensions: 64
`))
	if a.executor != nil {
		t.Error("executor should be disabled")
	}
	seed(t, a.Store)

	if err := a.Scheduler().Trigger(context.Background(), backfill.JobName); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	missing, _ := a.Store.MissingEmbeddings(context.Background(), 0)
	if len(missing) != 0 {
		t.Errorf("%d memories still missing embeddings", len(missing))
	}

	events, _ := a.Store.List(context.Background())
	res, err := a.Selector().Select(context.Background(), retrieval.Context{
		RecentMessages: []string{"Where did I leave the silver key? Maybe the cellar."},
		UserText:       "silver key cellar",
		ChatLength:     10,
		Stage1Budget:   1000,
		Stage2Budget:   1000,
	}, events)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Query.Embedded || res.Scored[0].Breakdown.VectorSimilarity <= 0 {
		t.Errorf("query embedded = %v, top similarity = %v", res.Query.Embedded, res.Scored[0].Breakdown.VectorSimilarity)
	}
	if !slices.Contains(gathered(t, a), "openvault_embedding_cache_misses_total") {
		t.Error("cache metrics not registered")
	}
}

func TestNew_SQLiteStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vault.db")
	a := newApp(t, parseConfig(t, `
version: "1"
retrieval:
  store: memory.sqlite
modules:
  memory.sqlite:
    path: `+path+`
`))
	if _, ok := a.Store.(*memory.InMemoryStore); ok {
		t.Fatal("store should be sqlite")
	}
	seed(t, a.Store)
	if a.Store.Len() != 2 {
		t.Errorf("len = %d", a.Store.Len())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file: %v", err)
	}
}

func TestNew_MissingModule(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Retrieval.Embedding.Provider = "embedding.hash"
	if _, err := New(context.Background(), cfg, Options{DataDir: t.TempDir(), LogOutput: io.Discard}); err == nil {
		t.Error("expected error for an embedding provider that is not loaded")
	}
}

func TestNew_InvalidLogSettings(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Log.Format = "xml"
	if _, err := New(context.Background(), cfg, Options{LogOutput: io.Discard}); err == nil {
		t.Error("expected error for unknown log format")
	}
}

// ---------------------------------------------------------------------------
// Reload
// ---------------------------------------------------------------------------

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	a := newApp(t, config.Default())
	before := a.selector.cur.Load()

	next := config.Default()
	next.Retrieval.Constants.BaseLambda = 0.2
	next.Retrieval.Stage1Budget = 42
	next.Retrieval.Executor = false
	next.Retrieval.Embedding.Provider = "embedding.hash"

	if err := a.ApplyConfig(context.Background(), next); err != nil {
		t.Fatal(err)
	}
	got := a.Config().Retrieval
	if got.Constants.BaseLambda != 0.2 || got.Stage1Budget != 42 {
		t.Errorf("tuning not applied: %+v", got)
	}
	if !got.Executor || got.Embedding.Provider != "" {
		t.Errorf("startup-only settings changed: executor=%v embedding=%q", got.Executor, got.Embedding.Provider)
	}
	if a.selector.cur.Load() == before {
		t.Error("orchestrator was not replaced")
	}
}

func TestRestartKeys(t *testing.T) {
	t.Parallel()

	base := config.Default()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{"tuning only", func(c *config.Config) { c.Retrieval.Smart = true; c.Retrieval.Stage2Budget = 1 }, nil},
		{"embedding", func(c *config.Config) { c.Retrieval.Embedding.CacheSize = 1 }, []string{"retrieval.embedding"}},
		{"log and backfill", func(c *config.Config) { c.Log.Level = "debug"; c.Backfill.BatchSize = 1 }, []string{"log", "backfill"}},
		{"modules", func(c *config.Config) { c.Modules = map[string]yaml.Node{"embedding.hash": {}} }, []string{"modules"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			next := config.Default()
			tt.mutate(next)
			if got := restartKeys(base, next); !slices.Equal(got, tt.want) {
				t.Errorf("restartKeys = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	a := newApp(t, config.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// ---------------------------------------------------------------------------
// Secrets and paths
// ---------------------------------------------------------------------------

func TestModuleSecrets(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(`
version: "1"
modules:
  gateway.http:
    auth:
      bearer_token: gw-token-123
      basic_user: admin
  embedding.hash:
    dimensions: 32
`))
	if err != nil {
		t.Fatal(err)
	}
	got := moduleSecrets(cfg.Modules)
	if !slices.Equal(got, []string{"gw-token-123"}) {
		t.Errorf("secrets = %v", got)
	}
}

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "openvault")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(cfgDir, "openvault.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	if _, err := ResolveConfigPath(); err == nil || !strings.Contains(err.Error(), "openvault.yaml") {
		t.Errorf("err = %v", err)
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/openvault" {
		t.Errorf("got %q", got)
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("version: \"2\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "absent.yaml"), bad} {
		if _, err := Open(context.Background(), Options{ConfigPath: path, LogOutput: io.Discard}); err == nil {
			t.Errorf("Open(%s) should fail", path)
		}
	}
}

func TestBackfill(t *testing.T) {
	t.Parallel()

	a := newApp(t, config.Default())
	if _, err := a.Backfill(context.Background()); !errors.Is(err, ErrNoEmbedder) {
		t.Errorf("err = %v, want ErrNoEmbedder", err)
	}

	b := newApp(t, parseConfig(t, `
version: "1"
retrieval:
  embedding:
    provider: embedding.hash
modules:
  embedding.hash: {}
`))
	seed(t, b.Store)
	res, err := b.Backfill(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Attached != 2 {
		t.Errorf("attached = %d, want 2", res.Attached)
	}
}
