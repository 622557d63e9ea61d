package core

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// stagedModule records which load stages ran and can fail any of them.
type stagedModule struct {
	id    ModuleID
	calls *[]string
	fail  string

	dims    int
	dataDir string
}

func (m *stagedModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module {
		return &stagedModule{id: m.id, calls: m.calls, fail: m.fail}
	}}
}

func (m *stagedModule) step(name string) error {
	*m.calls = append(*m.calls, name)
	if m.fail == name {
		return errors.New(name + " boom")
	}
	return nil
}

func (m *stagedModule) Configure(node *yaml.Node) error {
	if err := m.step("configure"); err != nil {
		return err
	}
	var cfg struct {
		Dimensions int `yaml:"dimensions"`
	}
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	m.dims = cfg.Dimensions
	return nil
}

func (m *stagedModule) Provision(ctx *AppContext) error {
	m.dataDir = ctx.DataDir
	ctx.Logger.Info("provisioned")
	return m.step("provision")
}

func (m *stagedModule) Validate() error {
	if err := m.step("validate"); err != nil {
		return err
	}
	if m.dims < 0 {
		return errors.New("dimensions must not be negative")
	}
	return nil
}

func moduleNode(t *testing.T, raw string) yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatal(err)
	}
	return *doc.Content[0]
}

// ---------------------------------------------------------------------------
// LoadModule
// ---------------------------------------------------------------------------

func TestAppContext_LoadModule(t *testing.T) {
	t.Cleanup(resetRegistry)

	tests := []struct {
		name      string
		raw       string // empty means no modules entry
		fail      string
		wantCalls []string
		wantErr   string
	}{
		{"with config", "dimensions: 64", "", []string{"configure", "provision", "validate"}, ""},
		{"without config skips configure", "", "", []string{"provision", "validate"}, ""},
		{"configure error stops early", "dimensions: 64", "configure", []string{"configure"}, "configuring module"},
		{"provision error", "", "provision", []string{"provision"}, "provisioning module"},
		{"validate error", "", "validate", []string{"provision", "validate"}, "validating module"},
		{"invalid values rejected", "dimensions: -1", "", []string{"configure", "provision", "validate"}, "validating module"},
		{"undecodable config", "dimensions: [1]", "", []string{"configure"}, "configuring module"},
	}
	for i, tt := range tests {
		var calls []string
		id := ModuleID("embedding.staged" + string(rune('a'+i)))
		RegisterModule(&stagedModule{id: id, calls: &calls, fail: tt.fail})

		ctx := NewAppContext(slog.New(slog.DiscardHandler), "/var/lib/openvault", nil)
		if tt.raw != "" {
			ctx = ctx.WithModuleConfigs(map[string]yaml.Node{string(id): moduleNode(t, tt.raw)})
		}

		mod, err := ctx.LoadModule(string(id))
		if !slices.Equal(calls, tt.wantCalls) {
			t.Errorf("%s: calls = %v, want %v", tt.name, calls, tt.wantCalls)
		}
		if tt.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("%s: err = %v, want %q", tt.name, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		sm := mod.(*stagedModule)
		if tt.raw != "" && sm.dims != 64 {
			t.Errorf("%s: dims = %d, want 64", tt.name, sm.dims)
		}
		if sm.dataDir != "/var/lib/openvault" {
			t.Errorf("%s: dataDir = %q", tt.name, sm.dataDir)
		}
	}
}

func TestAppContext_LoadModule_UnknownID(t *testing.T) {
	t.Parallel()

	ctx := NewAppContext(nil, "", nil)
	if _, err := ctx.LoadModule("embedding.nope"); err == nil || !strings.Contains(err.Error(), "unknown module") {
		t.Errorf("err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Scoping
// ---------------------------------------------------------------------------

func TestAppContext_ForModule(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	ctx := NewAppContext(slog.New(slog.NewTextHandler(&buf, nil)), "/data", reg).
		WithModuleConfigs(map[string]yaml.Node{"memory.sqlite": moduleNode(t, "path: vault.db")})

	child := ctx.ForModule("memory.sqlite")
	grandchild := child.ForModule("gateway.http")
	grandchild.Logger.Info("ready")

	// Scoping replaces the module tag rather than nesting it.
	if out := buf.String(); !strings.Contains(out, "module=gateway.http") || strings.Contains(out, "memory.sqlite") {
		t.Errorf("log = %q", out)
	}
	if child.Metrics != prometheus.Registerer(reg) {
		t.Error("child should share the metrics registerer")
	}
	if _, ok := child.moduleConfigs["memory.sqlite"]; !ok {
		t.Error("child should keep module configs")
	}
	if ctx.Logger == child.Logger {
		t.Error("child logger should be distinct")
	}
}

func TestNewAppContext_Defaults(t *testing.T) {
	t.Parallel()

	ctx := NewAppContext(nil, "", nil)
	if ctx.Logger == nil || ctx.Metrics == nil {
		t.Fatal("expected default logger and registerer")
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "openvault_test_total"})
	if err := ctx.Metrics.Register(c); err != nil {
		t.Errorf("register on default registerer: %v", err)
	}
	if err := NewAppContext(nil, "", nil).Metrics.Register(c); err != nil {
		t.Error("each context should get its own registry")
	}
}
