package reload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vadash/openvault-sub001/internal/config"
)

// ---------------------------------------------------------------------------
// Watcher
// ---------------------------------------------------------------------------

func startWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w := NewWatcher(WatcherConfig{ConfigPath: path, PollInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	w.Start(ctx)
	// Let the watcher record the initial state.
	time.Sleep(60 * time.Millisecond)
	return w
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "openvault.yaml")
	if err := os.WriteFile(path, []byte("initial"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, path)

	later := time.Now().Add(time.Second)
	if err := os.WriteFile(path, []byte("modified"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = os.Chtimes(path, later, later)

	select {
	case evt := <-w.Events():
		if evt.Type != EventModified || evt.ConfigPath != path {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestWatcher_IgnoresTouch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "openvault.yaml")
	if err := os.WriteFile(path, []byte("same"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, path)

	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-w.Events():
		t.Fatalf("unexpected event %+v for unchanged content", evt)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_MissingFileThenCreated(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "openvault.yaml")
	w := startWatcher(t, path)

	if err := os.WriteFile(path, []byte("created"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The first version seen is the baseline, not a change.
	select {
	case evt := <-w.Events():
		t.Fatalf("unexpected event %+v", evt)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_StopBeforeStart(t *testing.T) {
	t.Parallel()

	w := NewWatcher(WatcherConfig{ConfigPath: "unused"})
	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}
}

func TestWatcherConfig_PollIntervalDefault(t *testing.T) {
	t.Parallel()

	if got := (WatcherConfig{}).pollIntervalOrDefault(); got != defaultPollInterval {
		t.Errorf("interval = %v, want %v", got, defaultPollInterval)
	}
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openvault.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHandler_HandleReload(t *testing.T) {
	t.Parallel()

	applyErr := errors.New("boom")
	tests := []struct {
		name      string
		content   string
		applyErr  error
		wantErr   bool
		wantApply bool
	}{
		{"valid", "version: \"1\"\nretrieval:\n  stage1_budget: 640\n", nil, false, true},
		{"invalid", "version: \"9\"\n", nil, true, false},
		{"apply fails", "version: \"1\"\n", applyErr, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got *config.Config
			h := NewHandler(ApplierFunc(func(_ context.Context, cfg *config.Config) error {
				got = cfg
				return tt.applyErr
			}), slog.New(slog.DiscardHandler))

			err := h.HandleReload(context.Background(), writeConfig(t, tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (got != nil) != tt.wantApply {
				t.Fatalf("applied = %v, want %v", got != nil, tt.wantApply)
			}
			if tt.applyErr != nil && !errors.Is(err, tt.applyErr) {
				t.Errorf("err = %v, want wrapping %v", err, tt.applyErr)
			}
			if tt.name == "valid" && got.Retrieval.Stage1Budget != 640 {
				t.Errorf("stage1 budget = %d", got.Retrieval.Stage1Budget)
			}
		})
	}
}

func TestHandler_MissingFile(t *testing.T) {
	t.Parallel()

	h := NewHandler(ApplierFunc(func(context.Context, *config.Config) error {
		t.Error("applier must not run")
		return nil
	}), nil)
	if err := h.HandleReload(context.Background(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHandler_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := NewHandler(ApplierFunc(func(context.Context, *config.Config) error {
		t.Error("applier must not run")
		return nil
	}), nil)
	if err := h.HandleReload(ctx, writeConfig(t, "version: \"1\"\n")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
