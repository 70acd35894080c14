package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/voxclient/internal/config"
)

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func TestWatcher(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "voxclient.yaml")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	writeFile(t, path, "log:\n  level: info\n", t0)

	var calls []config.ConfigDiff
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		calls = append(calls, config.Diff(old, new))
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Current().Log.Level != config.LogInfo {
		t.Fatalf("initial level = %q", w.Current().Log.Level)
	}

	t.Run("unchanged mtime is skipped", func(t *testing.T) {
		w.Check()
		if len(calls) != 0 {
			t.Fatalf("onChange called %d times", len(calls))
		}
	})

	t.Run("touch without edit", func(t *testing.T) {
		writeFile(t, path, "log:\n  level: info\n", t0.Add(time.Second))
		w.Check()
		if len(calls) != 0 {
			t.Fatalf("onChange called %d times", len(calls))
		}
	})

	t.Run("edit is reported", func(t *testing.T) {
		writeFile(t, path, "log:\n  level: debug\n", t0.Add(2*time.Second))
		w.Check()
		if len(calls) != 1 {
			t.Fatalf("onChange called %d times, want 1", len(calls))
		}
		if !calls[0].LogLevelChanged || calls[0].NewLogLevel != config.LogDebug {
			t.Errorf("diff = %+v", calls[0])
		}
		if w.Current().Log.Level != config.LogDebug {
			t.Errorf("Current level = %q", w.Current().Log.Level)
		}
	})

	t.Run("invalid edit keeps previous config", func(t *testing.T) {
		writeFile(t, path, "log:\n  level: bananas\n", t0.Add(3*time.Second))
		w.Check()
		if len(calls) != 1 {
			t.Fatalf("onChange called %d times, want 1", len(calls))
		}
		if w.Current().Log.Level != config.LogDebug {
			t.Errorf("Current level = %q", w.Current().Log.Level)
		}
	})
}

func TestNewWatcher_InvalidInitial(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "nonsense: true\n", time.Now())
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}
