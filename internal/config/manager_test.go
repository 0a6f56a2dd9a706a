package config

import (
	"os"
	"path/filepath"
	"testing"

	logx "rhythm/pkg/logx"
)

func writeConfig(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestManagerLoadAndReload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rhythm.yml")
	writeConfig(t, path, "log:\n  level: info\n")

	m := NewManager(path, logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("Level = %q", cfg.Log.Level)
	}
	if m.Get() != cfg {
		t.Fatal("Get does not return the committed config")
	}

	writeConfig(t, path, "log:\n  level: debug\n")
	m.reload()

	select {
	case got := <-m.Updates():
		if got.Log.Level != "debug" {
			t.Fatalf("updated Level = %q, want debug", got.Log.Level)
		}
	default:
		t.Fatal("no update published after reload")
	}
}

func TestManagerReloadSkipsUnchangedContent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rhythm.yml")
	writeConfig(t, path, "log:\n  level: info\n")

	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	m.reload() // same bytes: no publish
	select {
	case <-m.Updates():
		t.Fatal("update published for unchanged content")
	default:
	}
}

func TestManagerReloadKeepsPreviousOnError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rhythm.yml")
	writeConfig(t, path, "log:\n  level: info\n")

	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	writeConfig(t, path, "jobs:\n  - name: broken\n") // fails validation
	m.reload()

	select {
	case <-m.Updates():
		t.Fatal("broken config was published")
	default:
	}
	if got := m.Get().Log.Level; got != "info" {
		t.Fatalf("previous config lost: level = %q", got)
	}
}
