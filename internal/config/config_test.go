package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Backend != "auto" {
		t.Fatalf("default backend = %q, want auto", cfg.Backend)
	}
	if cfg.Capture.FPS != 30 || cfg.Server.Port != 8080 {
		t.Fatalf("defaults = %+v", cfg)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
}

func TestManagerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	m.SetBackend("sim")
	m.SetPort(9090)
	m.SetLogLevel("debug")
	if err := m.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	cfg := reloaded.Get()
	if cfg.Backend != "sim" || cfg.Server.Port != 9090 || cfg.LogLevel != "debug" {
		t.Fatalf("reloaded config = %+v", cfg)
	}
}

func TestManagerRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path); err == nil {
		t.Fatal("NewManager accepted malformed YAML")
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend: x11\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	cfg := m.Get()
	if cfg.Backend != "x11" {
		t.Fatalf("backend = %q, want x11", cfg.Backend)
	}
	// Unspecified fields fall back to defaults, not zero values.
	if cfg.Capture.FPS != 30 || cfg.Server.JPEGQuality != 90 {
		t.Fatalf("partial config lost defaults: %+v", cfg)
	}
}
