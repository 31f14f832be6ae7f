package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.ListenAddr != "0.0.0.0:5540" {
		t.Errorf("Server.ListenAddr = %q, want 0.0.0.0:5540", cfg.Server.ListenAddr)
	}
	if cfg.Server.DefaultFPS != 25 {
		t.Errorf("Server.DefaultFPS = %d, want 25", cfg.Server.DefaultFPS)
	}
	if cfg.Client.JitterMs != 200 {
		t.Errorf("Client.JitterMs = %d, want 200", cfg.Client.JitterMs)
	}
	if cfg.Dashboard.Enabled {
		t.Error("Dashboard.Enabled default should be false")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.DefaultFPS != 25 {
		t.Errorf("Server.DefaultFPS = %d, want 25", cfg.Server.DefaultFPS)
	}
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[server]
listen_addr = "127.0.0.1:9000"
default_fps = 15

[client]
server_addr = "10.0.0.5:9000"
jitter_ms = 500

[dashboard]
enabled = true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("Server.ListenAddr = %q, want 127.0.0.1:9000", cfg.Server.ListenAddr)
	}
	if cfg.Server.DefaultFPS != 15 {
		t.Errorf("Server.DefaultFPS = %d, want 15", cfg.Server.DefaultFPS)
	}
	if cfg.Client.ServerAddr != "10.0.0.5:9000" {
		t.Errorf("Client.ServerAddr = %q, want 10.0.0.5:9000", cfg.Client.ServerAddr)
	}
	if cfg.Client.JitterMs != 500 {
		t.Errorf("Client.JitterMs = %d, want 500", cfg.Client.JitterMs)
	}
	if !cfg.Dashboard.Enabled {
		t.Error("Dashboard.Enabled = false, want true")
	}
	// Fields untouched by the file keep their defaults.
	if cfg.Client.FPS != 25 {
		t.Errorf("Client.FPS = %d, want default 25", cfg.Client.FPS)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	cfg := defaults()
	cfg.Server.ListenAddr = "0.0.0.0:7777"

	path := filepath.Join(t.TempDir(), "roundtrip.toml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Server.ListenAddr != "0.0.0.0:7777" {
		t.Errorf("ListenAddr = %q, want 0.0.0.0:7777", loaded.Server.ListenAddr)
	}
}

func TestLoggingConfigNewLogger(t *testing.T) {
	l := LoggingConfig{Level: "debug", Development: true}
	logger, err := l.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger returned nil logger")
	}
}

func TestLoggingConfigInvalidLevelFallsBackToInfo(t *testing.T) {
	l := LoggingConfig{Level: "not-a-level"}
	logger, err := l.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger returned nil logger")
	}
}
