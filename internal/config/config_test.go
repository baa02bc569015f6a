package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SUPPORT_CONFIG_FILE", "PORT", "SUPPORT_BACKEND_URL", "SUPPORT_BACKEND_TIMEOUT",
		"SUPPORT_CHOICE_START", "SUPPORT_CHOICE_END", "SUPPORT_CHOICE_DELIMITER",
		"REDIS_URL", "SUPPORT_SESSION_CACHE_TTL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" || cfg.Backend.Timeout != 30*time.Second {
		t.Fatalf("unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Cache.Enabled() {
		t.Fatal("cache must be disabled without REDIS_URL")
	}
	if cfg.Protocol.StartMarker != "" {
		t.Fatalf("protocol overrides must be empty by default: %+v", cfg.Protocol)
	}
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("SUPPORT_BACKEND_URL", "http://support.internal:8000/")
	t.Setenv("SUPPORT_BACKEND_TIMEOUT", "5")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("SUPPORT_CHOICE_DELIMITER", ";")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Backend.BaseURL != "http://support.internal:8000" || cfg.Backend.Timeout != 5*time.Second {
		t.Fatalf("unexpected backend config: %+v", cfg.Backend)
	}
	if !cfg.Cache.Enabled() || cfg.Protocol.FieldDelimiter != ";" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPPORT_BACKEND_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric timeout")
	}

	t.Setenv("SUPPORT_BACKEND_TIMEOUT", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero timeout")
	}

	t.Setenv("SUPPORT_BACKEND_TIMEOUT", "")
	t.Setenv("PORT", "80 80")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestLoadFileWithEnvironmentOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "support.yaml")
	content := []byte(`port: "9090"
backend:
  url: http://from-file:8000
  timeout_seconds: 12
protocol:
  start_marker: "[[CHOICES]]"
  end_marker: "[[/CHOICES]]"
cache:
  redis_url: redis://cache:6379
  ttl_seconds: 90
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SUPPORT_CONFIG_FILE", path)
	t.Setenv("SUPPORT_BACKEND_URL", "http://from-env:8000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Backend.BaseURL != "http://from-env:8000" {
		t.Fatalf("environment must override file: %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 12*time.Second || cfg.Cache.TTL != 90*time.Second {
		t.Fatalf("unexpected durations: %+v %+v", cfg.Backend, cfg.Cache)
	}
	if cfg.Protocol.StartMarker != "[[CHOICES]]" || cfg.Protocol.EndMarker != "[[/CHOICES]]" {
		t.Fatalf("unexpected protocol: %+v", cfg.Protocol)
	}
	if cfg.Cache.RedisURL != "redis://cache:6379" {
		t.Fatalf("unexpected cache url: %s", cfg.Cache.RedisURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPPORT_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
