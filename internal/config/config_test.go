package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if len(cfg.Server.CORS.AllowedOrigins) != 1 {
		t.Errorf("Server.CORS.AllowedOrigins = %v, want 1 entry", cfg.Server.CORS.AllowedOrigins)
	}
	// Untouched nested defaults survive.
	if cfg.Server.CORS.MaxAge != 86400 {
		t.Errorf("Server.CORS.MaxAge = %d, want default 86400", cfg.Server.CORS.MaxAge)
	}
	if cfg.API.BaseURL != "https://characters.internal/api/" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("API.Timeout = %v, want 5s", cfg.API.Timeout)
	}
	if cfg.API.CircuitBreaker.FailureThreshold != 4 {
		t.Errorf("API.CircuitBreaker.FailureThreshold = %d, want 4", cfg.API.CircuitBreaker.FailureThreshold)
	}
	if cfg.API.Retry.MaxAttempts != 2 {
		t.Errorf("API.Retry.MaxAttempts = %d, want 2", cfg.API.Retry.MaxAttempts)
	}
	if cfg.API.Retry.BackoffMultiplier != 2 {
		t.Errorf("API.Retry.BackoffMultiplier = %v, want default 2", cfg.API.Retry.BackoffMultiplier)
	}
	if cfg.API.Cache.TTL != time.Minute {
		t.Errorf("API.Cache.TTL = %v, want 1m", cfg.API.Cache.TTL)
	}
	if cfg.Sessions.IdleTimeout != 2*time.Minute {
		t.Errorf("Sessions.IdleTimeout = %v, want 2m", cfg.Sessions.IdleTimeout)
	}
	if cfg.Sessions.MaxSessions != 50 {
		t.Errorf("Sessions.MaxSessions = %d, want 50", cfg.Sessions.MaxSessions)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("Observability.LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
	if !cfg.Observability.Tracing.Enabled || cfg.Observability.Tracing.Exporter != "stdout" {
		t.Errorf("Observability.Tracing = %+v", cfg.Observability.Tracing)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_malformed(t *testing.T) {
	_, err := Load("testdata/malformed.yaml")
	if err == nil {
		t.Fatal("Load() with malformed YAML should return error")
	}
	if !strings.Contains(err.Error(), "parsing") {
		t.Errorf("error = %v, want a parsing error", err)
	}
}

func TestLoad_invalid(t *testing.T) {
	_, err := Load("testdata/invalid_base_url.yaml")
	if err == nil {
		t.Fatal("Load() with invalid values should return error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "api.base_url") {
		t.Errorf("error = %q, want mention of api.base_url", msg)
	}
	if !strings.Contains(msg, "sessions.max_sessions") {
		t.Errorf("error = %q, want mention of sessions.max_sessions", msg)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv("CHARLIST_SERVER_PORT", "7070")
	t.Setenv("CHARLIST_API_BASE_URL", "http://localhost:9999/api/")
	t.Setenv("CHARLIST_API_TIMEOUT", "750ms")
	t.Setenv("CHARLIST_SESSIONS_IDLE_TIMEOUT", "30s")
	t.Setenv("CHARLIST_OBSERVABILITY_LOG_LEVEL", "warn")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.API.BaseURL != "http://localhost:9999/api/" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 750*time.Millisecond {
		t.Errorf("API.Timeout = %v, want 750ms", cfg.API.Timeout)
	}
	if cfg.Sessions.IdleTimeout != 30*time.Second {
		t.Errorf("Sessions.IdleTimeout = %v, want 30s", cfg.Sessions.IdleTimeout)
	}
	if cfg.Observability.LogLevel != "warn" {
		t.Errorf("Observability.LogLevel = %q, want warn", cfg.Observability.LogLevel)
	}
}

func TestLoadOrDefault_emptyPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.API.BaseURL != "https://rickandmortyapi.com/api/" {
		t.Errorf("default API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Cache.TTL != 5*time.Minute {
		t.Errorf("default API.Cache.TTL = %v, want 5m", cfg.API.Cache.TTL)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestValidate_port(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject port 70000")
	}
}
