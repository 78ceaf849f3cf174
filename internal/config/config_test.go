package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Providers.Gemini.DefaultModel != "gemini-2.5-pro" {
		t.Errorf("expected default gemini model gemini-2.5-pro, got %s", cfg.Providers.Gemini.DefaultModel)
	}
	if cfg.Providers.OpenAI.DefaultModel != "gpt-4o-mini" {
		t.Errorf("expected default openai model gpt-4o-mini, got %s", cfg.Providers.OpenAI.DefaultModel)
	}
	if cfg.Providers.Gemini.RetryMaxDelay != 5*time.Second {
		t.Errorf("expected gemini retry max delay 5s, got %v", cfg.Providers.Gemini.RetryMaxDelay)
	}
	if cfg.Worker.TaskTimeout != 45*time.Second {
		t.Errorf("expected task timeout 45s, got %v", cfg.Worker.TaskTimeout)
	}
	if cfg.Worker.RetryAttempts != 3 {
		t.Errorf("expected worker retry attempts 3, got %d", cfg.Worker.RetryAttempts)
	}
	if cfg.Worker.RetryDelay != 500*time.Millisecond {
		t.Errorf("expected worker retry delay 500ms, got %v", cfg.Worker.RetryDelay)
	}
	if cfg.NATS.Port != 4222 {
		t.Errorf("expected nats port 4222, got %d", cfg.NATS.Port)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected web port 8080, got %d", cfg.Web.Port)
	}
	if !cfg.Web.Enabled {
		t.Error("expected web enabled by default")
	}
	if cfg.Store.Path != "data/lexgate.db" {
		t.Errorf("expected store path data/lexgate.db, got %s", cfg.Store.Path)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	// Point config to a non-existent file so we use defaults
	t.Setenv("LEXGATE_CONFIG", "/nonexistent/config.yaml")
	t.Setenv("OPENAI_API_KEY", "sk-test-key")
	t.Setenv("GEMINI_API_KEY", "AIza-test-key")
	t.Setenv("LEXGATE_WEB_PASSWORD", "secret")
	t.Setenv("LEXGATE_WEB_PORT", "9090")
	t.Setenv("LEXGATE_STORE_PATH", "/tmp/other.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Providers.OpenAI.APIKey != "sk-test-key" {
		t.Errorf("expected openai key sk-test-key, got %s", cfg.Providers.OpenAI.APIKey)
	}
	if cfg.Providers.Gemini.APIKey != "AIza-test-key" {
		t.Errorf("expected gemini key AIza-test-key, got %s", cfg.Providers.Gemini.APIKey)
	}
	if cfg.Web.Auth != "secret" {
		t.Errorf("expected web auth secret, got %s", cfg.Web.Auth)
	}
	if cfg.Web.Port != 9090 {
		t.Errorf("expected web port 9090, got %d", cfg.Web.Port)
	}
	if cfg.Store.Path != "/tmp/other.db" {
		t.Errorf("expected store path /tmp/other.db, got %s", cfg.Store.Path)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
providers:
  gemini:
    api_key: "yaml-gemini-key"
    default_model: "gemini-2.0-flash"
worker:
  poll_interval: 2s
  retry_attempts: 5
web:
  port: 3000
  enabled: false
scheduler:
  cron_expr: "*/10 * * * *"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LEXGATE_CONFIG", cfgPath)
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Providers.Gemini.APIKey != "yaml-gemini-key" {
		t.Errorf("expected gemini key from yaml, got %s", cfg.Providers.Gemini.APIKey)
	}
	if cfg.Providers.Gemini.DefaultModel != "gemini-2.0-flash" {
		t.Errorf("expected gemini model gemini-2.0-flash, got %s", cfg.Providers.Gemini.DefaultModel)
	}
	if cfg.Worker.PollInterval != 2*time.Second {
		t.Errorf("expected poll interval 2s, got %v", cfg.Worker.PollInterval)
	}
	if cfg.Worker.RetryAttempts != 5 {
		t.Errorf("expected retry attempts 5, got %d", cfg.Worker.RetryAttempts)
	}
	if cfg.Web.Port != 3000 {
		t.Errorf("expected web port 3000, got %d", cfg.Web.Port)
	}
	if cfg.Web.Enabled {
		t.Error("expected web disabled")
	}
	if cfg.Scheduler.CronExpr != "*/10 * * * *" {
		t.Errorf("expected cron expr */10 * * * *, got %s", cfg.Scheduler.CronExpr)
	}

	// Defaults survive a partial file
	if cfg.NATS.Port != 4222 {
		t.Errorf("expected default nats port, got %d", cfg.NATS.Port)
	}
}

func TestLoadExpandsEnvInYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
providers:
  openai:
    api_key: "${TEST_OPENAI_KEY}"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LEXGATE_CONFIG", cfgPath)
	t.Setenv("TEST_OPENAI_KEY", "sk-expanded")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-expanded" {
		t.Errorf("expected expanded key sk-expanded, got %s", cfg.Providers.OpenAI.APIKey)
	}
}
