package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name string, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, "config.json", `{
	  "telegram": {"allowed_groups": [-1001, -1002], "allow_dms": false},
	  "classifier": {"local": {"model": "qwen2.5:3b"}},
	  "agent": {"provider": "opencode", "model": "openai/gpt-5.2"},
	  "gateway": {"host": "0.0.0.0", "port": 8080},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`)
	t.Setenv("VALOR_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" || !cfg.Logging.AddSource {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if len(cfg.Telegram.AllowedGroups) != 2 || cfg.Telegram.AllowedGroups[1] != -1002 {
		t.Fatalf("allowed_groups = %v", cfg.Telegram.AllowedGroups)
	}
	if cfg.Telegram.AllowDMs {
		t.Fatal("allow_dms = true, want false")
	}
	if cfg.Classifier.Local.Model != "qwen2.5:3b" {
		t.Fatalf("classifier.local.model = %q", cfg.Classifier.Local.Model)
	}
	if cfg.Classifier.Local.URL != "http://localhost:11434" {
		t.Fatalf("classifier.local.url default = %q", cfg.Classifier.Local.URL)
	}
	if cfg.Agent.Provider != "opencode" || cfg.Gateway.Port != 8080 {
		t.Fatalf("agent/gateway = %+v %+v", cfg.Agent, cfg.Gateway)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", "history:\n  backend: postgres\n  max_context_messages: 4\n")
	t.Setenv("VALOR_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.History.Backend != "postgres" || cfg.History.MaxContextMessages != 4 {
		t.Fatalf("history = %+v", cfg.History)
	}
	if cfg.History.AlwaysIncludeLast != 3 {
		t.Fatalf("always_include_last default = %d, want 3", cfg.History.AlwaysIncludeLast)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("VALOR_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VALOR_CONFIG", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if !cfg.Telegram.AllowDMs || cfg.Gateway.Workers != 4 || cfg.Reactions.MaxTracked != 1000 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": "from-file"}}`)
	t.Setenv("VALOR_CONFIG", path)
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("TELEGRAM_ALLOWED_GROUPS", " -100, -200 ,")
	t.Setenv("TELEGRAM_ALLOW_DMS", "false")
	t.Setenv("TELEGRAM_ALLOW_FROM", "alice, 42")
	t.Setenv("DATABASE_URL", "postgres://localhost/valor")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AllowedGroups) != 2 || cfg.Telegram.AllowedGroups[0] != -100 {
		t.Fatalf("allowed groups = %v", cfg.Telegram.AllowedGroups)
	}
	if cfg.Telegram.AllowDMs {
		t.Fatal("allow dms override ignored")
	}
	if len(cfg.Telegram.AllowFrom) != 2 || cfg.Telegram.AllowFrom[1] != "42" {
		t.Fatalf("allow from = %v", cfg.Telegram.AllowFrom)
	}
	if cfg.History.Backend != "postgres" {
		t.Fatalf("history backend = %q, want postgres", cfg.History.Backend)
	}
}

func TestEnvOverrideRejectsBadChatID(t *testing.T) {
	t.Setenv("VALOR_CONFIG", writeConfig(t, "config.json", `{}`))
	t.Setenv("TELEGRAM_ALLOWED_GROUPS", "-100,general")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}

func TestAPIKeyFallsBackToOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-default")
	t.Setenv("CUSTOM_KEY", "")

	if got := APIKey("CUSTOM_KEY"); got != "sk-default" {
		t.Fatalf("APIKey = %q, want sk-default", got)
	}

	t.Setenv("CUSTOM_KEY", "sk-custom")
	if got := APIKey("CUSTOM_KEY"); got != "sk-custom" {
		t.Fatalf("APIKey = %q, want sk-custom", got)
	}
}
