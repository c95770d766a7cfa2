package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envConfigPath          = "VALOR_CONFIG"
	envTelegramBotToken    = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowGroups = "TELEGRAM_ALLOWED_GROUPS"
	envTelegramAllowDMs    = "TELEGRAM_ALLOW_DMS"
	envTelegramAllowFrom   = "TELEGRAM_ALLOW_FROM"
	envOllamaURL           = "OLLAMA_URL"
	envDatabaseURL         = "DATABASE_URL"
	envProjectsFile        = "VALOR_PROJECTS_FILE"
	envAgentProvider       = "VALOR_AGENT_PROVIDER"
	envAgentModel          = "VALOR_AGENT_MODEL"

	DefaultOpenAIKeyEnv = "OPENAI_API_KEY"
)

// Config is the root runtime configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Reactions  ReactionsConfig  `mapstructure:"reactions"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	History    HistoryConfig    `mapstructure:"history"`
	Projects   ProjectsConfig   `mapstructure:"projects"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `mapstructure:"format"`
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

// TelegramConfig configures the bot and its chat allow-lists.
type TelegramConfig struct {
	Token         string   `mapstructure:"token"`
	AllowedGroups []int64  `mapstructure:"allowed_groups"`
	AllowDMs      bool     `mapstructure:"allow_dms"`
	AllowFrom     []string `mapstructure:"allow_from"`
	PollTimeout   int      `mapstructure:"poll_timeout_seconds"`
}

// ClassifierConfig configures the local and remote intent models.
type ClassifierConfig struct {
	TierTimeoutSeconds int                    `mapstructure:"tier_timeout_seconds"`
	RetryDelayMillis   int                    `mapstructure:"retry_delay_ms"`
	Local              LocalClassifierConfig  `mapstructure:"local"`
	Remote             RemoteClassifierConfig `mapstructure:"remote"`
}

type LocalClassifierConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	URL                   string `mapstructure:"url"`
	Model                 string `mapstructure:"model"`
	Retries               int    `mapstructure:"retries"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

type RemoteClassifierConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	Model                 string `mapstructure:"model"`
	BaseURL               string `mapstructure:"base_url"`
	APIKeyEnv             string `mapstructure:"api_key_env"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// ReactionsConfig tunes the reaction sequencer.
type ReactionsConfig struct {
	MaxTracked           int     `mapstructure:"max_tracked"`
	SettleDelayMillis    int     `mapstructure:"settle_delay_ms"`
	PerChatRate          float64 `mapstructure:"per_chat_rate"`
	PerChatBurst         int     `mapstructure:"per_chat_burst"`
	SweepIntervalSeconds int     `mapstructure:"sweep_interval_seconds"`
}

// AgentConfig selects and tunes the conversational agent.
type AgentConfig struct {
	Provider          string  `mapstructure:"provider"`
	Model             string  `mapstructure:"model"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature"`
	MaxToolIterations int     `mapstructure:"max_tool_iterations"`
	IdentityFile      string  `mapstructure:"identity_file"`
	PersonalityFile   string  `mapstructure:"personality_file"`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	OpenCode OpenCodeProviderConfig `mapstructure:"opencode"`
	OpenAI   OpenAIProviderConfig   `mapstructure:"openai"`
}

// OpenCodeProviderConfig configures the OpenCode provider client.
type OpenCodeProviderConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	Username              string `mapstructure:"username"`
	PasswordEnv           string `mapstructure:"password_env"`
	Agent                 string `mapstructure:"agent"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	Organization          string `mapstructure:"organization"`
	Project               string `mapstructure:"project"`
	APIKeyEnv             string `mapstructure:"api_key_env"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// ToolsConfig configures agent tools.
type ToolsConfig struct {
	ImageDir            string `mapstructure:"image_dir"`
	ImageModel          string `mapstructure:"image_model"`
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds"`
	SearchURL           string `mapstructure:"search_url"`
}

// HistoryConfig selects the chat-history backend and excerpt bounds.
type HistoryConfig struct {
	Backend            string `mapstructure:"backend"`
	DatabaseURL        string `mapstructure:"database_url"`
	MemoryLimit        int    `mapstructure:"memory_limit"`
	MaxContextMessages int    `mapstructure:"max_context_messages"`
	MaxAgeHours        int    `mapstructure:"max_age_hours"`
	AlwaysIncludeLast  int    `mapstructure:"always_include_last"`
}

// ProjectsConfig points at the project status file.
type ProjectsConfig struct {
	File string `mapstructure:"file"`
}

// GatewayConfig configures the status server and worker pool.
type GatewayConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
}

// LoadConfig loads .env, the optional config file and environment overrides.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return loadFrom(configPath)
}

func loadFrom(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.level", "info")

	v.SetDefault("telegram.allow_dms", true)
	v.SetDefault("telegram.poll_timeout_seconds", 30)

	v.SetDefault("classifier.tier_timeout_seconds", 20)
	v.SetDefault("classifier.retry_delay_ms", 500)
	v.SetDefault("classifier.local.enabled", true)
	v.SetDefault("classifier.local.url", "http://localhost:11434")
	v.SetDefault("classifier.local.model", "gemma2:2b")
	v.SetDefault("classifier.local.retries", 2)
	v.SetDefault("classifier.local.request_timeout_seconds", 10)
	v.SetDefault("classifier.remote.enabled", true)
	v.SetDefault("classifier.remote.model", "gpt-4o-mini")
	v.SetDefault("classifier.remote.api_key_env", DefaultOpenAIKeyEnv)
	v.SetDefault("classifier.remote.request_timeout_seconds", 15)

	v.SetDefault("reactions.max_tracked", 1000)
	v.SetDefault("reactions.settle_delay_ms", 500)
	v.SetDefault("reactions.per_chat_rate", 1.0)
	v.SetDefault("reactions.per_chat_burst", 3)
	v.SetDefault("reactions.sweep_interval_seconds", 60)

	v.SetDefault("agent.provider", "fantasy")
	v.SetDefault("agent.model", "openai/gpt-4o")
	v.SetDefault("agent.max_tool_iterations", 8)

	v.SetDefault("providers.openai.api_key_env", DefaultOpenAIKeyEnv)
	v.SetDefault("providers.openai.request_timeout_seconds", 120)
	v.SetDefault("providers.opencode.base_url", "http://127.0.0.1:4096")
	v.SetDefault("providers.opencode.request_timeout_seconds", 300)

	v.SetDefault("tools.image_dir", filepath.Join(os.TempDir(), "valorbot-images"))
	v.SetDefault("tools.image_model", "dall-e-3")
	v.SetDefault("tools.fetch_timeout_seconds", 15)
	v.SetDefault("tools.search_url", "https://html.duckduckgo.com/html/")

	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.memory_limit", 500)
	v.SetDefault("history.max_context_messages", 10)
	v.SetDefault("history.max_age_hours", 24)
	v.SetDefault("history.always_include_last", 3)

	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.port", 18790)
	v.SetDefault("gateway.workers", 4)
	v.SetDefault("gateway.queue_size", 100)
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Telegram.Token = token
	}
	if raw := strings.TrimSpace(os.Getenv(envTelegramAllowGroups)); raw != "" {
		groups, err := parseChatIDs(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", envTelegramAllowGroups, err)
		}
		cfg.Telegram.AllowedGroups = groups
	}
	if raw := strings.TrimSpace(os.Getenv(envTelegramAllowDMs)); raw != "" {
		allow, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", envTelegramAllowDMs, err)
		}
		cfg.Telegram.AllowDMs = allow
	}
	if raw := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); raw != "" {
		cfg.Telegram.AllowFrom = parseCSV(raw)
	}
	if url := strings.TrimSpace(os.Getenv(envOllamaURL)); url != "" {
		cfg.Classifier.Local.URL = url
	}
	if url := strings.TrimSpace(os.Getenv(envDatabaseURL)); url != "" {
		cfg.History.DatabaseURL = url
		cfg.History.Backend = "postgres"
	}
	if file := strings.TrimSpace(os.Getenv(envProjectsFile)); file != "" {
		cfg.Projects.File = file
	}
	if provider := strings.TrimSpace(os.Getenv(envAgentProvider)); provider != "" {
		cfg.Agent.Provider = provider
	}
	if model := strings.TrimSpace(os.Getenv(envAgentModel)); model != "" {
		cfg.Agent.Model = model
	}

	return nil
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

func parseChatIDs(input string) ([]int64, error) {
	var ids []int64
	for _, part := range parseCSV(input) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// APIKey resolves an API key from the named env var, falling back to OPENAI_API_KEY.
func APIKey(envName string) string {
	if envName = strings.TrimSpace(envName); envName != "" {
		if key := strings.TrimSpace(os.Getenv(envName)); key != "" {
			return key
		}
	}

	return strings.TrimSpace(os.Getenv(DefaultOpenAIKeyEnv))
}

// findConfigPath resolves the active config file location. An empty path
// means no file was found and defaults plus environment apply.
//
// Precedence is VALOR_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config.yaml"),
		filepath.Join(cwd, "config", "config.json"),
		filepath.Join(cwd, "config", "config.yaml"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
