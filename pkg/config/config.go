package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents the application configuration
type Config struct {
	Providers ProvidersConfig `json:"providers"`
	WebSearch WebSearchConfig `json:"web_search"`
	Storage   StorageConfig   `json:"storage"`
	Server    ServerConfig    `json:"server"`
	KeysFile  string          `json:"keys_file"`
	MaxSteps  int             `json:"max_steps"`
	LogLevel  string          `json:"log_level"`
	LogFormat string          `json:"log_format"`
	LogFile   string          `json:"log_file"`
}

// ProvidersConfig holds per-provider transport settings. API keys are not
// stored here; they come from the key store, keys file or environment.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `json:"openai"`
	Anthropic ProviderConfig `json:"anthropic"`
	Google    ProviderConfig `json:"google"`
	XAI       ProviderConfig `json:"xai"`
	Groq      ProviderConfig `json:"groq"`
}

// ProviderConfig holds the transport settings for one provider
type ProviderConfig struct {
	APIURL            string   `json:"api_url,omitempty"`
	APITimeoutSeconds int      `json:"api_timeout_seconds"`
	MaxTokens         int      `json:"max_tokens"`
	Temperature       *float64 `json:"temperature,omitempty"`
}

// WebSearchConfig configures the search backend behind the web_search tool
type WebSearchConfig struct {
	APIURL         string `json:"api_url"`
	APIKey         string `json:"api_key,omitempty"`
	MaxResults     int    `json:"max_results"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// StorageConfig selects where messages, keys and generation records live
type StorageConfig struct {
	SQLitePath        string `json:"sqlite_path"`
	GenerationBackend string `json:"generation_backend"` // "memory", "sqlite" or "redis"
	RedisAddr         string `json:"redis_addr,omitempty"`
	RedisPassword     string `json:"redis_password,omitempty"`
	RedisDB           int    `json:"redis_db"`
	RedisKeyPrefix    string `json:"redis_key_prefix"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `json:"addr"`
}

const (
	GenerationBackendMemory = "memory"
	GenerationBackendSQLite = "sqlite"
	GenerationBackendRedis  = "redis"
)

// Default returns a configuration with default values
func Default() Config {
	provider := ProviderConfig{
		APITimeoutSeconds: 300,
		MaxTokens:         4096,
	}
	return Config{
		Providers: ProvidersConfig{
			OpenAI:    provider,
			Anthropic: provider,
			Google:    provider,
			XAI:       provider,
			Groq:      provider,
		},
		WebSearch: WebSearchConfig{
			APIURL:         "https://api.tavily.com/search",
			MaxResults:     5,
			TimeoutSeconds: 20,
		},
		Storage: StorageConfig{
			SQLitePath:        filepath.Join(configDir(), "aichat.db"),
			GenerationBackend: GenerationBackendSQLite,
			RedisKeyPrefix:    "aichat:generation:",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		KeysFile:  filepath.Join(configDir(), "keys.json"),
		MaxSteps:  5,
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load loads configuration from the specified path
// If the file doesn't exist, creates one with default values
func Load(configPath string) (Config, error) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return Config{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(configPath, cfg); err != nil {
				return Config{}, fmt.Errorf("failed to create default config: %w", err)
			}
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	// Older files miss newer sections.
	applyDefaults(&cfg, Default())
	return cfg, nil
}

func applyDefaults(cfg *Config, def Config) {
	for _, pair := range []struct {
		got  *ProviderConfig
		want ProviderConfig
	}{
		{&cfg.Providers.OpenAI, def.Providers.OpenAI},
		{&cfg.Providers.Anthropic, def.Providers.Anthropic},
		{&cfg.Providers.Google, def.Providers.Google},
		{&cfg.Providers.XAI, def.Providers.XAI},
		{&cfg.Providers.Groq, def.Providers.Groq},
	} {
		if pair.got.APITimeoutSeconds == 0 {
			pair.got.APITimeoutSeconds = pair.want.APITimeoutSeconds
		}
		if pair.got.MaxTokens == 0 {
			pair.got.MaxTokens = pair.want.MaxTokens
		}
	}

	if cfg.WebSearch.APIURL == "" {
		cfg.WebSearch.APIURL = def.WebSearch.APIURL
	}
	if cfg.WebSearch.MaxResults == 0 {
		cfg.WebSearch.MaxResults = def.WebSearch.MaxResults
	}
	if cfg.WebSearch.TimeoutSeconds == 0 {
		cfg.WebSearch.TimeoutSeconds = def.WebSearch.TimeoutSeconds
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = def.Storage.SQLitePath
	}
	if cfg.Storage.GenerationBackend == "" {
		cfg.Storage.GenerationBackend = def.Storage.GenerationBackend
	}
	if cfg.Storage.RedisKeyPrefix == "" {
		cfg.Storage.RedisKeyPrefix = def.Storage.RedisKeyPrefix
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.KeysFile == "" {
		cfg.KeysFile = def.KeysFile
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
}

// Save saves the configuration to the specified path
func Save(configPath string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	for name, p := range c.Providers.byName() {
		if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
			return fmt.Errorf("providers.%s.temperature must be between 0 and 2, got: %f", name, *p.Temperature)
		}
		if p.MaxTokens < 0 {
			return fmt.Errorf("providers.%s.max_tokens must not be negative, got: %d", name, p.MaxTokens)
		}
		if p.APITimeoutSeconds < 0 {
			return fmt.Errorf("providers.%s.api_timeout_seconds must not be negative, got: %d", name, p.APITimeoutSeconds)
		}
	}

	if c.WebSearch.MaxResults <= 0 {
		return fmt.Errorf("web_search.max_results must be positive, got: %d", c.WebSearch.MaxResults)
	}
	if c.WebSearch.TimeoutSeconds <= 0 {
		return fmt.Errorf("web_search.timeout_seconds must be positive, got: %d", c.WebSearch.TimeoutSeconds)
	}

	switch c.Storage.GenerationBackend {
	case GenerationBackendMemory, GenerationBackendSQLite:
	case GenerationBackendRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis generation backend")
		}
	default:
		return fmt.Errorf("unsupported generation backend: %s", c.Storage.GenerationBackend)
	}

	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got: %d", c.MaxSteps)
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}

	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log_format: %s", c.LogFormat)
	}

	return nil
}

// Provider returns the settings for a provider id.
func (p ProvidersConfig) Provider(id string) (ProviderConfig, bool) {
	cfg, ok := p.byName()[id]
	return cfg, ok
}

func (p ProvidersConfig) byName() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai":    p.OpenAI,
		"anthropic": p.Anthropic,
		"google":    p.Google,
		"xai":       p.XAI,
		"groq":      p.Groq,
	}
}

// EnvKeyVars maps provider ids to the environment variables holding
// fallback API keys.
var EnvKeyVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GEMINI_API_KEY",
	"xai":       "XAI_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// WebSearchKey returns the configured search key, falling back to
// WEB_SEARCH_API_KEY.
func (c Config) WebSearchKey() string {
	if key := strings.TrimSpace(c.WebSearch.APIKey); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv("WEB_SEARCH_API_KEY"))
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(configDir(), "config.json")
}

func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".aichat"
	}
	return filepath.Join(homeDir, ".aichat")
}
