package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/content-orchestrator/pkg/icron"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
//
// Environment Variables:
// LLM Configuration:
// - LLM_PROVIDER: openrouter (OpenAI-compatible HTTP) or openai (default: openrouter)
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1, or https://api.openai.com/v1 for openai)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_TIMEOUT (seconds)
// - LLM_SITE_URL, LLM_APP_NAME: referer and X-Title headers (optional)
//
// Storage:
// - DATA_DIR: directory holding the SQLite database (default: /app/data)
//
// Queue and retry:
// - QUEUE_WORKERS (default: 5), QUEUE_ATTEMPTS (default: 3), QUEUE_BACKOFF_MS (default: 5000)
// - QUEUE_POLL_MS: how often idle workers look for tasks stored by other processes (default: 1000)
// - RETRY_ENABLED (default: false), RETRY_MAX (default: 3), RETRY_BASE_DELAY_MS (default: 30000)
//
// Translation:
// - TRANSLATE_LANGUAGES: comma separated target languages (default: es)
// - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB: translation cache backend, in-memory when REDIS_ADDR is empty
// - TRANSLATION_CACHE_TTL_HOURS (default: 720)
//
// Integrations:
// - SERVER_URL: public site URL used in agent sync payloads
// - AGENT_WORKSPACE_API_URL, AGENT_WORKSPACE_TOKEN
// - APITUBE_KEY, APITUBE_URL, NEWS_CRON, NEWS_ENABLED
// - MEDIA_STOCK_URL, MEDIA_PLACEHOLDER_URL, MEDIA_TIMEOUT (seconds)
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	System    SystemConfig    `json:"system"`
	Queue     QueueConfig     `json:"queue"`
	Retry     RetryConfig     `json:"retry"`
	Translate TranslateConfig `json:"translate"`
	Redis     RedisConfig     `json:"redis"`
	HTTP      HTTPConfig      `json:"http"`
	Site      SiteConfig      `json:"site"`
	AgentSync AgentSyncConfig `json:"agent_sync"`
	News      NewsConfig      `json:"news"`
	Media     MediaConfig     `json:"media"`
}

// LLMConfig holds the configuration for the generation provider.
type LLMConfig struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

type SystemConfig struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	// LogFile, when set, receives a copy of every log line.
	LogFile string `json:"log_file,omitempty"`
}

type QueueConfig struct {
	Workers   int           `json:"workers"`
	Attempts  int           `json:"attempts"`
	BackoffMS int           `json:"backoff_ms"`
	MaxTasks  int           `json:"max_tasks"`
	Name      string        `json:"name"`
	Drain     time.Duration `json:"drain"`
	Poll      time.Duration `json:"poll"`
}

// RetryConfig is the orchestrator-level retry policy. Disabled means failures wait for a manual rerun.
type RetryConfig struct {
	Enabled     bool `json:"enabled"`
	MaxRetries  int  `json:"max_retries"`
	BaseDelayMS int  `json:"base_delay_ms"`
}

type TranslateConfig struct {
	Languages []language.Tag `json:"languages"`
	CacheTTL  time.Duration  `json:"cache_ttl"`
}

// LanguageCodes returns the configured target languages as BCP 47 strings.
func (c TranslateConfig) LanguageCodes() []string {
	codes := make([]string, 0, len(c.Languages))
	for _, tag := range c.Languages {
		codes = append(codes, tag.String())
	}
	return codes
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type SiteConfig struct {
	ServerURL string `json:"server_url"`
}

type AgentSyncConfig struct {
	APIURL string `json:"api_url"`
	Token  string `json:"-"`
}

type NewsConfig struct {
	Enabled  bool   `json:"enabled"`
	APIKey   string `json:"-"`
	APIURL   string `json:"api_url"`
	CronExpr string `json:"cron_expr"`
}

type MediaConfig struct {
	StockURL       string `json:"stock_url"`
	PlaceholderURL string `json:"placeholder_url"`
	Timeout        int    `json:"timeout"`
}

// DBPath is the SQLite database location under DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "contentflow.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

// Load reads envFile when it exists and then builds the config from the environment.
func Load(envFile string, opts ...Option) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			log.Info("Config: loaded environment from %s", envFile)
		}
	}
	return NewFromEnv(opts...)
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	provider := strings.ToLower(getEnvString("LLM_PROVIDER", "openrouter"))
	defaultAPIURL := "https://openrouter.ai/api/v1"
	if provider == "openai" {
		defaultAPIURL = "https://api.openai.com/v1"
	}

	config := &Config{
		LLM: LLMConfig{
			Provider:    provider,
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", defaultAPIURL),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvInt("LLM_TIMEOUT", 120),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", "content-orchestrator"),
		},
		System: SystemConfig{
			DataDir:  getEnvString("DATA_DIR", "/app/data"),
			LogLevel: getEnvString("LOG_LEVEL", "info"),
			LogFile:  getEnvString("LOG_FILE", ""),
		},
		Queue: QueueConfig{
			Name:      getEnvString("QUEUE_NAME", "ai-jobs"),
			Workers:   getEnvInt("QUEUE_WORKERS", 5),
			Attempts:  getEnvInt("QUEUE_ATTEMPTS", 3),
			BackoffMS: getEnvInt("QUEUE_BACKOFF_MS", 5000),
			MaxTasks:  getEnvInt("QUEUE_MAX_TASKS", 500),
			Drain:     time.Duration(getEnvInt("QUEUE_DRAIN_SECONDS", 30)) * time.Second,
			Poll:      time.Duration(getEnvInt("QUEUE_POLL_MS", 1000)) * time.Millisecond,
		},
		Retry: RetryConfig{
			Enabled:     getEnvBool("RETRY_ENABLED", false),
			MaxRetries:  getEnvInt("RETRY_MAX", 3),
			BaseDelayMS: getEnvInt("RETRY_BASE_DELAY_MS", 30000),
		},
		Translate: TranslateConfig{
			CacheTTL: time.Duration(getEnvInt("TRANSLATION_CACHE_TTL_HOURS", 720)) * time.Hour,
		},
		Redis: RedisConfig{
			Addr:     getEnvString("REDIS_ADDR", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Site: SiteConfig{
			ServerURL: strings.TrimRight(getEnvString("SERVER_URL", "http://localhost:3000"), "/"),
		},
		AgentSync: AgentSyncConfig{
			APIURL: getEnvString("AGENT_WORKSPACE_API_URL", "https://api.agentworkspace.io/v1/sync"),
			Token:  getEnvString("AGENT_WORKSPACE_TOKEN", ""),
		},
		News: NewsConfig{
			Enabled:  getEnvBool("NEWS_ENABLED", false),
			APIKey:   getEnvString("APITUBE_KEY", ""),
			APIURL:   getEnvString("APITUBE_URL", "https://api.apitube.io/v1/news/everything"),
			CronExpr: getEnvString("NEWS_CRON", "0 6 * * *"),
		},
		Media: MediaConfig{
			StockURL:       getEnvString("MEDIA_STOCK_URL", "https://images.unsplash.com/photo-1506744038136-46273834b3fb?q=80&w=1200&auto=format&fit=crop"),
			PlaceholderURL: getEnvString("MEDIA_PLACEHOLDER_URL", "https://placehold.co/1200x800.png?text=Media+Unavailable"),
			Timeout:        getEnvInt("MEDIA_TIMEOUT", 10),
		},
	}

	langs, err := parseLanguages(getEnvList("TRANSLATE_LANGUAGES", []string{"es"}))
	if err != nil {
		return nil, err
	}
	config.Translate.Languages = langs

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: provider=%s model=%s data_dir=%s workers=%d languages=%v",
		config.LLM.Provider, config.LLM.Model, config.System.DataDir, config.Queue.Workers, config.Translate.LanguageCodes())

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	switch c.LLM.Provider {
	case "openrouter", "openai":
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be positive")
	}
	if c.Queue.Attempts <= 0 {
		return fmt.Errorf("QUEUE_ATTEMPTS must be positive")
	}
	if _, err := icron.Parse(c.News.CronExpr); err != nil {
		return fmt.Errorf("invalid NEWS_CRON: %w", err)
	}
	return nil
}

func parseLanguages(values []string) ([]language.Tag, error) {
	tags := make([]language.Tag, 0, len(values))
	for _, v := range values {
		tag, err := language.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid language %q: %w", v, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
