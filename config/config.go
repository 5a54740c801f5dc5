package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the delver service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Research  ResearchConfig  `mapstructure:"research"`
	Search    SearchConfig    `mapstructure:"search"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Queue     QueueConfig     `mapstructure:"queue"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai-compatible for now
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for each pipeline stage
type LLMRoutingConfig struct {
	Planning   string `mapstructure:"planning"`
	Extraction string `mapstructure:"extraction"` // structured extraction from free text
	Evaluation string `mapstructure:"evaluation"`
	Ranking    string `mapstructure:"ranking"`
	Synthesis  string `mapstructure:"synthesis"`
	Fallback   string `mapstructure:"fallback"`
}

// ResearchConfig contains pipeline budgets and fan-out limits
type ResearchConfig struct {
	CycleBudget          int `mapstructure:"cycle_budget"`
	MaxQueriesPerCycle   int `mapstructure:"max_queries_per_cycle"`
	MaxSources           int `mapstructure:"max_sources"`
	MaxReportTokens      int `mapstructure:"max_report_tokens"`
	ResultsPerQuery      int `mapstructure:"results_per_query"`
	MaxConcurrentScrapes int `mapstructure:"max_concurrent_scrapes"`
}

// SearchConfig selects and configures the web search provider
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper or brave
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ScrapeConfig selects and configures the page scraping provider
type ScrapeConfig struct {
	Provider         string        `mapstructure:"provider"` // firecrawl or chromedp
	FirecrawlAPIKey  string        `mapstructure:"firecrawl_api_key"`
	FirecrawlBaseURL string        `mapstructure:"firecrawl_base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxCacheAge      time.Duration `mapstructure:"max_cache_age"`
	MaxChars         int           `mapstructure:"max_chars"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MetricsPort  int  `mapstructure:"metrics_port"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// StorageConfig contains database configurations
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a Postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.url or host/dbname)")
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// QueueConfig contains Redis Streams settings for background job processing
type QueueConfig struct {
	Stream        string `mapstructure:"stream"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MaxLen        int64  `mapstructure:"max_len"`
}

// LoadConfig loads configuration from file and environment.
// path may point at a config file; when empty, ./config.yaml is tried and
// environment variables alone are enough to run.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DELVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.max_processing_time", "15m")
	v.SetDefault("general.default_timeout", "30s")

	v.SetDefault("server.address", ":10002")

	v.SetDefault("llm.routing.fallback", "gpt-4o-mini")

	v.SetDefault("research.cycle_budget", 2)
	v.SetDefault("research.max_queries_per_cycle", 5)
	v.SetDefault("research.max_sources", 10)
	v.SetDefault("research.max_report_tokens", 4096)
	v.SetDefault("research.results_per_query", 10)
	v.SetDefault("research.max_concurrent_scrapes", 8)

	v.SetDefault("search.provider", "serper")
	v.SetDefault("search.timeout", "15s")

	v.SetDefault("scrape.provider", "firecrawl")
	v.SetDefault("scrape.firecrawl_base_url", "https://api.firecrawl.dev")
	v.SetDefault("scrape.timeout", "15s")
	v.SetDefault("scrape.max_cache_age", "12h")
	v.SetDefault("scrape.max_chars", 80000)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.cost_tracking", true)

	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", "5s")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.timeout", "5s")

	v.SetDefault("queue.stream", "delver.research.requested")
	v.SetDefault("queue.consumer_group", "delver-workers")
	v.SetDefault("queue.max_len", 10000)
}

// applyEnvOverrides honors the conventional API key env vars so credentials
// never have to live in the config file.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		for name, p := range cfg.LLM.Providers {
			if p.Type == "openai" && p.APIKey == "" {
				p.APIKey = key
				cfg.LLM.Providers[name] = p
			}
		}
	}
	if key := os.Getenv("SERPER_API_KEY"); key != "" && cfg.Search.SerperAPIKey == "" {
		cfg.Search.SerperAPIKey = key
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" && cfg.Search.BraveAPIKey == "" {
		cfg.Search.BraveAPIKey = key
	}
	if key := os.Getenv("FIRECRAWL_API_KEY"); key != "" && cfg.Scrape.FirecrawlAPIKey == "" {
		cfg.Scrape.FirecrawlAPIKey = key
	}
	if secret := os.Getenv("DELVER_JWT_SECRET"); secret != "" && cfg.Server.JWTSecret == "" {
		cfg.Server.JWTSecret = secret
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Research.CycleBudget < 0 {
		return fmt.Errorf("research.cycle_budget cannot be negative")
	}
	if cfg.Research.MaxQueriesPerCycle < 1 {
		return fmt.Errorf("research.max_queries_per_cycle must be >= 1")
	}
	if cfg.Research.MaxSources < 1 {
		return fmt.Errorf("research.max_sources must be >= 1")
	}
	if cfg.Research.MaxReportTokens < 1 {
		return fmt.Errorf("research.max_report_tokens must be >= 1")
	}
	if cfg.Research.MaxConcurrentScrapes < 1 {
		return fmt.Errorf("research.max_concurrent_scrapes must be >= 1")
	}
	switch cfg.Search.Provider {
	case "serper", "brave":
	default:
		return fmt.Errorf("unknown search.provider: %s", cfg.Search.Provider)
	}
	switch cfg.Scrape.Provider {
	case "firecrawl", "chromedp":
	default:
		return fmt.Errorf("unknown scrape.provider: %s", cfg.Scrape.Provider)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}
