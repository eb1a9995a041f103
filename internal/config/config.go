package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	SourcesFile string `mapstructure:"sources_file"`
	EventsFile  string `mapstructure:"events_file"`

	CrawlIntervalSeconds   int64         `mapstructure:"crawl_interval"`
	CategoryPauseMs        int64         `mapstructure:"category_pause_ms"`
	StartupDelaySeconds    int64         `mapstructure:"startup_delay_seconds"`
	ShutdownTimeoutSeconds int64         `mapstructure:"shutdown_timeout_seconds"`
	CrawlInterval          time.Duration `mapstructure:"-"`
	CategoryPause          time.Duration `mapstructure:"-"`
	StartupDelay           time.Duration `mapstructure:"-"`
	ShutdownTimeout        time.Duration `mapstructure:"-"`

	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	FetchDelayMs     int64         `mapstructure:"fetch_delay_ms"`
	FetchDelay       time.Duration `mapstructure:"-"`

	HTTPTimeoutSeconds int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout        time.Duration `mapstructure:"-"`
	InsecureTLS        bool          `mapstructure:"insecure_tls"`

	StorageType  string `mapstructure:"storage_type"`
	StoragePath  string `mapstructure:"storage_path"`
	PinStaleDays int    `mapstructure:"pin_stale_days"`

	PushGateway   string `mapstructure:"push_gateway"`
	PushURL       string `mapstructure:"push_url"`
	PushBatchSize int    `mapstructure:"push_batch_size"`
	SNSRegion     string `mapstructure:"sns_region"`

	SummarizerEnabled bool   `mapstructure:"summarizer_enabled"`
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	GeminiModel       string `mapstructure:"gemini_model"`
	GeminiEndpoint    string `mapstructure:"gemini_endpoint"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "knoti-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("events_file", "")
	v.SetDefault("crawl_interval", 1800) // seconds
	v.SetDefault("category_pause_ms", 2000)
	v.SetDefault("startup_delay_seconds", 5)
	v.SetDefault("shutdown_timeout_seconds", 10)
	v.SetDefault("fetch_concurrency", 3)
	v.SetDefault("fetch_delay_ms", 500)
	v.SetDefault("http_timeout_seconds", 15)
	v.SetDefault("insecure_tls", false)
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("storage_path", "./data/knoti.db")
	v.SetDefault("pin_stale_days", 30)
	v.SetDefault("push_gateway", "none")
	v.SetDefault("push_url", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("push_batch_size", 500)
	v.SetDefault("sns_region", "ap-northeast-2")
	v.SetDefault("summarizer_enabled", false)
	v.SetDefault("gemini_model", "gemma-3-12b-it")
	v.SetDefault("gemini_endpoint", "https://generativelanguage.googleapis.com/v1beta")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CrawlIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid crawl_interval (must be positive seconds)")
	}
	if cfg.FetchConcurrency <= 0 {
		return nil, fmt.Errorf("invalid fetch_concurrency (must be positive)")
	}
	if cfg.PinStaleDays <= 0 {
		return nil, fmt.Errorf("invalid pin_stale_days (must be positive)")
	}
	if cfg.PushBatchSize <= 0 {
		return nil, fmt.Errorf("invalid push_batch_size (must be positive)")
	}

	cfg.CrawlInterval = time.Duration(cfg.CrawlIntervalSeconds) * time.Second
	cfg.CategoryPause = time.Duration(cfg.CategoryPauseMs) * time.Millisecond
	cfg.StartupDelay = time.Duration(cfg.StartupDelaySeconds) * time.Second
	cfg.ShutdownTimeout = time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	cfg.FetchDelay = time.Duration(cfg.FetchDelayMs) * time.Millisecond
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	return &cfg, nil
}
