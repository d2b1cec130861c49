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

	SitesFile     string `mapstructure:"sites_file"`
	NotifiersFile string `mapstructure:"notifiers_file"`

	// HarvestIntervalSeconds <= 0 means a single harvest run and exit.
	HarvestIntervalSeconds int64         `mapstructure:"harvest_interval"`
	HarvestInterval        time.Duration `mapstructure:"-"`

	MaxRetries            int           `mapstructure:"max_retries"`
	RequestTimeoutSeconds int64         `mapstructure:"request_timeout_seconds"`
	RequestDelayMs        int64         `mapstructure:"request_delay_ms"`
	RequestTimeout        time.Duration `mapstructure:"-"`
	RequestDelay          time.Duration `mapstructure:"-"`

	FutureEventsOnly bool `mapstructure:"future_events_only"`
	PageSize         int  `mapstructure:"page_size"`

	StorageType string `mapstructure:"storage_type"`
	PostgresURL string `mapstructure:"postgres_url"`
	BBoltPath   string `mapstructure:"bbolt_path"`

	// Fallback ids stamped on inserted companies when the source carries
	// no mappable value (CRM field-mapping bootstrap).
	DefaultCountryID  int `mapstructure:"default_country_id"`
	DefaultIndustryID int `mapstructure:"default_industry_id"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "expo-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("sites_file", "./configs/sites.yaml")
	v.SetDefault("notifiers_file", "./configs/notifiers.yaml")
	v.SetDefault("harvest_interval", 0) // seconds; 0 = run once
	v.SetDefault("max_retries", 3)
	v.SetDefault("request_timeout_seconds", 30)
	v.SetDefault("request_delay_ms", 1000)
	v.SetDefault("future_events_only", true)
	v.SetDefault("page_size", 25)
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("postgres_url", "")
	v.SetDefault("bbolt_path", "./data/harvest.db")
	v.SetDefault("default_country_id", 1)
	v.SetDefault("default_industry_id", 1)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.MaxRetries <= 0 {
		return nil, fmt.Errorf("invalid max_retries (must be positive)")
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid request_timeout_seconds (must be positive seconds)")
	}
	if cfg.RequestDelayMs < 0 {
		return nil, fmt.Errorf("invalid request_delay_ms (must not be negative)")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("invalid page_size (must be positive)")
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	cfg.RequestDelay = time.Duration(cfg.RequestDelayMs) * time.Millisecond
	if cfg.HarvestIntervalSeconds > 0 {
		cfg.HarvestInterval = time.Duration(cfg.HarvestIntervalSeconds) * time.Second
	}

	return &cfg, nil
}
