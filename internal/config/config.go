package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	VANAppName        string        `mapstructure:"van_app_name"`
	VANAPIKey         string        `mapstructure:"van_api_key"`
	VANDBMode         int           `mapstructure:"van_db_mode"`
	VANBaseURI        string        `mapstructure:"van_base_uri"`
	VANTimeoutSeconds int64         `mapstructure:"van_timeout_seconds"`
	VANTimeout        time.Duration `mapstructure:"-"`
	CodesPageSize     int           `mapstructure:"codes_page_size"`
	OutputFormat      string        `mapstructure:"output_format"`

	PublishersFile string `mapstructure:"publishers_file"`

	JournalType            string        `mapstructure:"journal_type"`
	JournalPath            string        `mapstructure:"journal_path"`
	JournalTTLSeconds      int64         `mapstructure:"journal_ttl_seconds"`
	JournalCleanupSeconds  int64         `mapstructure:"journal_cleanup_interval_seconds"`
	JournalTTL             time.Duration `mapstructure:"-"`
	JournalCleanupInterval time.Duration `mapstructure:"-"`
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.VANAPIKey != "" {
		c.VANAPIKey = "***"
	}
	return c
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("app_name", "vancodes")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("van_app_name", "")
	v.SetDefault("van_api_key", "")
	v.SetDefault("van_db_mode", 0)
	v.SetDefault("van_base_uri", "https://api.securevan.com/v4/")
	v.SetDefault("van_timeout_seconds", 30)
	v.SetDefault("codes_page_size", 200)
	v.SetDefault("output_format", "table")
	v.SetDefault("publishers_file", "")
	v.SetDefault("journal_type", "bbolt")
	v.SetDefault("journal_path", "./data/journal.db")
	v.SetDefault("journal_ttl_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("journal_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.VANDBMode != 0 && cfg.VANDBMode != 1 {
		return nil, fmt.Errorf("invalid van_db_mode %d (must be 0 or 1)", cfg.VANDBMode)
	}
	if strings.TrimSpace(cfg.VANBaseURI) == "" {
		return nil, fmt.Errorf("van_base_uri must not be empty")
	}
	if cfg.VANTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid van_timeout_seconds (must be positive seconds)")
	}
	cfg.VANTimeout = time.Duration(cfg.VANTimeoutSeconds) * time.Second

	if cfg.CodesPageSize < 0 {
		return nil, fmt.Errorf("invalid codes_page_size (must not be negative)")
	}

	switch cfg.OutputFormat = strings.ToLower(strings.TrimSpace(cfg.OutputFormat)); cfg.OutputFormat {
	case "table", "json", "yaml", "csv":
	default:
		return nil, fmt.Errorf("unsupported output_format %q", cfg.OutputFormat)
	}

	if cfg.JournalTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid journal_ttl_seconds (must be positive seconds)")
	}
	if cfg.JournalCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid journal_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.JournalTTL = time.Duration(cfg.JournalTTLSeconds) * time.Second
	cfg.JournalCleanupInterval = time.Duration(cfg.JournalCleanupSeconds) * time.Second

	return &cfg, nil
}
