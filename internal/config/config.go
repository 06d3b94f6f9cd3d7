// Package config loads catalog client configuration from a YAML file and
// APP_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/levipshemish/jewgo-catalog/pkg/logging"
)

// Config is the root configuration for the catalog CLI and examples.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Scroll     ScrollConfig     `mapstructure:"scroll"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// APIConfig configures the catalog HTTP client.
type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	UserAgent   string        `mapstructure:"user_agent" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"min=0"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
}

// PaginationConfig configures the hybrid pagination coordinator.
type PaginationConfig struct {
	PreferredMode    string        `mapstructure:"preferred_mode" validate:"oneof=cursor offset"`
	FallbackEnabled  bool          `mapstructure:"fallback_enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"min=1"`
	PageSize         int           `mapstructure:"page_size" validate:"min=1,max=100"`
	SortKey          string        `mapstructure:"sort_key"`
	Direction        string        `mapstructure:"direction" validate:"oneof=asc desc"`
	DedupWindow      time.Duration `mapstructure:"dedup_window" validate:"min=0"`
}

// ScrollConfig configures scroll-state persistence.
type ScrollConfig struct {
	MaxAge     time.Duration `mapstructure:"max_age" validate:"min=0"`
	MaxEntries int           `mapstructure:"max_entries" validate:"min=1"`
}

// RedisConfig configures the optional Redis scroll-state backend. An
// empty address selects the in-memory backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:     "https://api.jewgo.app",
			UserAgent:   "jewgo-catalog/0.1.0",
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
		},
		Pagination: PaginationConfig{
			PreferredMode:    "cursor",
			FallbackEnabled:  true,
			FailureThreshold: 3,
			PageSize:         24,
			SortKey:          "created_at",
			Direction:        "desc",
			DedupWindow:      1500 * time.Millisecond,
		},
		Scroll: ScrollConfig{
			MaxAge:     2 * time.Hour,
			MaxEntries: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load reads configuration from the given file, layered over Default and
// overridden by APP_-prefixed environment variables (APP_API_BASE_URL and
// so on). An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LogConfig converts the logging section into a logging.Config.
func (c *Config) LogConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.Logging.Level),
		Pretty: c.Logging.Pretty,
	}
}

func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.user_agent", def.API.UserAgent)
	v.SetDefault("api.timeout", def.API.Timeout)
	v.SetDefault("api.max_attempts", def.API.MaxAttempts)

	v.SetDefault("pagination.preferred_mode", def.Pagination.PreferredMode)
	v.SetDefault("pagination.fallback_enabled", def.Pagination.FallbackEnabled)
	v.SetDefault("pagination.failure_threshold", def.Pagination.FailureThreshold)
	v.SetDefault("pagination.page_size", def.Pagination.PageSize)
	v.SetDefault("pagination.sort_key", def.Pagination.SortKey)
	v.SetDefault("pagination.direction", def.Pagination.Direction)
	v.SetDefault("pagination.dedup_window", def.Pagination.DedupWindow)

	v.SetDefault("scroll.max_age", def.Scroll.MaxAge)
	v.SetDefault("scroll.max_entries", def.Scroll.MaxEntries)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.pretty", def.Logging.Pretty)
}
