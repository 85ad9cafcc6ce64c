// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pool     PoolConfig     `mapstructure:"pool"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PoolConfig governs worker pool and queue behavior.
type PoolConfig struct {
	Workers          int `mapstructure:"workers"`
	QueueDepth       int `mapstructure:"queue_depth"`
	JobBudgetSeconds int `mapstructure:"job_budget_seconds"`
}

// HTTPConfig configures outbound HTTP client behavior.
type HTTPConfig struct {
	UserAgent        string  `mapstructure:"user_agent"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	PerHostRPS       float64 `mapstructure:"per_host_rps"`
	PerHostBurst     int     `mapstructure:"per_host_burst"`
}

// CacheConfig sets the extraction cache size and optional entry TTL.
type CacheConfig struct {
	Capacity   int `mapstructure:"capacity"`
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// StrategyConfig selects and tunes the strategy synthesizer.
type StrategyConfig struct {
	Provider        string `mapstructure:"provider"` // "rules" or "llm"
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicModel  string `mapstructure:"anthropic_model"`
	MaxTokens       int    `mapstructure:"max_tokens"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// DBConfig controls the optional Postgres archive of completed analyses.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig controls the optional Pub/Sub fan-out of completed results.
// Both fields must be set to enable it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether result publishing is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Topic != ""
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MARKETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("pool.workers", 3)
	v.SetDefault("pool.queue_depth", 64)
	v.SetDefault("pool.job_budget_seconds", 90)
	v.SetDefault("http.user_agent", "marketd/0.1 (+https://github.com/tphagent/marketing-engine)")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.per_host_rps", 2.0)
	v.SetDefault("http.per_host_burst", 2)
	v.SetDefault("cache.capacity", 100)
	v.SetDefault("cache.ttl_seconds", 0)
	v.SetDefault("strategy.provider", "rules")
	v.SetDefault("strategy.anthropic_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("strategy.max_tokens", 2048)
	v.SetDefault("strategy.timeout_seconds", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be > 0")
	}
	if c.Pool.QueueDepth <= 0 {
		return fmt.Errorf("pool.queue_depth must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be > 0")
	}
	switch c.Strategy.Provider {
	case "rules":
	case "llm":
		if c.Strategy.AnthropicAPIKey == "" {
			return fmt.Errorf("strategy.anthropic_api_key must be set when provider is llm")
		}
	default:
		return fmt.Errorf("unknown strategy.provider %q", c.Strategy.Provider)
	}
	return nil
}

// JobBudget returns the per-job wall-clock budget.
func (c Config) JobBudget() time.Duration {
	return time.Duration(c.Pool.JobBudgetSeconds) * time.Second
}

// FetchTimeout returns the per-request fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CacheTTL returns the cache entry TTL; zero means entries never expire.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
