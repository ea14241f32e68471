// Package config loads the settings of the workflow engine and its CLI.
//
// Configuration is loaded with Viper. Priority, highest first:
//  1. Environment variables (WORKFLOW_ prefix, dots become underscores,
//     e.g. WORKFLOW_STORAGE_BACKEND)
//  2. The file named by WORKFLOW_CONFIG_PATH, or ./workflow.yaml
//  3. [DefaultConfig]
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/songzhibin97/workflow-steps/storage"
)

// EnvPrefix prefixes every environment variable read by the loader.
const EnvPrefix = "WORKFLOW"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the root configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	Storage StorageConfig `mapstructure:"storage"`
	Engine  EngineConfig  `mapstructure:"engine"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend string      `mapstructure:"backend" validate:"oneof=memory redis"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig mirrors storage.RedisOptions.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db" validate:"gte=0"`
	PoolSize     int           `mapstructure:"pool_size" validate:"gte=0"`
	MinIdleConns int           `mapstructure:"min_idle_conns" validate:"gte=0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	MaxRetries   int           `mapstructure:"max_retries" validate:"gte=0"`

	// Enabled is set by Validate when the redis backend is selected.
	Enabled bool `mapstructure:"-"`
}

// EngineConfig tunes workflow execution.
type EngineConfig struct {
	// ConcurrentBranches evaluates independent branches in parallel.
	ConcurrentBranches bool `mapstructure:"concurrent_branches"`
	// MaxDepth bounds the number of nested steps of one branch.
	MaxDepth int `mapstructure:"max_depth" validate:"gt=0"`
	// EventBuffer is the event bus queue size.
	EventBuffer int `mapstructure:"event_buffer" validate:"gt=0"`
	// NodeID is the snowflake node of connection ids. Processes sharing a
	// store must use distinct nodes; 0 picks a random node.
	NodeID uint16 `mapstructure:"node_id"`
}

// DefaultConfig returns a new [Config] with defaults that run without any file.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				PoolSize:     10,
				MinIdleConns: 2,
				IdleTimeout:  5 * time.Minute,
				KeyPrefix:    "workflow:",
				MaxRetries:   16,
			},
		},
		Engine: EngineConfig{
			MaxDepth:    1000,
			EventBuffer: 100,
		},
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	c.Storage.Redis.Enabled = c.Storage.Backend == BackendRedis
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RedisOptions converts the redis settings for storage.NewRedisStorage.
func (c *Config) RedisOptions() storage.RedisOptions {
	r := c.Storage.Redis
	return storage.RedisOptions{
		Addr:         r.Addr,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		MinIdleConns: r.MinIdleConns,
		IdleTimeout:  r.IdleTimeout,
		KeyPrefix:    r.KeyPrefix,
		MaxRetries:   r.MaxRetries,
	}
}

// Loader handles Viper-based configuration loading.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with defaults and environment overrides set up.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return &Loader{v: v}
}

// setDefaults registers every key so that environment variables are seen by
// Unmarshal even when no file sets them.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.redis.addr", cfg.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", cfg.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", cfg.Storage.Redis.DB)
	v.SetDefault("storage.redis.pool_size", cfg.Storage.Redis.PoolSize)
	v.SetDefault("storage.redis.min_idle_conns", cfg.Storage.Redis.MinIdleConns)
	v.SetDefault("storage.redis.idle_timeout", cfg.Storage.Redis.IdleTimeout)
	v.SetDefault("storage.redis.key_prefix", cfg.Storage.Redis.KeyPrefix)
	v.SetDefault("storage.redis.max_retries", cfg.Storage.Redis.MaxRetries)
	v.SetDefault("engine.concurrent_branches", cfg.Engine.ConcurrentBranches)
	v.SetDefault("engine.max_depth", cfg.Engine.MaxDepth)
	v.SetDefault("engine.event_buffer", cfg.Engine.EventBuffer)
	v.SetDefault("engine.node_id", cfg.Engine.NodeID)
}

// Load reads WORKFLOW_CONFIG_PATH or ./workflow.yaml when present, then
// applies environment overrides.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv(EnvPrefix + "_CONFIG_PATH"); path != "" {
		return l.LoadFromFile(path)
	}

	l.v.SetConfigName("workflow")
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(".")
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadFromFile reads the given YAML file, then applies environment overrides.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
