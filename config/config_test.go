package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "localhost:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Storage.Redis.IdleTimeout)
	assert.False(t, cfg.Engine.ConcurrentBranches)
	assert.Equal(t, 1000, cfg.Engine.MaxDepth)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "verbose" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "postgres" }, wantErr: true},
		{name: "zero max depth", mutate: func(c *Config) { c.Engine.MaxDepth = 0 }, wantErr: true},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendRedis
				c.Storage.Redis.Addr = ""
			},
			wantErr: true,
		},
		{
			name:   "memory ignores redis address",
			mutate: func(c *Config) { c.Storage.Redis.Addr = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_RedisOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Redis.DB = 3

	opts := cfg.RedisOptions()
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, "workflow:", opts.KeyPrefix)
	assert.Equal(t, 16, opts.MaxRetries)
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	assert.NotNil(t, loader)
	assert.NotNil(t, loader.v)
}

func TestLoader_LoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "workflow.yaml")

	configContent := `
log_level: debug
storage:
  backend: redis
  redis:
    addr: redis.internal:6380
    idle_timeout: 90s
engine:
  concurrent_branches: true
  max_depth: 50
  node_id: 7
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := NewLoader().LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis.internal:6380", cfg.Storage.Redis.Addr)
	assert.Equal(t, 90*time.Second, cfg.Storage.Redis.IdleTimeout)
	assert.True(t, cfg.Engine.ConcurrentBranches)
	assert.Equal(t, 50, cfg.Engine.MaxDepth)
	assert.Equal(t, uint16(7), cfg.Engine.NodeID)

	// Keys absent from the file keep their defaults
	assert.Equal(t, 10, cfg.Storage.Redis.PoolSize)
	assert.Equal(t, 100, cfg.Engine.EventBuffer)
}

func TestLoader_LoadFromFile_NonExistent(t *testing.T) {
	_, err := NewLoader().LoadFromFile("/nonexistent/path/workflow.yaml")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoader_LoadFromFile_InvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("storage:\n  backend: sqlite\n"), 0644))

	_, err := NewLoader().LoadFromFile(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoader_Load_WithEnvOverride(t *testing.T) {
	t.Setenv("WORKFLOW_STORAGE_BACKEND", "redis")
	t.Setenv("WORKFLOW_STORAGE_REDIS_ADDR", "env-redis:6379")
	t.Setenv("WORKFLOW_ENGINE_MAX_DEPTH", "7")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "env-redis:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 7, cfg.Engine.MaxDepth)
}

func TestLoader_Load_ConfigPathEnv(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: error\n"), 0644))
	t.Setenv("WORKFLOW_CONFIG_PATH", configPath)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoader_Load_DefaultsWithNoConfigFile(t *testing.T) {
	// The package directory holds no workflow.yaml.
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().LogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultConfig().Engine, cfg.Engine)
}
