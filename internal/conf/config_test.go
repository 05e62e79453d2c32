package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/search/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, cache.DriverMemory, cfg.Cache.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, StoragePostgres, cfg.Task.Storage)
	assert.Equal(t, 20, cfg.Task.Orchestrator.DetailLimit)
	require.Contains(t, cfg.Platforms, "mercari")
	assert.Equal(t, 45, cfg.Platforms["mercari"].Timeout)
	assert.False(t, cfg.Platforms["rakuten"].Enabled)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
cache:
  driver: redis
  capacity: 50
  default_ttl: 2m
platforms:
  yahoo:
    enabled: true
    api_key: from-file
task:
  storage: memory
  orchestrator:
    exec_timeout: 30s
`), 0o600))

	t.Setenv("PRICEHUNT_PLATFORMS_YAHOO_API_KEY", "from-env")
	t.Setenv("PRICEHUNT_SERVER_PORT", "9191")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, cache.DriverRedis, cfg.Cache.Driver)
	assert.Equal(t, 50, cfg.Cache.Capacity)
	assert.Equal(t, 2*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, StorageMemory, cfg.Task.Storage)
	assert.Equal(t, 30*time.Second, cfg.Task.Orchestrator.ExecTimeout)
	require.Contains(t, cfg.Platforms, "yahoo")
	assert.True(t, cfg.Platforms["yahoo"].Enabled)
	assert.Equal(t, "from-env", cfg.Platforms["yahoo"].APIKey)
	assert.Equal(t, 8, cfg.Platforms["yahoo"].Timeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("task:\n  storage: sqlite\n"), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "task storage")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
