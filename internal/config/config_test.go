package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 60, cfg.Cache.TTLMinutes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Batch.MaxConcurrentRecords)
	assert.Equal(t, 10, cfg.Enrichment.TimeoutSecs)
	assert.InDelta(t, 0.85, cfg.Enrichment.SkipTrustedAbove, 0.001)
	assert.Equal(t, "https://api.zerobounce.net/v2", cfg.Verification.BaseURL)
	assert.True(t, cfg.Providers.TechDetect.Enabled)
	assert.InDelta(t, 0.002, cfg.Providers.ClearView.CostPerCall, 0.0001)
	assert.Equal(t, 50, cfg.Providers.Apollo.CallsPerMin)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
cache:
  backend: redis
  redis_addr: localhost:6379
  ttl_minutes: 30
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  max_concurrent_records: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30, cfg.Cache.TTLMinutes)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentRecords)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Enrichment.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADPIPE_STORE_DRIVER", "postgres")
	t.Setenv("LEADPIPE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("LEADPIPE_SERVER_PORT", "3000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestSourceQuality(t *testing.T) {
	cfg := &Config{SourceTrust: map[string]float64{
		"apollo":           0.9,
		"linkedin_scraper": 0.7,
	}}

	assert.InDelta(t, 0.9, cfg.SourceQuality("apollo"), 0.001)
	assert.InDelta(t, 0.9, cfg.SourceQuality("Apollo"), 0.001)
	assert.InDelta(t, 0.7, cfg.SourceQuality("linkedin_scraper"), 0.001)
	// Unknown sources are neutral
	assert.InDelta(t, 0.5, cfg.SourceQuality("mystery_list"), 0.001)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Cache.Backend = "memory"
	cfg.Cache.TTLMinutes = 60
	cfg.Batch.MaxConcurrentRecords = 10
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateProcess_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("process"))
}

func TestValidateProcess_MissingDB(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("process")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateProcess_RedisNeedsAddr(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Backend = "redis"

	err := cfg.Validate("process")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cache.redis_addr is required")

	cfg.Cache.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate("process"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateExport_MissingSalesforce(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("export")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.client_id is required")
	assert.Contains(t, err.Error(), "salesforce.username is required")
	assert.Contains(t, err.Error(), "salesforce.key_path is required")

	cfg.Salesforce.ClientID = "client"
	cfg.Salesforce.Username = "user@example.com"
	cfg.Salesforce.KeyPath = "/tmp/key.pem"
	assert.NoError(t, cfg.Validate("export"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrentRecords = 0
	err := cfg.Validate("process")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_records must be between 1 and 50")

	cfg.Batch.MaxConcurrentRecords = 51
	err = cfg.Validate("process")
	assert.Error(t, err)

	cfg.Batch.MaxConcurrentRecords = 50
	assert.NoError(t, cfg.Validate("process"))
}
