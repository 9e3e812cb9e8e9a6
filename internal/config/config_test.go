package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Scraper.ProductDelay)
	assert.Equal(t, 8*time.Second, cfg.Scraper.SettleDMX)
	assert.Equal(t, 3*time.Second, cfg.Scraper.SettleWH)
	assert.Equal(t, 4*time.Second, cfg.Scraper.SettleQH)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavigationTimeout)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, CatalogPostgres, cfg.Catalog.Source)
	assert.Equal(t, StoragePostgres, cfg.Storage.Backend)
	assert.Equal(t, LockLocal, cfg.Scraper.RunLock)
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Schedule.Timezone)
	assert.Empty(t, cfg.Schedule.Cron)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SCRAPER_PRODUCT_DELAY", "500ms")
	t.Setenv("SCRAPER_SETTLE_DMX", "10s")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("CATALOG_SOURCE", "YAML")
	t.Setenv("CATALOG_FILE", "/etc/scraper/catalog.yaml")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("STORAGE_PATH", "/var/lib/scraper/prices.db")
	t.Setenv("SCRAPE_SCHEDULE", "0 6 * * *")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DB_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Scraper.ProductDelay)
	assert.Equal(t, 10*time.Second, cfg.Scraper.SettleDMX)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, CatalogYAML, cfg.Catalog.Source)
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.Equal(t, "0 6 * * *", cfg.Schedule.Cron)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.False(t, cfg.NeedsPostgres())
	assert.False(t, cfg.NeedsRedis())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = "http" }, "SERVER_PORT"},
		{"negative delay", func(c *Config) { c.Scraper.ProductDelay = -time.Second }, "cannot be negative"},
		{"zero navigation timeout", func(c *Config) { c.Browser.NavigationTimeout = 0 }, "BROWSER_NAV_TIMEOUT"},
		{"unknown catalog", func(c *Config) { c.Catalog.Source = "firestore" }, "CATALOG_SOURCE"},
		{"yaml without file", func(c *Config) { c.Catalog.Source = CatalogYAML; c.Catalog.File = "" }, "CATALOG_FILE"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "s3" }, "STORAGE_BACKEND"},
		{"json without path", func(c *Config) { c.Storage.Backend = StorageJSON; c.Storage.Path = "" }, "STORAGE_PATH"},
		{"unknown lock", func(c *Config) { c.Scraper.RunLock = "etcd" }, "RUN_LOCK"},
		{"negative stream length", func(c *Config) { c.Relay.StreamMaxLen = -1 }, "RELAY_STREAM_MAXLEN"},
		{"relay without postgres", func(c *Config) { c.Relay.Enabled = true; c.Storage.Backend = StorageJSON }, "RELAY_ENABLED"},
		{"bad cron", func(c *Config) { c.Schedule.Cron = "every morning" }, "SCRAPE_SCHEDULE"},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "SCRAPE_TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.modify(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestNeedsRedis(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.NeedsPostgres())
	assert.False(t, cfg.NeedsRedis())

	cfg.Scraper.RunLock = LockRedis
	assert.True(t, cfg.NeedsRedis())
}
