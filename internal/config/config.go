package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/vn-price-scraper/internal/jobs"
)

const (
	CatalogPostgres = "postgres"
	CatalogYAML     = "yaml"

	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageJSON     = "json"

	LockRedis = "redis"
	LockLocal = "local"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Catalog  CatalogConfig
	Storage  StorageConfig
	Schedule ScheduleConfig
	Relay    RelayConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	// ProductDelay is the pause after each product; ProductDelayJitter adds up
	// to that much on top.
	ProductDelay       time.Duration
	ProductDelayJitter time.Duration
	SettleDMX          time.Duration
	SettleWH           time.Duration
	SettleQH           time.Duration
	RunLock            string
	RunLockTTL         time.Duration
}

type BrowserConfig struct {
	Headless          bool
	NavigationTimeout time.Duration
	Proxy             string
	UserAgent         string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CatalogConfig struct {
	Source string
	File   string
}

type StorageConfig struct {
	Backend string
	Path    string
}

type ScheduleConfig struct {
	// Cron is a five or six field expression or a descriptor; empty disables
	// the scheduler.
	Cron     string
	Timezone string
}

type RelayConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
	StreamMaxLen int64
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Scraper: ScraperConfig{
			ProductDelay:       getDurationOrDefault("SCRAPER_PRODUCT_DELAY", 2*time.Second),
			ProductDelayJitter: getDurationOrDefault("SCRAPER_PRODUCT_DELAY_JITTER", 0),
			SettleDMX:          getDurationOrDefault("SCRAPER_SETTLE_DMX", 8*time.Second),
			SettleWH:           getDurationOrDefault("SCRAPER_SETTLE_WH", 3*time.Second),
			SettleQH:           getDurationOrDefault("SCRAPER_SETTLE_QH", 4*time.Second),
			RunLock:            getEnvOrDefault("RUN_LOCK", LockLocal),
			RunLockTTL:         getDurationOrDefault("RUN_LOCK_TTL", 2*time.Hour),
		},
		Browser: BrowserConfig{
			Headless:          getBoolOrDefault("BROWSER_HEADLESS", true),
			NavigationTimeout: getDurationOrDefault("BROWSER_NAV_TIMEOUT", 30*time.Second),
			Proxy:             getEnvOrDefault("BROWSER_PROXY", ""),
			UserAgent:         getEnvOrDefault("BROWSER_USER_AGENT", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "price_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Catalog: CatalogConfig{
			Source: strings.ToLower(getEnvOrDefault("CATALOG_SOURCE", CatalogPostgres)),
			File:   getEnvOrDefault("CATALOG_FILE", "catalog.yaml"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", StoragePostgres)),
			Path:    getEnvOrDefault("STORAGE_PATH", "data"),
		},
		Schedule: ScheduleConfig{
			Cron:     getEnvOrDefault("SCRAPE_SCHEDULE", ""),
			Timezone: getEnvOrDefault("SCRAPE_TIMEZONE", "Asia/Ho_Chi_Minh"),
		},
		Relay: RelayConfig{
			Enabled:      getBoolOrDefault("RELAY_ENABLED", false),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
			StreamMaxLen: int64(getIntOrDefault("RELAY_STREAM_MAXLEN", 10000)),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %q", c.Server.Port)
	}

	if c.Scraper.ProductDelay < 0 || c.Scraper.ProductDelayJitter < 0 {
		return fmt.Errorf("SCRAPER_PRODUCT_DELAY and SCRAPER_PRODUCT_DELAY_JITTER cannot be negative")
	}

	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("BROWSER_NAV_TIMEOUT must be positive")
	}

	switch c.Catalog.Source {
	case CatalogPostgres:
	case CatalogYAML:
		if c.Catalog.File == "" {
			return fmt.Errorf("CATALOG_FILE is required when CATALOG_SOURCE=yaml")
		}
	default:
		return fmt.Errorf("unknown CATALOG_SOURCE: %q", c.Catalog.Source)
	}

	switch c.Storage.Backend {
	case StoragePostgres:
	case StorageSQLite, StorageJSON:
		if c.Storage.Path == "" {
			return fmt.Errorf("STORAGE_PATH is required when STORAGE_BACKEND=%s", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND: %q", c.Storage.Backend)
	}

	switch c.Scraper.RunLock {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("unknown RUN_LOCK: %q", c.Scraper.RunLock)
	}

	if c.Relay.StreamMaxLen < 0 {
		return fmt.Errorf("RELAY_STREAM_MAXLEN cannot be negative")
	}

	if c.Relay.Enabled && c.Storage.Backend != StoragePostgres {
		return fmt.Errorf("RELAY_ENABLED requires STORAGE_BACKEND=postgres")
	}

	if c.Schedule.Cron != "" {
		if _, err := jobs.ParseSchedule(c.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid SCRAPE_SCHEDULE: %w", err)
		}
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid SCRAPE_TIMEZONE: %w", err)
	}

	return nil
}

// NeedsPostgres reports whether any configured component talks to Postgres.
func (c *Config) NeedsPostgres() bool {
	return c.Catalog.Source == CatalogPostgres || c.Storage.Backend == StoragePostgres
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Relay.Enabled || c.Scraper.RunLock == LockRedis
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
