// Package app assembles the scrape service and its collaborators from
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/vn-price-scraper/internal/browser"
	"github.com/maltedev/vn-price-scraper/internal/catalog"
	"github.com/maltedev/vn-price-scraper/internal/config"
	"github.com/maltedev/vn-price-scraper/internal/database"
	"github.com/maltedev/vn-price-scraper/internal/events"
	"github.com/maltedev/vn-price-scraper/internal/lock"
	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/ratelimit"
	"github.com/maltedev/vn-price-scraper/internal/scraper"
	"github.com/maltedev/vn-price-scraper/internal/storage"
	"github.com/maltedev/vn-price-scraper/internal/storage/jsonbackend"
	"github.com/maltedev/vn-price-scraper/internal/storage/sqlite"
)

const runLockKey = "lock:price-scraper:run"

// App holds everything a trigger needs. Close releases it in reverse order.
type App struct {
	Service  *scraper.Service
	Sessions storage.Backend
	DB       *database.DB
	Redis    *redis.Client
	// Relay is nil unless RELAY_ENABLED is set.
	Relay *database.Relay
	// Outbox is nil unless the relay is enabled.
	Outbox *database.OutboxRepository

	closers []func() error
}

// New connects to the configured backends and builds the service.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if cfg.NeedsPostgres() {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, func() error { db.Close(); return nil })

		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.NeedsRedis() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.Redis = client
		a.closers = append(a.closers, client.Close)

		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	cat, err := newCatalog(cfg, a.DB)
	if err != nil {
		return nil, err
	}

	sessions, err := newStorage(cfg, a.DB)
	if err != nil {
		return nil, err
	}
	a.Sessions = sessions
	a.closers = append(a.closers, sessions.Close)

	if cfg.Relay.Enabled {
		a.Outbox = database.NewOutboxRepository(a.DB)
		a.Relay = database.NewRelay(a.Outbox, a.Redis, logger, database.RelayConfig{
			PollInterval: cfg.Relay.PollInterval,
			BatchSize:    cfg.Relay.BatchSize,
			MaxLen:       cfg.Relay.StreamMaxLen,
		})
	}

	var store storage.Store = sessions
	if a.Relay != nil {
		store = notifyingStore{Store: sessions, notify: a.Relay.Notify}
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Scraper.RunLock == config.LockRedis {
		locker = lock.NewRedis(a.Redis, runLockKey, cfg.Scraper.RunLockTTL, logger)
	}

	a.Service = scraper.NewService(newOrchestrator(cfg, logger), cat, store, locker, logger)
	return a, nil
}

// Close releases connections. It is safe to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// notifyingStore calls notify after every committed session so the relay
// publishes it without waiting for its next poll.
type notifyingStore struct {
	storage.Store
	notify func()
}

func (s notifyingStore) SaveSession(ctx context.Context, session *models.ScrapeSession, records []models.PriceRecord) error {
	if err := s.Store.SaveSession(ctx, session, records); err != nil {
		return err
	}
	s.notify()
	return nil
}

func newOrchestrator(cfg *config.Config, logger *slog.Logger) *scraper.Orchestrator {
	launcher := browser.PlaywrightLauncher{Options: &browser.Options{
		Headless:    cfg.Browser.Headless,
		Timeout:     cfg.Browser.NavigationTimeout,
		UserAgent:   cfg.Browser.UserAgent,
		ProxyServer: cfg.Browser.Proxy,
	}}

	nav := cfg.Browser.NavigationTimeout
	extractors := scraper.DefaultExtractors(
		scraper.Timing{Navigation: nav, Settle: cfg.Scraper.SettleDMX},
		scraper.Timing{Navigation: nav, Settle: cfg.Scraper.SettleWH},
		scraper.Timing{Navigation: nav, Settle: cfg.Scraper.SettleQH},
		logger,
	)

	pacer := ratelimit.NewDelay(cfg.Scraper.ProductDelay, cfg.Scraper.ProductDelay+cfg.Scraper.ProductDelayJitter)
	return scraper.NewOrchestrator(launcher, extractors, pacer, logger)
}

func newCatalog(cfg *config.Config, db *database.DB) (catalog.Catalog, error) {
	switch cfg.Catalog.Source {
	case config.CatalogYAML:
		return catalog.NewFile(cfg.Catalog.File), nil
	case config.CatalogPostgres:
		return catalog.NewPostgres(db), nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}
}

func newStorage(cfg *config.Config, db *database.DB) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		var newEvent database.EventFactory
		if cfg.Relay.Enabled {
			newEvent = events.NewPricesScrapedEvent
		}
		return database.NewSessionRepository(db, newEvent), nil
	case config.StorageSQLite:
		path := sqlitePath(cfg.Storage.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage dir: %w", err)
		}
		return sqlite.New(path)
	case config.StorageJSON:
		return jsonbackend.New(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// sqlitePath treats a path without an extension as a directory.
func sqlitePath(path string) string {
	if filepath.Ext(path) == "" {
		return filepath.Join(path, "prices.db")
	}
	return path
}
