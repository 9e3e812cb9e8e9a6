package database_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/vn-price-scraper/internal/database"
	"github.com/maltedev/vn-price-scraper/internal/events"
	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/storage"
	"github.com/maltedev/vn-price-scraper/internal/storage/storagetest"
)

func TestSessionRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return database.NewSessionRepository(setupTestDB(t), events.NewPricesScrapedEvent)
	})
}

func TestSessionRepository_WritesOutboxEvent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	repo := database.NewSessionRepository(db, events.NewPricesScrapedEvent)
	start := time.Now().UTC()
	records := storagetest.Records("BOSCH123", start)
	require.NoError(t, repo.SaveSession(ctx, storagetest.Session("with-event", start, records), records))

	pending, err := database.NewOutboxRepository(db).GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "with-event", pending[0].AggregateID)
	assert.Equal(t, database.PriceUpdatesStream, pending[0].TargetStream)

	var payload events.PricesScrapedPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, 1, payload.SuccessCount)
	assert.Len(t, payload.Prices, 1)
}

func TestSessionRepository_WithoutFactoryWritesNoEvent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	repo := database.NewSessionRepository(db, nil)
	start := time.Now().UTC()
	records := storagetest.Records("BOSCH123", start)
	require.NoError(t, repo.SaveSession(ctx, storagetest.Session("no-event", start, records), records))

	pending, _, err := database.NewOutboxRepository(db).Backlog(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestSessionRepository_RollsBackOnEventFailure(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	repo := database.NewSessionRepository(db, func(*models.ScrapeSession, []models.PriceRecord) (*database.OutboxEvent, error) {
		return &database.OutboxEvent{AggregateType: "scrape_session"}, nil
	})
	start := time.Now().UTC()
	records := storagetest.Records("BOSCH123", start)

	err := repo.SaveSession(ctx, storagetest.Session("rolled-back", start, records), records)
	require.Error(t, err)

	_, err = repo.GetSession(ctx, "rolled-back")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestSessionRepository_EventFactoryError(t *testing.T) {
	repo := database.NewSessionRepository(nil, func(*models.ScrapeSession, []models.PriceRecord) (*database.OutboxEvent, error) {
		return nil, errors.New("boom")
	})

	err := repo.SaveSession(context.Background(), &models.ScrapeSession{SessionID: "s"}, nil)
	assert.ErrorContains(t, err, "failed to build session event")
}

func TestConfigDSN(t *testing.T) {
	cfg := database.Config{Host: "db", Port: 5432, User: "scraper", Password: "p@ss/word", Database: "prices"}
	assert.Equal(t, "postgres://scraper:p%40ss%2Fword@db:5432/prices?sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}
