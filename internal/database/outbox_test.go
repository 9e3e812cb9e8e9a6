package database_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/vn-price-scraper/internal/database"
	"github.com/maltedev/vn-price-scraper/internal/events"
	"github.com/maltedev/vn-price-scraper/internal/storage/storagetest"
)

// saveSession persists a one-SKU session with its PRICES_SCRAPED event and
// returns the pending event.
func saveSession(t *testing.T, db *database.DB, sessionID string, start time.Time) *database.OutboxEvent {
	t.Helper()
	ctx := context.Background()

	records := storagetest.Records("BOSCH123", start)
	repo := database.NewSessionRepository(db, events.NewPricesScrapedEvent)
	require.NoError(t, repo.SaveSession(ctx, storagetest.Session(sessionID, start, records), records))

	var event *database.OutboxEvent
	pending, err := database.NewOutboxRepository(db).GetPending(ctx, 100)
	require.NoError(t, err)
	for _, e := range pending {
		if e.AggregateID == sessionID {
			event = e
		}
	}
	require.NotNil(t, event, "no pending event for %s", sessionID)
	return event
}

func outboxStatus(t *testing.T, db *database.DB, id uuid.UUID) (status string, retries int) {
	t.Helper()
	err := db.QueryRow(context.Background(),
		"SELECT status, retry_count FROM outbox_event WHERE id = $1", id).Scan(&status, &retries)
	require.NoError(t, err)
	return status, retries
}

func TestOutbox_SessionEventIsPublishedOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	outbox := database.NewOutboxRepository(db)

	event := saveSession(t, db, "session-1", time.Now().UTC())
	assert.Equal(t, string(events.EventTypePricesScraped), event.EventType)
	assert.Equal(t, database.OutboxStatusPending, event.Status)
	assert.Zero(t, event.RetryCount)

	var payload events.PricesScrapedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "session-1", payload.SessionID)
	assert.Equal(t, 3, payload.TotalResults)

	pendingCount, _, err := outbox.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pendingCount)

	require.NoError(t, outbox.MarkProcessed(ctx, event.ID))

	status, _ := outboxStatus(t, db, event.ID)
	assert.Equal(t, database.OutboxStatusProcessed, status)

	pending, err := outbox.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pendingCount, _, err = outbox.Backlog(ctx)
	require.NoError(t, err)
	assert.Zero(t, pendingCount)
}

func TestOutbox_PendingInSessionOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	start := time.Now().UTC()
	for _, id := range []string{"morning", "noon", "evening"} {
		saveSession(t, db, id, start)
	}

	pending, err := database.NewOutboxRepository(db).GetPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "morning", pending[0].AggregateID)
	assert.Equal(t, "noon", pending[1].AggregateID)
}

func TestOutbox_FailedPublishBacksOffThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	outbox := database.NewOutboxRepository(db)

	event := saveSession(t, db, "session-1", time.Now().UTC())

	require.NoError(t, outbox.MarkFailed(ctx, event.ID, assert.AnError))
	status, retries := outboxStatus(t, db, event.ID)
	assert.Equal(t, database.OutboxStatusFailed, status)
	assert.Equal(t, 1, retries)

	var errorMessage string
	var backoff float64
	err := db.QueryRow(ctx, `
		SELECT error_message, EXTRACT(EPOCH FROM next_retry_at - now())
		FROM outbox_event WHERE id = $1`, event.ID).Scan(&errorMessage, &backoff)
	require.NoError(t, err)
	assert.Contains(t, errorMessage, "assert.AnError")
	assert.InDelta(t, 2, backoff, 1)

	// Backed off: not due yet, but still counted as waiting.
	pending, err := outbox.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	count, dead, err := outbox.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Zero(t, dead)

	for i := retries; i < database.MaxRetryCount; i++ {
		require.NoError(t, outbox.MarkFailed(ctx, event.ID, assert.AnError))
	}

	status, retries = outboxStatus(t, db, event.ID)
	assert.Equal(t, database.OutboxStatusDeadLetter, status)
	assert.Equal(t, database.MaxRetryCount, retries)

	count, dead, err = outbox.Backlog(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, int64(1), dead)
}

func TestOutbox_MarkUnknownEvent(t *testing.T) {
	ctx := context.Background()
	outbox := database.NewOutboxRepository(setupTestDB(t))

	assert.Error(t, outbox.MarkProcessed(ctx, uuid.New()))
	assert.Error(t, outbox.MarkFailed(ctx, uuid.New(), assert.AnError))
}

func TestOutbox_InsertRejectsInvalidEvent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	outbox := database.NewOutboxRepository(db)

	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		return outbox.InsertWithTx(ctx, tx, &database.OutboxEvent{
			AggregateType: "scrape_session",
			AggregateID:   "session-1",
			EventType:     string(events.EventTypePricesScraped),
		})
	})
	assert.ErrorContains(t, err, "payload")

	count, _, err := outbox.Backlog(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
