// Package storagetest holds the behaviour every storage.Backend must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/storage"
)

// Factory returns a fresh, empty backend. The caller closes it.
type Factory func(t *testing.T) storage.Backend

// Session builds a completed session for tests.
func Session(id string, start time.Time, records []models.PriceRecord) *models.ScrapeSession {
	success := 0
	for _, r := range records {
		if r.Status == models.StatusFoundWithPrice {
			success++
		}
	}
	return &models.ScrapeSession{
		SessionID:      id,
		StartTime:      start,
		TotalProducts:  1,
		TotalSuppliers: 3,
		TotalResults:   len(records),
		SuccessCount:   success,
		Status:         models.SessionCompleted,
	}
}

// Records returns one record of every status for sku.
func Records(sku string, at time.Time) []models.PriceRecord {
	price := 1710000.0
	return []models.PriceRecord{
		{
			SKU:            sku,
			ScrapeTime:     at,
			Supplier:       "Điện Máy Xanh",
			SupplierID:     "dmx",
			ProductName:    models.StringPtr("Máy rửa bát Bosch " + sku),
			Price:          &price,
			PriceFormatted: models.StringPtr("1.710.000₫"),
			Status:         models.StatusFoundWithPrice,
			URLScraped:     "https://www.dienmayxanh.com/search?key=" + sku,
			Currency:       models.Currency,
		},
		{
			SKU:         sku,
			ScrapeTime:  at,
			Supplier:    "WellHome",
			SupplierID:  "wh",
			ProductName: models.StringPtr("Bosch " + sku),
			Status:      models.StatusFoundNoPrice,
			URLScraped:  "https://wellhome.asia/search?type=product&q=" + sku,
			Currency:    models.Currency,
		},
		{
			SKU:        sku,
			ScrapeTime: at,
			Supplier:   "Điện Máy Quang Hạnh",
			SupplierID: "qh",
			Status:     models.StatusNoInfo,
			URLScraped: "https://dienmayquanghanh.com/tu-khoa?q=" + sku,
			Currency:   models.Currency,
		},
	}
}

// Run exercises the storage.Backend contract against backends made by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("save and read back", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		start := time.Date(2026, 3, 1, 8, 0, 0, 123456789, time.UTC)

		records := Records("BOSCH123", start.Add(time.Second))
		require.NoError(t, b.SaveSession(ctx, Session("s1", start, records), records))

		got, err := b.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "s1", got.SessionID)
		assert.True(t, start.Equal(got.StartTime))
		assert.Equal(t, 3, got.TotalResults)
		assert.Equal(t, 1, got.SuccessCount)
		assert.Equal(t, models.SessionCompleted, got.Status)

		gotRecords, err := b.GetSessionRecords(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, gotRecords, 3)
		for i := range records {
			assert.Equal(t, records[i].Supplier, gotRecords[i].Supplier)
			assert.Equal(t, records[i].SupplierID, gotRecords[i].SupplierID)
			assert.Equal(t, records[i].Status, gotRecords[i].Status)
			assert.Equal(t, records[i].ProductName, gotRecords[i].ProductName)
			assert.Equal(t, records[i].Price, gotRecords[i].Price)
			assert.Equal(t, records[i].PriceFormatted, gotRecords[i].PriceFormatted)
			assert.Equal(t, records[i].URLScraped, gotRecords[i].URLScraped)
			assert.Equal(t, models.Currency, gotRecords[i].Currency)
			assert.True(t, records[i].ScrapeTime.Equal(gotRecords[i].ScrapeTime))
		}
	})

	t.Run("list newest first with limit", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

		for i, id := range []string{"old", "newest", "middle"} {
			offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
			start := base.Add(offsets[i])
			records := Records("SKU-"+id, start)
			require.NoError(t, b.SaveSession(ctx, Session(id, start, records), records))
		}

		sessions, err := b.ListSessions(ctx, 0)
		require.NoError(t, err)
		require.Len(t, sessions, 3)
		assert.Equal(t, "newest", sessions[0].SessionID)
		assert.Equal(t, "middle", sessions[1].SessionID)
		assert.Equal(t, "old", sessions[2].SessionID)

		sessions, err = b.ListSessions(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, sessions, 2)
	})

	t.Run("unknown session", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		_, err := b.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrSessionNotFound)

		_, err = b.GetSessionRecords(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	})

	t.Run("empty run", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

		session := Session("empty", start, nil)
		session.TotalProducts = 0
		require.NoError(t, b.SaveSession(ctx, session, nil))

		records, err := b.GetSessionRecords(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("record without status", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

		records := Records("BOSCH123", start)
		records[1].Status = models.StatusUnknown
		assert.Error(t, b.SaveSession(ctx, Session("unset", start, records), records))

		_, err := b.GetSession(ctx, "unset")
		assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	})

	t.Run("missing session id", func(t *testing.T) {
		b := newBackend(t)
		err := b.SaveSession(context.Background(), &models.ScrapeSession{}, nil)
		assert.Error(t, err)
	})
}
