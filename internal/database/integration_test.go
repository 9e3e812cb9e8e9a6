package database_test

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maltedev/vn-price-scraper/internal/database"
)

// setupTestDB connects to the database named by the DB_* variables and
// applies the schema. Set INTEGRATION_TEST=true to run these tests.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("skipping integration test; set INTEGRATION_TEST=true")
	}

	port, err := strconv.Atoi(envOr("DB_PORT", "5432"))
	require.NoError(t, err)

	ctx := context.Background()
	db, err := database.New(ctx, database.Config{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     port,
		User:     envOr("DB_USER", "postgres"),
		Password: envOr("DB_PASSWORD", "postgres"),
		Database: envOr("DB_NAME", "price_scraper_test"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	_, err = db.Exec(ctx, "TRUNCATE outbox_event, price_data, scrape_sessions")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
