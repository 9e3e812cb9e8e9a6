package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS scrape_sessions (
	session_id TEXT PRIMARY KEY,
	start_time TEXT NOT NULL,
	total_products INTEGER NOT NULL,
	total_suppliers INTEGER NOT NULL,
	total_results INTEGER NOT NULL,
	success_count INTEGER NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_data (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES scrape_sessions(session_id),
	position INTEGER NOT NULL,
	sku TEXT NOT NULL,
	scrape_time TEXT NOT NULL,
	supplier TEXT NOT NULL,
	supplier_id TEXT NOT NULL,
	product_name TEXT,
	price REAL,
	price_formatted TEXT,
	status TEXT NOT NULL,
	url_scraped TEXT NOT NULL,
	currency TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_data_session ON price_data(session_id, position);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) SaveSession(ctx context.Context, session *models.ScrapeSession, records []models.PriceRecord) (err error) {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("session id is required")
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO scrape_sessions (
		session_id, start_time, total_products, total_suppliers, total_results, success_count, status
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID,
		session.StartTime.UTC().Format(timeLayout),
		session.TotalProducts,
		session.TotalSuppliers,
		session.TotalResults,
		session.SuccessCount,
		string(session.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO price_data (
		id, session_id, position, sku, scrape_time, supplier, supplier_id,
		product_name, price, price_formatted, status, url_scraped, currency
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if !r.Status.Valid() {
			return fmt.Errorf("record %d: invalid status %s", i, r.Status)
		}
		_, err = stmt.ExecContext(ctx,
			models.RecordKey(session.SessionID, i),
			session.SessionID,
			i,
			r.SKU,
			r.ScrapeTime.UTC().Format(timeLayout),
			r.Supplier,
			r.SupplierID,
			nullString(r.ProductName),
			nullFloat(r.Price),
			nullString(r.PriceFormatted),
			r.Status.String(),
			r.URLScraped,
			r.Currency,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func (b *sqliteBackend) ListSessions(ctx context.Context, limit int) ([]*models.ScrapeSession, error) {
	rows, err := b.db.QueryContext(ctx, `
	SELECT session_id, start_time, total_products, total_suppliers, total_results, success_count, status
	FROM scrape_sessions
	ORDER BY start_time DESC
	LIMIT ?`, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ScrapeSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func (b *sqliteBackend) GetSession(ctx context.Context, sessionID string) (*models.ScrapeSession, error) {
	row := b.db.QueryRowContext(ctx, `
	SELECT session_id, start_time, total_products, total_suppliers, total_results, success_count, status
	FROM scrape_sessions
	WHERE session_id = ?`, sessionID)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	return s, err
}

func (b *sqliteBackend) GetSessionRecords(ctx context.Context, sessionID string) ([]models.PriceRecord, error) {
	if _, err := b.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, `
	SELECT sku, scrape_time, supplier, supplier_id, product_name, price, price_formatted, status, url_scraped, currency
	FROM price_data
	WHERE session_id = ?
	ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []models.PriceRecord{}
	for rows.Next() {
		var (
			r                    models.PriceRecord
			scrapeTime, status   string
			name, priceFormatted sql.NullString
			price                sql.NullFloat64
		)
		err := rows.Scan(&r.SKU, &scrapeTime, &r.Supplier, &r.SupplierID, &name, &price, &priceFormatted, &status, &r.URLScraped, &r.Currency)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		if r.ScrapeTime, err = time.Parse(timeLayout, scrapeTime); err != nil {
			return nil, fmt.Errorf("invalid scrape_time %q: %w", scrapeTime, err)
		}
		if r.Status, err = models.ParseRecordStatus(status); err != nil {
			return nil, err
		}
		if name.Valid {
			r.ProductName = &name.String
		}
		if price.Valid {
			r.Price = &price.Float64
		}
		if priceFormatted.Valid {
			r.PriceFormatted = &priceFormatted.String
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.ScrapeSession, error) {
	var (
		s         models.ScrapeSession
		startTime string
		status    string
	)
	err := row.Scan(&s.SessionID, &startTime, &s.TotalProducts, &s.TotalSuppliers, &s.TotalResults, &s.SuccessCount, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if s.StartTime, err = time.Parse(timeLayout, startTime); err != nil {
		return nil, fmt.Errorf("invalid start_time %q: %w", startTime, err)
	}
	s.Status = models.SessionStatus(status)
	return &s, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
