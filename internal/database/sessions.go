package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/storage"
)

// ensure SessionRepository implements storage.Backend
var _ storage.Backend = (*SessionRepository)(nil)

// EventFactory builds the outbox event announcing a saved session.
type EventFactory func(session *models.ScrapeSession, records []models.PriceRecord) (*OutboxEvent, error)

// SessionRepository persists scrape sessions and their price records.
type SessionRepository struct {
	db       *DB
	outbox   *OutboxRepository
	newEvent EventFactory
}

// NewSessionRepository creates a repository. A nil newEvent disables the outbox.
func NewSessionRepository(db *DB, newEvent EventFactory) *SessionRepository {
	return &SessionRepository{
		db:       db,
		outbox:   NewOutboxRepository(db),
		newEvent: newEvent,
	}
}

var priceDataColumns = []string{
	"id", "session_id", "position", "sku", "scrape_time", "supplier", "supplier_id",
	"product_name", "price", "price_formatted", "status", "url_scraped", "currency",
}

// SaveSession writes the session row, all records and the outbox event in one
// transaction.
func (r *SessionRepository) SaveSession(ctx context.Context, session *models.ScrapeSession, records []models.PriceRecord) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("session id is required")
	}

	for i, rec := range records {
		if !rec.Status.Valid() {
			return fmt.Errorf("record %d: invalid status %s", i, rec.Status)
		}
	}

	var event *OutboxEvent
	if r.newEvent != nil {
		var err error
		if event, err = r.newEvent(session, records); err != nil {
			return fmt.Errorf("failed to build session event: %w", err)
		}
	}

	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO scrape_sessions (
				session_id, start_time, total_products, total_suppliers,
				total_results, success_count, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			session.SessionID, session.StartTime, session.TotalProducts, session.TotalSuppliers,
			session.TotalResults, session.SuccessCount, string(session.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		rows := make([][]interface{}, len(records))
		for i, rec := range records {
			rows[i] = []interface{}{
				models.RecordKey(session.SessionID, i), session.SessionID, i,
				rec.SKU, rec.ScrapeTime, rec.Supplier, rec.SupplierID,
				rec.ProductName, rec.Price, rec.PriceFormatted,
				rec.Status.String(), rec.URLScraped, rec.Currency,
			}
		}

		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"price_data"}, priceDataColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to insert price data: %w", err)
		}

		if event != nil {
			if err := r.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return fmt.Errorf("failed to insert outbox event: %w", err)
			}
		}
		return nil
	})
}

func (r *SessionRepository) ListSessions(ctx context.Context, limit int) ([]*models.ScrapeSession, error) {
	rows, err := r.db.Query(ctx, `
		SELECT session_id, start_time, total_products, total_suppliers, total_results, success_count, status
		FROM scrape_sessions
		ORDER BY start_time DESC
		LIMIT $1`, storage.NormalizeLimit(limit))
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

func (r *SessionRepository) GetSession(ctx context.Context, sessionID string) (*models.ScrapeSession, error) {
	row := r.db.QueryRow(ctx, `
		SELECT session_id, start_time, total_products, total_suppliers, total_results, success_count, status
		FROM scrape_sessions
		WHERE session_id = $1`, sessionID)

	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	return s, err
}

func (r *SessionRepository) GetSessionRecords(ctx context.Context, sessionID string) ([]models.PriceRecord, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT sku, scrape_time, supplier, supplier_id, product_name, price::float8,
			price_formatted, status, url_scraped, currency
		FROM price_data
		WHERE session_id = $1
		ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query price data: %w", err)
	}
	defer rows.Close()

	records := []models.PriceRecord{}
	for rows.Next() {
		var (
			rec    models.PriceRecord
			status string
		)
		err := rows.Scan(&rec.SKU, &rec.ScrapeTime, &rec.Supplier, &rec.SupplierID, &rec.ProductName,
			&rec.Price, &rec.PriceFormatted, &status, &rec.URLScraped, &rec.Currency)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price data: %w", err)
		}
		if rec.Status, err = models.ParseRecordStatus(status); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price data: %w", err)
	}
	return records, nil
}

// Close is a no-op; the pool belongs to the caller.
func (r *SessionRepository) Close() error {
	return nil
}

func scanSession(row pgx.Row) (*models.ScrapeSession, error) {
	var (
		s      models.ScrapeSession
		status string
	)
	err := row.Scan(&s.SessionID, &s.StartTime, &s.TotalProducts, &s.TotalSuppliers, &s.TotalResults, &s.SuccessCount, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	s.Status = models.SessionStatus(status)
	return &s, nil
}
