package storage

import (
	"context"
	"errors"

	"github.com/maltedev/vn-price-scraper/internal/models"
)

// ErrSessionNotFound is returned by readers for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// DefaultListLimit caps ListSessions when the caller passes no limit.
const DefaultListLimit = 100

// Store persists a finished session together with its records as one unit.
type Store interface {
	SaveSession(ctx context.Context, session *models.ScrapeSession, records []models.PriceRecord) error
	Close() error
}

// Reader serves persisted sessions, newest first.
type Reader interface {
	ListSessions(ctx context.Context, limit int) ([]*models.ScrapeSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.ScrapeSession, error)
	GetSessionRecords(ctx context.Context, sessionID string) ([]models.PriceRecord, error)
}

// Backend is a store that can also be read back.
type Backend interface {
	Store
	Reader
}

// NormalizeLimit applies DefaultListLimit to non-positive limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
