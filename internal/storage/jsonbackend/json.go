package jsonbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// sessionFile is the on-disk layout of one session.
type sessionFile struct {
	Session models.ScrapeSession `json:"session"`
	Records []recordEntry        `json:"records"`
}

type recordEntry struct {
	Key string `json:"key"`
	models.PriceRecord
}

type jsonBackend struct {
	mu  sync.RWMutex
	dir string
}

// New stores every session as <dir>/<session_id>.json.
func New(dir string) (storage.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &jsonBackend{dir: dir}, nil
}

func (b *jsonBackend) SaveSession(ctx context.Context, session *models.ScrapeSession, records []models.PriceRecord) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.ContainsAny(session.SessionID, `/\`) {
		return fmt.Errorf("invalid session id %q", session.SessionID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	file := sessionFile{Session: *session, Records: make([]recordEntry, len(records))}
	for i, r := range records {
		file.Records[i] = recordEntry{Key: models.RecordKey(session.SessionID, i), PriceRecord: r}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Write to temp file first for atomicity
	path := b.path(session.SessionID)
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	if err := os.Rename(tmpFile, path); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func (b *jsonBackend) ListSessions(ctx context.Context, limit int) ([]*models.ScrapeSession, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var sessions []*models.ScrapeSession
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		file, err := b.load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		s := file.Session
		sessions = append(sessions, &s)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})

	if limit = storage.NormalizeLimit(limit); len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (b *jsonBackend) GetSession(ctx context.Context, sessionID string) (*models.ScrapeSession, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	file, err := b.load(sessionID)
	if err != nil {
		return nil, err
	}
	return &file.Session, nil
}

func (b *jsonBackend) GetSessionRecords(ctx context.Context, sessionID string) ([]models.PriceRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	file, err := b.load(sessionID)
	if err != nil {
		return nil, err
	}

	records := make([]models.PriceRecord, len(file.Records))
	for i, r := range file.Records {
		records[i] = r.PriceRecord
	}
	return records, nil
}

func (b *jsonBackend) Close() error {
	return nil
}

func (b *jsonBackend) load(sessionID string) (*sessionFile, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) {
		return nil, storage.ErrSessionNotFound
	}

	data, err := os.ReadFile(b.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &file, nil
}

func (b *jsonBackend) path(sessionID string) string {
	return filepath.Join(b.dir, sessionID+".json")
}
