package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/scraper"
	"github.com/maltedev/vn-price-scraper/internal/storage"
)

// ScrapeService is the part of scraper.Service the handlers call.
type ScrapeService interface {
	Scrape(ctx context.Context, products []models.Product, suppliers []models.Supplier) (*scraper.Result, error)
	RunScheduled(ctx context.Context) (*models.ScrapeSession, *scraper.Result, error)
}

// OutboxStats reports the relay backlog for the health check.
type OutboxStats interface {
	Backlog(ctx context.Context) (pending, deadLetter int64, err error)
}

type Handlers struct {
	service  ScrapeService
	sessions storage.Reader
	outbox   OutboxStats
	now      func() time.Time
	logger   *slog.Logger
}

// NewHandlers creates the handlers. outbox may be nil when the relay is off.
func NewHandlers(service ScrapeService, sessions storage.Reader, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		service:  service,
		sessions: sessions,
		outbox:   outbox,
		now:      time.Now,
		logger:   logger.With("component", "api"),
	}
}

// ScrapeRequest carries an ad-hoc catalog
type ScrapeRequest struct {
	Products  []models.Product  `json:"products"`
	Suppliers []models.Supplier `json:"suppliers"`
}

// AutoScrapeResponse describes a persisted run
type AutoScrapeResponse struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Summary   models.Summary `json:"summary"`
}

// Health reports liveness and, with the relay enabled, the outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.outbox != nil {
		pending, deadLetter, err := h.outbox.Backlog(r.Context())
		health["outbox"] = map[string]interface{}{
			"pending":     pending,
			"dead_letter": deadLetter,
		}

		switch {
		case err != nil:
			h.logger.Error("failed to read outbox backlog", "error", err)
			health["status"] = "error"
			health["message"] = "Outbox unavailable"
			status = http.StatusServiceUnavailable
		case deadLetter > 100:
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		case pending > 1000:
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
	}

	h.respondJSON(w, status, health)
}

// Scrape runs over the products and suppliers in the body and returns the
// records without persisting them.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Scrape(r.Context(), req.Products, req.Suppliers)
	if err != nil {
		h.respondServiceError(w, "scrape", err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// AutoScrape runs over the configured catalog and persists the session.
func (h *Handlers) AutoScrape(w http.ResponseWriter, r *http.Request) {
	session, result, err := h.service.RunScheduled(r.Context())
	if err != nil {
		h.respondServiceError(w, "auto scrape", err)
		return
	}

	h.respondJSON(w, http.StatusOK, AutoScrapeResponse{
		Message:   "Auto scrape completed",
		SessionID: session.SessionID,
		Summary:   result.Summary,
	})
}

// ListSessions handles listing sessions, newest first
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessions, err := h.sessions.ListSessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*models.ScrapeSession{}
	}

	h.respondJSON(w, http.StatusOK, sessions)
}

// GetSession handles session retrieval
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		h.respondLookupError(w, sessionID, err)
		return
	}

	h.respondJSON(w, http.StatusOK, session)
}

// GetSessionRecords handles retrieving the records of a session in run order
func (h *Handlers) GetSessionRecords(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	records, err := h.sessions.GetSessionRecords(r.Context(), sessionID)
	if err != nil {
		h.respondLookupError(w, sessionID, err)
		return
	}

	h.respondJSON(w, http.StatusOK, records)
}

func (h *Handlers) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, scraper.ErrRunInProgress):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scraper.ErrInvalidCatalog):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(op+" failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) respondLookupError(w http.ResponseWriter, sessionID string, err error) {
	if errors.Is(err, storage.ErrSessionNotFound) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	h.logger.Error("failed to read session", "session_id", sessionID, "error", err)
	h.respondError(w, http.StatusInternalServerError, "failed to read session")
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
