// Package events defines the messages published after a scrape session is saved.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/vn-price-scraper/internal/database"
	"github.com/maltedev/vn-price-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypePricesScraped is published once per persisted session
	EventTypePricesScraped EventType = "PRICES_SCRAPED"

	aggregateType = "scrape_session"
)

// PricesScrapedPayload represents the payload for PRICES_SCRAPED event.
// Only priced records are listed; the full set stays in price_data.
type PricesScrapedPayload struct {
	EventID       string       `json:"event_id"`
	EventType     string       `json:"event_type"`
	Timestamp     time.Time    `json:"timestamp"`
	SessionID     string       `json:"session_id"`
	StartTime     time.Time    `json:"start_time"`
	TotalProducts int          `json:"total_products"`
	TotalResults  int          `json:"total_results"`
	SuccessCount  int          `json:"success_count"`
	Prices        []PriceQuote `json:"prices"`
	Source        string       `json:"source"`
}

// PriceQuote is one found price.
type PriceQuote struct {
	SKU         string  `json:"sku"`
	SupplierID  string  `json:"supplier_id"`
	ProductName string  `json:"product_name,omitempty"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// NewPricesScrapedPayload summarises a session for downstream consumers.
func NewPricesScrapedPayload(session *models.ScrapeSession, records []models.PriceRecord) *PricesScrapedPayload {
	payload := &PricesScrapedPayload{
		EventID:       uuid.New().String(),
		EventType:     string(EventTypePricesScraped),
		Timestamp:     time.Now(),
		SessionID:     session.SessionID,
		StartTime:     session.StartTime,
		TotalProducts: session.TotalProducts,
		TotalResults:  session.TotalResults,
		SuccessCount:  session.SuccessCount,
		Prices:        []PriceQuote{},
		Source:        "scraper",
	}

	for _, r := range records {
		if r.Status != models.StatusFoundWithPrice || r.Price == nil {
			continue
		}
		quote := PriceQuote{
			SKU:        r.SKU,
			SupplierID: r.SupplierID,
			Amount:     *r.Price,
			Currency:   r.Currency,
		}
		if r.ProductName != nil {
			quote.ProductName = *r.ProductName
		}
		payload.Prices = append(payload.Prices, quote)
	}

	return payload
}

// NewPricesScrapedEvent builds the outbox event for a saved session. It has
// the shape of database.EventFactory.
func NewPricesScrapedEvent(session *models.ScrapeSession, records []models.PriceRecord) (*database.OutboxEvent, error) {
	payload := NewPricesScrapedPayload(session, records)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   session.SessionID,
		EventType:     string(EventTypePricesScraped),
		Payload:       data,
		TargetStream:  database.PriceUpdatesStream,
	}, nil
}

var _ database.EventFactory = NewPricesScrapedEvent
