package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/vn-price-scraper/internal/browser"
	"github.com/maltedev/vn-price-scraper/internal/models"
)

// Site describes one supplier website.
type Site struct {
	// Name is the display name written to records.
	Name string
	// Token is matched against catalog supplier names to resolve the supplier id.
	Token string
	// DefaultID is used when no catalog supplier matches Token.
	DefaultID string
}

// Extractor looks a SKU up on one supplier. Extract never returns an error:
// missing markup is ExtractionNotFound, navigation and page failures are
// ExtractionConnectionError.
type Extractor interface {
	Site() Site
	SearchURL(sku string) string
	Extract(ctx context.Context, page browser.Page, sku string) models.Extraction
}

// Timing bounds the page operations of an extractor.
type Timing struct {
	Navigation time.Duration
	// Settle is how long to wait for the result markup after navigation.
	Settle time.Duration
}

// fetchDocument navigates, waits for selector and snapshots the document.
// A nil document with a nil error means the selector never showed up.
func fetchDocument(ctx context.Context, page browser.Page, url string, until browser.WaitUntil, timing Timing, selector string) (*goquery.Document, error) {
	if err := page.Goto(ctx, url, until, timing.Navigation); err != nil {
		return nil, err
	}

	present, err := page.WaitForSelector(ctx, selector, timing.Settle)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}

	html, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func connectionError(logger *slog.Logger, site Site, sku string, err error) models.Extraction {
	logger.Error("scrape failed", "supplier", site.Name, "sku", sku, "error", err)
	return models.NewEmptyExtraction(site.Name, sku, models.ExtractionConnectionError)
}

func notFound(logger *slog.Logger, site Site, sku string) models.Extraction {
	logger.Info("no product found", "supplier", site.Name, "sku", sku)
	return models.NewEmptyExtraction(site.Name, sku, models.ExtractionNotFound)
}

func attr(sel *goquery.Selection, name string) *string {
	v, ok := sel.Attr(name)
	if !ok {
		return nil
	}
	return &v
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}
