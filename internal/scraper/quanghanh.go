package scraper

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/vn-price-scraper/internal/browser"
	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/parser"
)

const (
	qhPriceSelector = ".prPrice"
	qhTitleSelector = "h3, .title"
)

// QuangHanh scrapes dienmayquanghanh.com. Results are located through the
// price element because the title is sometimes missing next to it.
type QuangHanh struct {
	timing Timing
	logger *slog.Logger
}

func NewQuangHanh(timing Timing, logger *slog.Logger) *QuangHanh {
	return &QuangHanh{
		timing: timing,
		logger: logger.With("component", "extractor", "supplier", "qh"),
	}
}

func (e *QuangHanh) Site() Site {
	return Site{Name: "Điện Máy Quang Hạnh", Token: "Quang Hạnh", DefaultID: "qh"}
}

func (e *QuangHanh) SearchURL(sku string) string {
	return "https://dienmayquanghanh.com/tu-khoa?q=" + url.QueryEscape(sku)
}

func (e *QuangHanh) Extract(ctx context.Context, page browser.Page, sku string) models.Extraction {
	site := e.Site()
	e.logger.Info("scraping", "sku", sku)

	doc, err := fetchDocument(ctx, page, e.SearchURL(sku), browser.WaitLoad, e.timing, qhPriceSelector)
	if err != nil {
		return connectionError(e.logger, site, sku, err)
	}
	if doc == nil {
		return notFound(e.logger, site, sku)
	}

	result, ok := parseQuangHanh(doc, site.Name, sku)
	if !ok {
		return notFound(e.logger, site, sku)
	}

	e.logger.Info("product found", "sku", sku, "name", deref(result.Name), "price", deref(result.Price))
	return result
}

func parseQuangHanh(doc *goquery.Document, website, sku string) (models.Extraction, bool) {
	priceEl := doc.Find(qhPriceSelector).First()
	if priceEl.Length() == 0 {
		return models.Extraction{}, false
	}

	price := text(priceEl)
	if price == "" {
		return models.Extraction{}, false
	}

	name := "Sản phẩm " + sku
	if titleEl := priceEl.Parent().Find(qhTitleSelector).First(); titleEl.Length() > 0 {
		name = text(titleEl)
	}

	return models.Extraction{
		Website:  website,
		SKU:      sku,
		Name:     &name,
		Price:    &price,
		RawPrice: parser.PlausiblePrice(price),
		Brand:    models.StringPtr("Bosch"),
		Category: models.StringPtr("Gia dụng"),
		Status:   models.ExtractionAvailable,
	}, true
}
