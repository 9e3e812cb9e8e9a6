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
	whProductSelector = ".product-inner"
	whPriceMissing    = "Không hiển thị"
)

// WellHome only lists Bosch appliances, so brand and category are fixed. The
// search lands on a single product block or none.
type WellHome struct {
	timing Timing
	logger *slog.Logger
}

func NewWellHome(timing Timing, logger *slog.Logger) *WellHome {
	return &WellHome{
		timing: timing,
		logger: logger.With("component", "extractor", "supplier", "wh"),
	}
}

func (e *WellHome) Site() Site {
	return Site{Name: "WellHome", Token: "WellHome", DefaultID: "wh"}
}

func (e *WellHome) SearchURL(sku string) string {
	return "https://wellhome.asia/search?type=product&q=" + url.QueryEscape(sku)
}

func (e *WellHome) Extract(ctx context.Context, page browser.Page, sku string) models.Extraction {
	site := e.Site()
	e.logger.Info("scraping", "sku", sku)

	doc, err := fetchDocument(ctx, page, e.SearchURL(sku), browser.WaitLoad, e.timing, whProductSelector)
	if err != nil {
		return connectionError(e.logger, site, sku, err)
	}
	if doc == nil {
		return notFound(e.logger, site, sku)
	}

	result, ok := parseWellHome(doc, site.Name, sku)
	if !ok {
		return notFound(e.logger, site, sku)
	}

	e.logger.Info("product found", "sku", sku, "name", deref(result.Name), "price", deref(result.Price))
	return result
}

func parseWellHome(doc *goquery.Document, website, sku string) (models.Extraction, bool) {
	product := doc.Find(whProductSelector).First()
	if product.Length() == 0 {
		return models.Extraction{}, false
	}

	var name *string
	if nameEl := product.Find("h3").First(); nameEl.Length() > 0 {
		n := text(nameEl)
		name = &n
	}

	price := whPriceMissing
	if priceEl := product.Find("span.price").First(); priceEl.Length() > 0 {
		price = text(priceEl)
	}

	return models.Extraction{
		Website:  website,
		SKU:      sku,
		Name:     name,
		Price:    &price,
		RawPrice: parser.PlausiblePrice(price),
		Brand:    models.StringPtr("Bosch"),
		Category: models.StringPtr("Gia dụng"),
		Status:   models.ExtractionAvailable,
	}, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
