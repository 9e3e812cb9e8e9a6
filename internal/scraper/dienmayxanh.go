package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/vn-price-scraper/internal/browser"
	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/parser"
)

const (
	dmxContainerSelector = "a[data-name], .item[data-name]"
	dmxPriceTextSelector = "strong.price, .price strong"
	// dmxBrandToken also accepts listings whose name omits the full SKU.
	dmxBrandToken = "BOSCH"
)

// DienMayXanh scrapes dienmayxanh.com. The search page renders its listing
// asynchronously, every candidate carries its name and price as data attributes.
type DienMayXanh struct {
	timing Timing
	logger *slog.Logger
}

func NewDienMayXanh(timing Timing, logger *slog.Logger) *DienMayXanh {
	return &DienMayXanh{
		timing: timing,
		logger: logger.With("component", "extractor", "supplier", "dmx"),
	}
}

func (e *DienMayXanh) Site() Site {
	return Site{Name: "Điện Máy Xanh", Token: "Điện Máy Xanh", DefaultID: "dmx"}
}

func (e *DienMayXanh) SearchURL(sku string) string {
	return "https://www.dienmayxanh.com/search?key=" + url.QueryEscape(sku)
}

func (e *DienMayXanh) Extract(ctx context.Context, page browser.Page, sku string) models.Extraction {
	site := e.Site()
	e.logger.Info("scraping", "sku", sku)

	doc, err := fetchDocument(ctx, page, e.SearchURL(sku), browser.WaitNetworkIdle, e.timing, dmxContainerSelector)
	if err != nil {
		return connectionError(e.logger, site, sku, err)
	}
	if doc == nil {
		return notFound(e.logger, site, sku)
	}

	result, ok := parseDienMayXanh(doc, site.Name, sku)
	if !ok {
		return notFound(e.logger, site, sku)
	}

	e.logger.Info("product found", "sku", sku, "name", *result.Name, "price", *result.Price, "raw_price", *result.RawPrice)
	return result
}

// parseDienMayXanh accepts the first container whose name mentions the SKU or
// the brand token and whose price clears the plausibility threshold.
func parseDienMayXanh(doc *goquery.Document, website, sku string) (models.Extraction, bool) {
	wantSKU := strings.ToUpper(sku)
	var result models.Extraction
	found := false

	doc.Find(dmxContainerSelector).EachWithBreak(func(_ int, container *goquery.Selection) bool {
		name, _ := container.Attr("data-name")
		upper := strings.ToUpper(name)
		if name == "" || (!strings.Contains(upper, wantSKU) && !strings.Contains(upper, dmxBrandToken)) {
			return true
		}

		price, ok := dmxContainerPrice(container)
		if !ok || !parser.IsPlausible(price) {
			return true
		}

		result = models.Extraction{
			Website:  website,
			SKU:      sku,
			Name:     &name,
			Price:    models.StringPtr(parser.FormatVND(price)),
			RawPrice: models.Float64Ptr(price),
			Brand:    attr(container, "data-brand"),
			Category: attr(container, "data-cate"),
			Status:   models.ExtractionAvailable,
		}
		found = true
		return false
	})

	return result, found
}

// dmxContainerPrice prefers the numeric data-price attribute and falls back to
// the displayed price text.
func dmxContainerPrice(container *goquery.Selection) (float64, bool) {
	if raw, ok := container.Attr("data-price"); ok {
		if price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && parser.IsPlausible(price) {
			return price, true
		}
	}

	priceEl := container.Find(dmxPriceTextSelector).First()
	if priceEl.Length() == 0 {
		return 0, false
	}
	return parser.ParsePrice(text(priceEl))
}
