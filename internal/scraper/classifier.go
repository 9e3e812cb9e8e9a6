package scraper

import (
	"strings"
	"time"

	"github.com/maltedev/vn-price-scraper/internal/models"
)

// Classify maps a raw extraction onto the uniform record. NotFound and
// ConnectionError both end up as no_info; only the logs keep them apart.
func Classify(raw models.Extraction, supplierID, urlScraped string, now time.Time) models.PriceRecord {
	return models.PriceRecord{
		SKU:            raw.SKU,
		ScrapeTime:     now,
		Supplier:       raw.Website,
		SupplierID:     supplierID,
		ProductName:    raw.Name,
		Price:          raw.RawPrice,
		PriceFormatted: raw.Price,
		Status:         recordStatus(raw),
		URLScraped:     urlScraped,
		Currency:       models.Currency,
	}
}

func recordStatus(raw models.Extraction) models.RecordStatus {
	switch {
	case raw.Name == nil:
		return models.StatusNoInfo
	case raw.RawPrice == nil:
		return models.StatusFoundNoPrice
	default:
		return models.StatusFoundWithPrice
	}
}

// ResolveSupplierID returns the id of the first catalog supplier whose name
// contains the site token, or the site's default id.
func ResolveSupplierID(site Site, suppliers []models.Supplier) string {
	for _, s := range suppliers {
		if site.Token == "" || !strings.Contains(s.Name, site.Token) {
			continue
		}
		if s.ID != "" {
			return s.ID
		}
		break
	}
	return site.DefaultID
}
