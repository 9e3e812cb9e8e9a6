package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/vn-price-scraper/internal/browser"
	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/ratelimit"
)

// Result is the output of one orchestrator run.
type Result struct {
	Records []models.PriceRecord `json:"records"`
	Summary models.Summary       `json:"summary"`
}

// Orchestrator runs every extractor for every product, strictly in sequence,
// on a single page. The browser is launched per run and closed on every exit path.
type Orchestrator struct {
	launcher   browser.Launcher
	extractors []Extractor
	pacer      ratelimit.Pacer
	now        func() time.Time
	logger     *slog.Logger
}

func NewOrchestrator(launcher browser.Launcher, extractors []Extractor, pacer ratelimit.Pacer, logger *slog.Logger) *Orchestrator {
	if pacer == nil {
		pacer = ratelimit.NoDelay{}
	}
	return &Orchestrator{
		launcher:   launcher,
		extractors: extractors,
		pacer:      pacer,
		now:        time.Now,
		logger:     logger.With("component", "orchestrator"),
	}
}

// DefaultExtractors returns the supported suppliers in invocation order.
func DefaultExtractors(dmx, wh, qh Timing, logger *slog.Logger) []Extractor {
	return []Extractor{
		NewDienMayXanh(dmx, logger),
		NewWellHome(wh, logger),
		NewQuangHanh(qh, logger),
	}
}

// Run scrapes products. Records come back grouped by product in catalog order,
// each group in extractor order. Any returned error discards the records.
func (o *Orchestrator) Run(ctx context.Context, products []models.Product, suppliers []models.Supplier) (*Result, error) {
	start := o.now()
	o.logger.Info("scrape started", "products", len(products), "suppliers", len(o.extractors))

	session, err := o.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			o.logger.Warn("failed to close browser", "error", err)
		}
	}()

	page, err := session.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	records := make([]models.PriceRecord, 0, len(products)*len(o.extractors))
	for _, product := range products {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scrape aborted: %w", err)
		}

		sku := product.Code
		o.logger.Info("processing sku", "sku", sku)

		for _, ex := range o.extractors {
			site := ex.Site()
			raw := o.extract(ctx, ex, page, sku)
			record := Classify(raw, ResolveSupplierID(site, suppliers), ex.SearchURL(sku), o.now())

			o.logger.Debug("pair classified",
				"sku", sku,
				"supplier", site.Name,
				"extraction", raw.Status.String(),
				"status", record.Status.String(),
			)
			records = append(records, record)
		}

		if err := o.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("scrape aborted: %w", err)
		}
	}

	summary := o.summarize(start, products, suppliers, records)
	o.logSummary(summary)

	return &Result{Records: records, Summary: summary}, nil
}

// extract shields the run from a panicking extractor.
func (o *Orchestrator) extract(ctx context.Context, ex Extractor, page browser.Page, sku string) (raw models.Extraction) {
	site := ex.Site()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("extractor panicked", "supplier", site.Name, "sku", sku, "panic", r)
			raw = models.NewEmptyExtraction(site.Name, sku, models.ExtractionConnectionError)
		}
	}()
	return ex.Extract(ctx, page, sku)
}

func (o *Orchestrator) summarize(start time.Time, products []models.Product, suppliers []models.Supplier, records []models.PriceRecord) models.Summary {
	summary := models.Summary{
		StartTime:      start,
		TotalProducts:  len(products),
		TotalSuppliers: len(suppliers),
		TotalResults:   len(records),
		PerSupplier:    make([]models.SupplierSummary, 0, len(o.extractors)),
	}

	index := make(map[string]int, len(o.extractors))
	for _, ex := range o.extractors {
		name := ex.Site().Name
		index[name] = len(summary.PerSupplier)
		summary.PerSupplier = append(summary.PerSupplier, models.SupplierSummary{
			Supplier:  name,
			Attempted: len(products),
		})
	}

	for _, r := range records {
		if r.Status != models.StatusFoundWithPrice {
			continue
		}
		summary.SuccessCount++
		if i, ok := index[r.Supplier]; ok {
			summary.PerSupplier[i].SuccessCount++
		}
	}

	return summary
}

func (o *Orchestrator) logSummary(s models.Summary) {
	for _, ps := range s.PerSupplier {
		o.logger.Info("supplier summary",
			"supplier", ps.Supplier,
			"success", fmt.Sprintf("%d/%d", ps.SuccessCount, ps.Attempted),
		)
	}
	o.logger.Info("scrape finished",
		"success", fmt.Sprintf("%d/%d", s.SuccessCount, s.TotalProducts*len(o.extractors)),
		"results", s.TotalResults,
		"duration", o.now().Sub(s.StartTime),
	)
}
