package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/maltedev/vn-price-scraper/internal/catalog"
	"github.com/maltedev/vn-price-scraper/internal/lock"
	"github.com/maltedev/vn-price-scraper/internal/models"
	"github.com/maltedev/vn-price-scraper/internal/storage"
)

var (
	// ErrRunInProgress is returned when another run holds the run lock.
	ErrRunInProgress = errors.New("scrape run already in progress")
	// ErrInvalidCatalog wraps catalog validation failures.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

type runner interface {
	Run(ctx context.Context, products []models.Product, suppliers []models.Supplier) (*Result, error)
}

// Service is the single entry point shared by the HTTP API, the scheduler
// and the one-shot command.
type Service struct {
	runner  runner
	catalog catalog.Catalog
	store   storage.Store
	locker  lock.Locker
	newID   func() string
	logger  *slog.Logger
}

func NewService(orchestrator *Orchestrator, cat catalog.Catalog, store storage.Store, locker lock.Locker, logger *slog.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Service{
		runner:  orchestrator,
		catalog: cat,
		store:   store,
		locker:  locker,
		newID:   uuid.NewString,
		logger:  logger.With("component", "scrape-service"),
	}
}

// Scrape runs over a caller-supplied catalog and returns the records
// without persisting them.
func (s *Service) Scrape(ctx context.Context, products []models.Product, suppliers []models.Supplier) (*Result, error) {
	if err := catalog.ValidateProducts(products); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.runner.Run(ctx, products, suppliers)
}

// RunScheduled loads the configured catalog, scrapes it and persists the
// session with its records as one unit. Nothing is written on failure.
func (s *Service) RunScheduled(ctx context.Context) (*models.ScrapeSession, *Result, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	products, err := s.catalog.Products(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load products: %w", err)
	}
	suppliers, err := s.catalog.Suppliers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load suppliers: %w", err)
	}
	s.logger.Info("catalog loaded", "products", len(products), "suppliers", len(suppliers))

	result, err := s.runner.Run(ctx, products, suppliers)
	if err != nil {
		return nil, nil, err
	}

	session := &models.ScrapeSession{
		SessionID:      s.newID(),
		StartTime:      result.Summary.StartTime,
		TotalProducts:  result.Summary.TotalProducts,
		TotalSuppliers: result.Summary.TotalSuppliers,
		TotalResults:   result.Summary.TotalResults,
		SuccessCount:   result.Summary.SuccessCount,
		Status:         models.SessionCompleted,
	}

	if err := s.store.SaveSession(ctx, session, result.Records); err != nil {
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("session saved",
		"session_id", session.SessionID,
		"results", session.TotalResults,
		"success", session.SuccessCount,
	)
	return session, result, nil
}

func (s *Service) acquire(ctx context.Context) (func(), error) {
	release, err := s.locker.TryAcquire(ctx)
	if errors.Is(err, lock.ErrHeld) {
		s.logger.Warn("rejecting run, another run is in progress")
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	return release, nil
}
