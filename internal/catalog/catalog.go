// Package catalog supplies the products to look up and the supplier
// directory used to resolve supplier ids.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/maltedev/vn-price-scraper/internal/models"
)

// Catalog is read once at the start of a run.
type Catalog interface {
	Products(ctx context.Context) ([]models.Product, error)
	Suppliers(ctx context.Context) ([]models.Supplier, error)
}

// Static serves a catalog held in memory, e.g. one supplied with a request.
type Static struct {
	products  []models.Product
	suppliers []models.Supplier
}

func NewStatic(products []models.Product, suppliers []models.Supplier) *Static {
	return &Static{products: products, suppliers: suppliers}
}

func (s *Static) Products(ctx context.Context) ([]models.Product, error) {
	return append([]models.Product(nil), s.products...), nil
}

func (s *Static) Suppliers(ctx context.Context) ([]models.Supplier, error) {
	return append([]models.Supplier(nil), s.suppliers...), nil
}

// ValidateProducts rejects empty and duplicate product codes.
func ValidateProducts(products []models.Product) error {
	seen := make(map[string]struct{}, len(products))
	for i, p := range products {
		code := strings.TrimSpace(p.Code)
		if code == "" {
			return fmt.Errorf("product %d has an empty code", i)
		}
		if _, ok := seen[code]; ok {
			return fmt.Errorf("duplicate product code %q", code)
		}
		seen[code] = struct{}{}
	}
	return nil
}
