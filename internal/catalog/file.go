package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/vn-price-scraper/internal/models"
)

// fileCatalog is the on-disk layout:
//
//	products:
//	  - code: SMS46GI01P
//	suppliers:
//	  - id: dmx
//	    name: Điện Máy Xanh
type fileCatalog struct {
	Products  []models.Product  `yaml:"products"`
	Suppliers []models.Supplier `yaml:"suppliers"`
}

// File reads the catalog from a YAML file. The file is re-read on every call
// so edits apply to the next run without a restart.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Products(ctx context.Context) ([]models.Product, error) {
	c, err := f.load()
	if err != nil {
		return nil, err
	}
	return c.Products, nil
}

func (f *File) Suppliers(ctx context.Context) ([]models.Supplier, error) {
	c, err := f.load()
	if err != nil {
		return nil, err
	}
	return c.Suppliers, nil
}

func (f *File) load() (*fileCatalog, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return parseFile(data)
}

func parseFile(data []byte) (*fileCatalog, error) {
	var c fileCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	for i := range c.Products {
		c.Products[i].Code = strings.TrimSpace(c.Products[i].Code)
	}
	if err := ValidateProducts(c.Products); err != nil {
		return nil, err
	}
	return &c, nil
}
