package models

import (
	"fmt"
	"time"
)

// Currency is the only currency the suppliers quote in.
const Currency = "VND"

// Product is a catalog entry. Code is the SKU searched on every supplier.
type Product struct {
	Code string `json:"code" yaml:"code"`
}

// Supplier identifies a target site in the catalog.
type Supplier struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ExtractionStatus is the outcome of a single supplier lookup. The zero
// value is ExtractionNotFound.
type ExtractionStatus int

const (
	ExtractionNotFound ExtractionStatus = iota
	ExtractionAvailable
	ExtractionConnectionError
)

func (s ExtractionStatus) String() string {
	switch s {
	case ExtractionAvailable:
		return "available"
	case ExtractionNotFound:
		return "not_found"
	case ExtractionConnectionError:
		return "connection_error"
	}
	return fmt.Sprintf("ExtractionStatus(%d)", int(s))
}

// Extraction is the raw, supplier specific result for one SKU.
// RawPrice is set only when a price was parsed and passed the plausibility threshold.
type Extraction struct {
	Website  string
	SKU      string
	Name     *string
	Price    *string
	RawPrice *float64
	Brand    *string
	Category *string
	Status   ExtractionStatus
}

// NewEmptyExtraction returns a result with every field null.
func NewEmptyExtraction(website, sku string, status ExtractionStatus) Extraction {
	return Extraction{Website: website, SKU: sku, Status: status}
}

// RecordStatus classifies a PriceRecord. The zero value is invalid and is
// rejected when a record is stored or encoded.
type RecordStatus int

const (
	StatusUnknown RecordStatus = iota
	StatusFoundWithPrice
	StatusFoundNoPrice
	StatusNoInfo
)

func (s RecordStatus) Valid() bool {
	return s >= StatusFoundWithPrice && s <= StatusNoInfo
}

func (s RecordStatus) String() string {
	switch s {
	case StatusFoundWithPrice:
		return "found_with_price"
	case StatusFoundNoPrice:
		return "found_no_price"
	case StatusNoInfo:
		return "no_info"
	}
	return fmt.Sprintf("RecordStatus(%d)", int(s))
}

// ParseRecordStatus is the inverse of RecordStatus.String.
func ParseRecordStatus(s string) (RecordStatus, error) {
	switch s {
	case "found_with_price":
		return StatusFoundWithPrice, nil
	case "found_no_price":
		return StatusFoundNoPrice, nil
	case "no_info":
		return StatusNoInfo, nil
	}
	return StatusUnknown, fmt.Errorf("unknown record status %q", s)
}

func (s RecordStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid record status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *RecordStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseRecordStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PriceRecord is the uniform output row, one per supplier per product.
type PriceRecord struct {
	SKU            string       `json:"sku"`
	ScrapeTime     time.Time    `json:"scrape_time"`
	Supplier       string       `json:"supplier"`
	SupplierID     string       `json:"supplier_id"`
	ProductName    *string      `json:"product_name"`
	Price          *float64     `json:"price"`
	PriceFormatted *string      `json:"price_formatted"`
	Status         RecordStatus `json:"status"`
	URLScraped     string       `json:"url_scraped"`
	Currency       string       `json:"currency"`
}

// SessionStatus is the lifecycle state of a ScrapeSession.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ScrapeSession is the persisted summary of one run.
type ScrapeSession struct {
	SessionID      string        `json:"session_id"`
	StartTime      time.Time     `json:"start_time"`
	TotalProducts  int           `json:"total_products"`
	TotalSuppliers int           `json:"total_suppliers"`
	TotalResults   int           `json:"total_results"`
	SuccessCount   int           `json:"success_count"`
	Status         SessionStatus `json:"status"`
}

// SupplierSummary holds per supplier success counts for a run.
type SupplierSummary struct {
	Supplier     string `json:"supplier"`
	SuccessCount int    `json:"success_count"`
	Attempted    int    `json:"attempted"`
}

// Summary is computed by the orchestrator after a run.
type Summary struct {
	StartTime      time.Time         `json:"start_time"`
	TotalProducts  int               `json:"total_products"`
	TotalSuppliers int               `json:"total_suppliers"`
	TotalResults   int               `json:"total_results"`
	SuccessCount   int               `json:"success_count"`
	PerSupplier    []SupplierSummary `json:"per_supplier"`
}

// RecordKey is the storage key of the index-th record of a session.
func RecordKey(sessionID string, index int) string {
	return fmt.Sprintf("%s_%d", sessionID, index)
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
