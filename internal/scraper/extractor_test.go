package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/vn-price-scraper/internal/models"
)

var testTiming = Timing{Navigation: time.Second, Settle: time.Second}

func TestDienMayXanhExtract(t *testing.T) {
	ex := NewDienMayXanh(testTiming, testLogger())
	url := ex.SearchURL("BOSCH123")

	tests := []struct {
		name      string
		html      string
		wantFound bool
		wantName  string
		wantRaw   float64
		wantPrice string
		wantBrand string
	}{
		{
			name: "data price",
			html: `<div class="listproduct">
				<a data-name="Máy rửa bát Bosch BOSCH123" data-price="1710000" data-brand="Bosch" data-cate="Máy rửa chén">x</a>
			</div>`,
			wantFound: true,
			wantName:  "Máy rửa bát Bosch BOSCH123",
			wantRaw:   1710000,
			wantPrice: "1.710.000₫",
			wantBrand: "Bosch",
		},
		{
			name: "price text fallback",
			html: `<div class="item" data-name="Lò nướng Bosch BOSCH123">
				<strong class="price">10.710.000₫</strong>
			</div>`,
			wantFound: true,
			wantName:  "Lò nướng Bosch BOSCH123",
			wantRaw:   10710000,
			wantPrice: "10.710.000₫",
		},
		{
			name: "brand only match",
			html: `<a data-name="Bếp từ BOSCH PUC631BB5E" data-price="15990000">x</a>`,
			wantFound: true,
			wantName:  "Bếp từ BOSCH PUC631BB5E",
			wantRaw:   15990000,
			wantPrice: "15.990.000₫",
		},
		{
			name: "implausible candidate skipped",
			html: `<a data-name="Phụ kiện BOSCH123" data-price="50000">x</a>
				<a data-name="Máy sấy BOSCH123" data-price="2500000">y</a>`,
			wantFound: true,
			wantName:  "Máy sấy BOSCH123",
			wantRaw:   2500000,
			wantPrice: "2.500.000₫",
		},
		{
			name: "no matching name",
			html: `<a data-name="Tủ lạnh Samsung RT20" data-price="5000000">x</a>`,
		},
		{
			name: "no containers",
			html: `<div class="noresult">Không tìm thấy</div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage(map[string]string{url: tt.html})
			got := ex.Extract(context.Background(), page, "BOSCH123")

			assert.Equal(t, "Điện Máy Xanh", got.Website)
			assert.Equal(t, "BOSCH123", got.SKU)
			if !tt.wantFound {
				assert.Equal(t, models.ExtractionNotFound, got.Status)
				assert.Nil(t, got.Name)
				assert.Nil(t, got.RawPrice)
				return
			}

			assert.Equal(t, models.ExtractionAvailable, got.Status)
			require.NotNil(t, got.Name)
			assert.Equal(t, tt.wantName, *got.Name)
			require.NotNil(t, got.RawPrice)
			assert.Equal(t, tt.wantRaw, *got.RawPrice)
			require.NotNil(t, got.Price)
			assert.Equal(t, tt.wantPrice, *got.Price)
			if tt.wantBrand != "" {
				require.NotNil(t, got.Brand)
				assert.Equal(t, tt.wantBrand, *got.Brand)
			}
		})
	}
}

func TestDienMayXanhNavigationFailure(t *testing.T) {
	ex := NewDienMayXanh(testTiming, testLogger())
	page := newFakePage(nil)
	page.gotoErr[ex.SearchURL("BOSCH123")] = errNavigation

	got := ex.Extract(context.Background(), page, "BOSCH123")
	assert.Equal(t, models.ExtractionConnectionError, got.Status)
	assert.Nil(t, got.Name)
}

func TestWellHomeExtract(t *testing.T) {
	ex := NewWellHome(testTiming, testLogger())
	url := ex.SearchURL("BOSCH123")

	tests := []struct {
		name      string
		html      string
		wantFound bool
		wantName  *string
		wantPrice string
		wantRaw   *float64
	}{
		{
			name:      "name and price",
			html:      `<div class="product-inner"><h3> Máy hút mùi Bosch BOSCH123 </h3><span class="price">8.490.000₫</span></div>`,
			wantFound: true,
			wantName:  models.StringPtr("Máy hút mùi Bosch BOSCH123"),
			wantPrice: "8.490.000₫",
			wantRaw:   models.Float64Ptr(8490000),
		},
		{
			name:      "price hidden",
			html:      `<div class="product-inner"><h3>Bosch BOSCH123</h3></div>`,
			wantFound: true,
			wantName:  models.StringPtr("Bosch BOSCH123"),
			wantPrice: "Không hiển thị",
		},
		{
			name:      "price below threshold",
			html:      `<div class="product-inner"><h3>Bosch BOSCH123</h3><span class="price">99.000₫</span></div>`,
			wantFound: true,
			wantName:  models.StringPtr("Bosch BOSCH123"),
			wantPrice: "99.000₫",
		},
		{
			name:      "missing name",
			html:      `<div class="product-inner"><span class="price">8.490.000₫</span></div>`,
			wantFound: true,
			wantPrice: "8.490.000₫",
			wantRaw:   models.Float64Ptr(8490000),
		},
		{
			name: "no product block",
			html: `<div class="search-empty">Không có kết quả</div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage(map[string]string{url: tt.html})
			got := ex.Extract(context.Background(), page, "BOSCH123")

			if !tt.wantFound {
				assert.Equal(t, models.ExtractionNotFound, got.Status)
				return
			}
			assert.Equal(t, models.ExtractionAvailable, got.Status)
			assert.Equal(t, tt.wantName, got.Name)
			require.NotNil(t, got.Price)
			assert.Equal(t, tt.wantPrice, *got.Price)
			assert.Equal(t, tt.wantRaw, got.RawPrice)
			assert.Equal(t, "Bosch", *got.Brand)
			assert.Equal(t, "Gia dụng", *got.Category)
		})
	}
}

func TestQuangHanhExtract(t *testing.T) {
	ex := NewQuangHanh(testTiming, testLogger())
	url := ex.SearchURL("BOSCH123")

	tests := []struct {
		name      string
		html      string
		wantFound bool
		wantName  string
		wantRaw   *float64
	}{
		{
			name:      "price without title",
			html:      `<div class="item"><span class="prPrice">2,500,000đ</span></div>`,
			wantFound: true,
			wantName:  "Sản phẩm BOSCH123",
			wantRaw:   models.Float64Ptr(2500000),
		},
		{
			name:      "title next to price",
			html:      `<div class="item"><h3>Máy giặt Bosch BOSCH123</h3><span class="prPrice">12.990.000đ</span></div>`,
			wantFound: true,
			wantName:  "Máy giặt Bosch BOSCH123",
			wantRaw:   models.Float64Ptr(12990000),
		},
		{
			name:      "contact price",
			html:      `<div class="item"><div class="title">Bosch BOSCH123</div><span class="prPrice">Liên hệ</span></div>`,
			wantFound: true,
			wantName:  "Bosch BOSCH123",
		},
		{
			name: "empty price element",
			html: `<div class="item"><span class="prPrice">  </span></div>`,
		},
		{
			name: "no price element",
			html: `<div class="empty"></div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage(map[string]string{url: tt.html})
			got := ex.Extract(context.Background(), page, "BOSCH123")

			if !tt.wantFound {
				assert.Equal(t, models.ExtractionNotFound, got.Status)
				assert.Nil(t, got.Name)
				return
			}
			assert.Equal(t, models.ExtractionAvailable, got.Status)
			require.NotNil(t, got.Name)
			assert.Equal(t, tt.wantName, *got.Name)
			assert.Equal(t, tt.wantRaw, got.RawPrice)
		})
	}
}

func TestSearchURLsEscapeSKU(t *testing.T) {
	logger := testLogger()
	assert.Equal(t, "https://www.dienmayxanh.com/search?key=SMS+46", NewDienMayXanh(testTiming, logger).SearchURL("SMS 46"))
	assert.Equal(t, "https://wellhome.asia/search?type=product&q=A%26B", NewWellHome(testTiming, logger).SearchURL("A&B"))
	assert.Equal(t, "https://dienmayquanghanh.com/tu-khoa?q=BOSCH123", NewQuangHanh(testTiming, logger).SearchURL("BOSCH123"))
}
