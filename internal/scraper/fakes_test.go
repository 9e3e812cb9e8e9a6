package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/vn-price-scraper/internal/browser"
	"github.com/maltedev/vn-price-scraper/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePage serves canned HTML per URL.
type fakePage struct {
	pages   map[string]string
	gotoErr map[string]error
	current string
	visited []string
}

func newFakePage(pages map[string]string) *fakePage {
	return &fakePage{pages: pages, gotoErr: map[string]error{}}
}

func (p *fakePage) Goto(ctx context.Context, url string, _ browser.WaitUntil, _ time.Duration) error {
	p.visited = append(p.visited, url)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := p.gotoErr[url]; ok {
		return err
	}
	p.current = p.pages[url]
	return nil
}

func (p *fakePage) WaitForSelector(_ context.Context, selector string, _ time.Duration) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.current))
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

func (p *fakePage) Content(context.Context) (string, error) {
	return p.current, nil
}

func (p *fakePage) Close() error { return nil }

type fakeSession struct {
	page       browser.Page
	newPageErr error

	mu     sync.Mutex
	closed int
}

func (s *fakeSession) NewPage() (browser.Page, error) {
	if s.newPageErr != nil {
		return nil, s.newPageErr
	}
	return s.page, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeLauncher struct {
	session   *fakeSession
	launchErr error
	launches  int
}

func (l *fakeLauncher) Launch(context.Context) (browser.Session, error) {
	l.launches++
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return l.session, nil
}

// stubExtractor returns a fixed extraction, or panics when told to.
type stubExtractor struct {
	site   Site
	result func(sku string) models.Extraction
	panics bool
	calls  []string
}

func (e *stubExtractor) Site() Site { return e.site }

func (e *stubExtractor) SearchURL(sku string) string {
	return "https://" + e.site.DefaultID + ".example/search?q=" + sku
}

func (e *stubExtractor) Extract(_ context.Context, _ browser.Page, sku string) models.Extraction {
	e.calls = append(e.calls, sku)
	if e.panics {
		panic("boom")
	}
	if e.result != nil {
		return e.result(sku)
	}
	return models.NewEmptyExtraction(e.site.Name, sku, models.ExtractionNotFound)
}

var errNavigation = errors.New("net::ERR_NAME_NOT_RESOLVED")
