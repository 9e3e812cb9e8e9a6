package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/vn-price-scraper/internal/ratelimit"
)

// WaitUntil is the navigation termination condition.
type WaitUntil int

const (
	WaitLoad WaitUntil = iota
	WaitDOMContentLoaded
	WaitNetworkIdle
)

// Page is the read-only view of a browser tab the extractors work with.
type Page interface {
	// Goto navigates and blocks until the condition holds or timeout expires.
	Goto(ctx context.Context, url string, until WaitUntil, timeout time.Duration) error
	// WaitForSelector polls for selector. Running out of time is reported as
	// present=false with a nil error, other failures as an error.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// Content returns the serialized current document.
	Content(ctx context.Context) (string, error)
	Close() error
}

// Session owns a launched browser for the length of one run.
type Session interface {
	NewPage() (Page, error)
	Close() error
}

// Launcher starts a browser session.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless          bool
	Timeout           time.Duration
	NavigationRetries int
	// RetryDelay grows linearly with each navigation attempt.
	RetryDelay        time.Duration
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
	ProxyServer       string
	ExtraHeaders      map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:          true,
		Timeout:           30 * time.Second,
		NavigationRetries: 1,
		RetryDelay:        time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		AcceptLanguage:    "vi-VN,vi;q=0.9,en;q=0.8",
		TimezoneID:        "Asia/Ho_Chi_Minh",
		Locale:            "vi-VN",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		},
	}
}

// withDefaults fills zero values from DefaultOptions.
func (o *Options) withDefaults() *Options {
	def := DefaultOptions()
	if o == nil {
		return def
	}
	out := *o
	if out.Timeout <= 0 {
		out.Timeout = def.Timeout
	}
	if out.NavigationRetries < 1 {
		out.NavigationRetries = def.NavigationRetries
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = def.RetryDelay
	}
	if out.UserAgent == "" {
		out.UserAgent = def.UserAgent
	}
	if out.ViewportWidth == 0 || out.ViewportHeight == 0 {
		out.ViewportWidth, out.ViewportHeight = def.ViewportWidth, def.ViewportHeight
	}
	if out.AcceptLanguage == "" {
		out.AcceptLanguage = def.AcceptLanguage
	}
	if out.TimezoneID == "" {
		out.TimezoneID = def.TimezoneID
	}
	if out.Locale == "" {
		out.Locale = def.Locale
	}
	if out.ExtraHeaders == nil {
		out.ExtraHeaders = def.ExtraHeaders
	}
	return &out
}

func New(opts *Options) (*Browser, error) {
	opts = opts.withDefaults()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
			"--user-agent=" + opts.UserAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	headers["Accept-Language"] = opts.AcceptLanguage

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

func (b *Browser) NewPage() (Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return &playwrightPage{
		page:       page,
		retries:    b.opts.NavigationRetries,
		retryDelay: b.opts.RetryDelay,
		logger:     b.logger,
	}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

// PlaywrightLauncher launches a Chromium instance per session.
type PlaywrightLauncher struct {
	Options *Options
}

func (l PlaywrightLauncher) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return New(l.Options)
}

type playwrightPage struct {
	page       playwright.Page
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

func (p *playwrightPage) Goto(ctx context.Context, url string, until WaitUntil, timeout time.Duration) error {
	var lastErr error

	for i := 0; i < p.retries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			p.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			if err := ratelimit.Sleep(ctx, time.Duration(i)*p.retryDelay); err != nil {
				return err
			}
		}

		_, err := p.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: waitUntilState(until),
			Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		})
		if err == nil {
			return nil
		}

		lastErr = err
		p.logger.Warn("navigation failed", "url", url, "attempt", i+1, "error", err)
	}

	return fmt.Errorf("navigate to %s: %w", url, lastErr)
}

func (p *playwrightPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return false, nil
	}
	return false, fmt.Errorf("wait for %q: %w", selector, err)
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

func waitUntilState(until WaitUntil) *playwright.WaitUntilState {
	switch until {
	case WaitDOMContentLoaded:
		return playwright.WaitUntilStateDomcontentloaded
	case WaitNetworkIdle:
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateLoad
	}
}
