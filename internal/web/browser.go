package web

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"prospector/internal/logging"
)

// BrowserFetcher renders JS-heavy pages with a headless browser. It is an
// optional supplement to the plain HTTP fetcher; many prospect sites are
// client-side rendered and return empty shells to a static fetch.
type BrowserFetcher struct {
	mu      sync.Mutex
	browser *rod.Browser
	timeout time.Duration
}

// NewBrowserFetcher launches a headless browser and connects to it.
func NewBrowserFetcher(timeout time.Duration) (*BrowserFetcher, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logging.Web("Headless browser launched for dynamic page rendering")
	return &BrowserFetcher{
		browser: browser,
		timeout: timeout,
	}, nil
}

// FetchHTML navigates to the URL, waits for the page to load, and returns
// the rendered HTML. Pages are opened and closed serially; the agent's
// cycles are sequential, so there is no need for a page pool.
func (b *BrowserFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(b.timeout)
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("page load failed: %w", err)
	}

	content, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read rendered HTML: %w", err)
	}
	return content, nil
}

// Close shuts down the browser.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
