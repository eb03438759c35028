// Package web implements the external web collaborators: fetching and
// extracting structured text from pages, and searching for prospect
// candidates. All calls carry bounded timeouts so a hung site cannot stall
// an agent cycle.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"prospector/internal/logging"
)

const (
	userAgent   = "Mozilla/5.0 (compatible; prospector/1.0)"
	maxBodySize = 2 << 20 // 2MB
	maxBodyText = 4000    // characters of body text kept per page
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\-\s().]{7,}\d`)
)

// Page is the structured extract of a fetched web page.
type Page struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    string   `json:"keywords"`
	Headings    []string `json:"headings"`
	BodyText    string   `json:"body_text"`
	Emails      []string `json:"emails"`
	Phones      []string `json:"phones"`
}

// Fetcher fetches pages over plain HTTP, optionally falling back to a
// headless browser for pages that render their content with JavaScript.
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	browser    *BrowserFetcher // nil unless browser rendering is enabled
}

// NewFetcher creates a fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

// EnableBrowser attaches a headless-browser fallback for JS-heavy pages.
func (f *Fetcher) EnableBrowser(b *BrowserFetcher) {
	f.browser = b
}

// FetchPage downloads and extracts a page. The browser fallback kicks in
// when the static fetch yields almost no text, which usually means the
// page is client-side rendered.
func (f *Fetcher) FetchPage(ctx context.Context, url string) (*Page, error) {
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}

	raw, err := f.fetchHTML(ctx, url)
	if err != nil {
		if f.browser == nil {
			return nil, err
		}
		logging.WebWarn("Static fetch of %s failed (%v), trying browser", url, err)
		raw, err = f.browser.FetchHTML(ctx, url)
		if err != nil {
			return nil, err
		}
	}

	page := extractPage(url, raw)
	if f.browser != nil && len(page.BodyText) < 200 {
		logging.WebDebug("Thin static content for %s (%d chars), rendering with browser", url, len(page.BodyText))
		if rendered, berr := f.browser.FetchHTML(ctx, url); berr == nil {
			if rich := extractPage(url, rendered); len(rich.BodyText) > len(page.BodyText) {
				page = rich
			}
		}
	}

	logging.Web("Fetched %s: title=%q, %d headings, %d emails", url, page.Title, len(page.Headings), len(page.Emails))
	return page, nil
}

func (f *Fetcher) fetchHTML(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), nil
}

// extractPage pulls title, meta description/keywords, headings, a bounded
// slice of body text, and email/phone-shaped substrings out of raw HTML.
func extractPage(url, rawHTML string) *Page {
	page := &Page{URL: url}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		// Degenerate HTML still gets the regex pass below.
		page.BodyText = truncate(rawHTML, maxBodyText)
	} else {
		var body strings.Builder
		walkNode(doc, page, &body)
		page.BodyText = truncate(collapseWhitespace(body.String()), maxBodyText)
	}

	page.Emails = dedupeStrings(emailPattern.FindAllString(rawHTML, 20))
	page.Phones = dedupeStrings(phonePattern.FindAllString(page.BodyText, 10))
	return page
}

func walkNode(n *html.Node, page *Page, body *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			body.WriteString(text)
			body.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg":
			return
		case "title":
			if page.Title == "" {
				page.Title = strings.TrimSpace(textContent(n))
			}
			return
		case "meta":
			name := strings.ToLower(getAttr(n, "name"))
			content := getAttr(n, "content")
			switch name {
			case "description":
				page.Description = content
			case "keywords":
				page.Keywords = content
			}
			if getAttr(n, "property") == "og:description" && page.Description == "" {
				page.Description = content
			}
			return
		case "h1", "h2", "h3":
			if h := strings.TrimSpace(textContent(n)); h != "" && len(page.Headings) < 20 {
				page.Headings = append(page.Headings, h)
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNode(c, page, body)
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

var multiSpacePattern = regexp.MustCompile(`\s{2,}`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(multiSpacePattern.ReplaceAllString(s, " "))
}

// truncate cuts s to at most max bytes, backing off to a rune boundary so
// a multi-byte character is never split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}
