package email

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"prospector/internal/logging"
	"prospector/internal/web"
)

// ErrNoAddress means no deliverable address could be resolved because the
// prospect has no usable website or domain at all.
var ErrNoAddress = errors.New("no deliverable address for prospect")

// preferredPrefixes orders scraped addresses by mailbox convention; a
// generic inbox is much more likely to be monitored than a random
// personal-looking address found in page text.
var preferredPrefixes = []string{"info@", "contact@", "sales@", "hello@", "support@"}

// contactPaths are tried in order when scraping for contact addresses.
var contactPaths = []string{"", "/contact", "/contact-us", "/about"}

// PageFetcher is the website collaborator used for contact scraping.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*web.Page, error)
}

// AddressResolver finds a destination address for a prospect by scraping
// its website, preferring conventional inboxes and synthesizing
// info@<domain> as a last resort.
type AddressResolver struct {
	fetcher PageFetcher
}

// NewAddressResolver creates a resolver.
func NewAddressResolver(fetcher PageFetcher) *AddressResolver {
	return &AddressResolver{fetcher: fetcher}
}

// Resolve returns a deliverable address for the website. Returns
// ErrNoAddress only when no domain can be derived at all; scrape failures
// degrade to the synthesized info@<domain>.
func (r *AddressResolver) Resolve(ctx context.Context, website string) (string, error) {
	domain := domainOf(website)
	if domain == "" {
		return "", fmt.Errorf("%w: no website", ErrNoAddress)
	}

	var found []string
	for _, path := range contactPaths {
		pageURL := "https://" + domain + path
		page, err := r.fetcher.FetchPage(ctx, pageURL)
		if err != nil {
			logging.EmailDebug("Contact scrape failed for %s: %v", pageURL, err)
			continue
		}
		found = append(found, page.Emails...)
		// The root page plus one contact page is usually enough.
		if len(found) > 0 && path != "" {
			break
		}
	}

	if addr := pickAddress(found, domain); addr != "" {
		logging.EmailDebug("Resolved %s -> %s (scraped)", website, addr)
		return addr, nil
	}

	// Last resort: synthesize the conventional inbox.
	addr := "info@" + domain
	logging.EmailDebug("Resolved %s -> %s (synthesized)", website, addr)
	return addr, nil
}

// pickAddress chooses the best scraped address: preferred prefixes first,
// then any address on the prospect's own domain, then any address at all.
func pickAddress(emails []string, domain string) string {
	if len(emails) == 0 {
		return ""
	}

	lower := make([]string, len(emails))
	for i, e := range emails {
		lower[i] = strings.ToLower(strings.TrimSpace(e))
	}

	for _, prefix := range preferredPrefixes {
		for _, e := range lower {
			if strings.HasPrefix(e, prefix) {
				return e
			}
		}
	}
	for _, e := range lower {
		if strings.HasSuffix(e, "@"+domain) {
			return e
		}
	}
	return lower[0]
}

// domainOf reduces a website URL to its bare domain, or "" if none.
func domainOf(website string) string {
	s := strings.TrimSpace(strings.ToLower(website))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(u.Host, "www.")
	if idx := strings.Index(host, ":"); idx > 0 {
		host = host[:idx]
	}
	if !strings.Contains(host, ".") {
		return ""
	}
	return host
}
