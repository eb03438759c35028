package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Acme Widgets - Industrial Widgets</title>
  <meta name="description" content="Acme makes industrial widgets for manufacturers.">
  <meta name="keywords" content="widgets, industrial, manufacturing">
  <script>var tracking = {"nothing": true};</script>
  <style>.hero { color: red; }</style>
</head>
<body>
  <h1>Industrial Widgets Since 1985</h1>
  <h2>Trusted by 500 manufacturers</h2>
  <p>We build widgets that last. Contact us at sales@acme.example or call +1 555-123-4567.</p>
  <noscript>Please enable JavaScript</noscript>
</body>
</html>`

func TestFetcher_FetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "prospector") {
			t.Errorf("User-Agent = %q, want prospector identifier", ua)
		}
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewFetcher(0)
	page, err := f.FetchPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if page.Title != "Acme Widgets - Industrial Widgets" {
		t.Errorf("Title = %q", page.Title)
	}
	if page.Description != "Acme makes industrial widgets for manufacturers." {
		t.Errorf("Description = %q", page.Description)
	}
	if len(page.Headings) != 2 || page.Headings[0] != "Industrial Widgets Since 1985" {
		t.Errorf("Headings = %v", page.Headings)
	}
	if len(page.Emails) != 1 || page.Emails[0] != "sales@acme.example" {
		t.Errorf("Emails = %v", page.Emails)
	}
	if len(page.Phones) == 0 {
		t.Error("expected at least one phone number")
	}
	if strings.Contains(page.BodyText, "tracking") || strings.Contains(page.BodyText, "color: red") {
		t.Errorf("script/style leaked into body text: %q", page.BodyText)
	}
	if !strings.Contains(page.BodyText, "We build widgets that last") {
		t.Errorf("BodyText = %q", page.BodyText)
	}
}

func TestFetcher_FetchPageHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(0)
	if _, err := f.FetchPage(context.Background(), srv.URL); err == nil {
		t.Fatal("FetchPage() on 404 should error")
	}
}

func TestExtractPage_DegenerateHTML(t *testing.T) {
	page := extractPage("https://x.example", "just text with info@x.example inside")
	if len(page.Emails) != 1 || page.Emails[0] != "info@x.example" {
		t.Errorf("Emails = %v", page.Emails)
	}
}

func TestExtractPage_DedupesEmails(t *testing.T) {
	raw := `<html><body>info@x.example INFO@X.EXAMPLE info@x.example sales@x.example</body></html>`
	page := extractPage("https://x.example", raw)
	if len(page.Emails) != 2 {
		t.Fatalf("Emails = %v, want 2 distinct", page.Emails)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "h"},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.max)
		if got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tc.in, tc.max)
		}
	}
}
