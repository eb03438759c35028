// Package analyzer turns raw website content into a structured business
// profile. The LLM path can fail at any time over a long-running process,
// so every path through Analyze ends in a usable profile: a deterministic
// heuristic derived from the domain name backs the whole component.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"prospector/internal/knowledge"
	"prospector/internal/llm"
	"prospector/internal/logging"
	"prospector/internal/web"
)

// PageFetcher is the website collaborator consumed by the analyzer.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*web.Page, error)
}

// Analyzer produces the business profile for the operator's website.
type Analyzer struct {
	fetcher PageFetcher
	client  llm.Client
	store   *knowledge.Store
}

// New creates an analyzer.
func New(fetcher PageFetcher, client llm.Client, store *knowledge.Store) *Analyzer {
	return &Analyzer{
		fetcher: fetcher,
		client:  client,
		store:   store,
	}
}

const analyzeSystemPrompt = `You are a business analyst. Given extracted website content, produce a JSON object describing the business. Output ONLY the JSON object, no prose, with exactly these fields:
{
  "company_name": string,
  "industry": string,
  "products": [string],
  "target_market": string,
  "value_proposition": string,
  "business_model": "B2B" | "B2C" | "both",
  "key_features": [string],
  "competitive_advantages": [string],
  "partner_types": [string],
  "marketing_channels": [string],
  "size_estimate": string
}`

// Analyze fetches and profiles the website at siteURL. It never returns an
// error: fetch failures, LLM failures, and parse failures all degrade to
// the heuristic profile. The resulting profile is stored in the knowledge
// base along with a business_analysis learning entry.
func (a *Analyzer) Analyze(ctx context.Context, siteURL string) *knowledge.BusinessProfile {
	logging.Analysis("Analyzing business website: %s", siteURL)

	page, err := a.fetcher.FetchPage(ctx, siteURL)
	if err != nil {
		logging.AnalysisWarn("Website fetch failed (%v), using heuristic profile", err)
		return a.finish(siteURL, HeuristicProfile(siteURL), false)
	}

	profile, err := a.profileFromLLM(ctx, page)
	if err != nil {
		logging.AnalysisWarn("AI analysis failed (%v), using enhanced defaults", err)
		profile = HeuristicProfile(siteURL)
		if profile.CompanyName == "" && page.Title != "" {
			profile.CompanyName = page.Title
		}
		return a.finish(siteURL, profile, false)
	}

	// The LLM output is untrusted; backfill anything it left blank.
	fallback := HeuristicProfile(siteURL)
	if strings.TrimSpace(profile.CompanyName) == "" {
		profile.CompanyName = fallback.CompanyName
	}
	if strings.TrimSpace(profile.Industry) == "" {
		profile.Industry = fallback.Industry
	}
	if len(profile.Products) == 0 {
		profile.Products = fallback.Products
	}
	if strings.TrimSpace(profile.ValueProposition) == "" {
		profile.ValueProposition = fallback.ValueProposition
	}

	return a.finish(siteURL, profile, true)
}

func (a *Analyzer) finish(siteURL string, profile *knowledge.BusinessProfile, aiGenerated bool) *knowledge.BusinessProfile {
	a.store.SetBusinessProfile(profile)
	a.store.AddLearning(knowledge.LearningBusinessAnalysis, "analyzer", map[string]any{
		"website":      siteURL,
		"company_name": profile.CompanyName,
		"industry":     profile.Industry,
		"ai_generated": aiGenerated,
	})
	logging.Analysis("Business profile ready: %s (%s, %s)", profile.CompanyName, profile.Industry, profile.BusinessModel)
	return profile
}

func (a *Analyzer) profileFromLLM(ctx context.Context, page *web.Page) (*knowledge.BusinessProfile, error) {
	if a.client == nil {
		return nil, fmt.Errorf("no LLM client configured")
	}

	response, err := a.client.CompleteWithSystem(ctx, analyzeSystemPrompt, a.buildPrompt(page))
	if err != nil {
		return nil, err
	}

	jsonStr := llm.ExtractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var profile knowledge.BusinessProfile
	if err := json.Unmarshal([]byte(jsonStr), &profile); err != nil {
		return nil, fmt.Errorf("JSON parse failed: %w", err)
	}
	return &profile, nil
}

func (a *Analyzer) buildPrompt(page *web.Page) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Website: %s\n", page.URL)
	fmt.Fprintf(&sb, "Title: %s\n", page.Title)
	if page.Description != "" {
		fmt.Fprintf(&sb, "Meta description: %s\n", page.Description)
	}
	if page.Keywords != "" {
		fmt.Fprintf(&sb, "Meta keywords: %s\n", page.Keywords)
	}
	if len(page.Headings) > 0 {
		fmt.Fprintf(&sb, "Headings: %s\n", strings.Join(page.Headings, " | "))
	}
	if len(page.Emails) > 0 {
		fmt.Fprintf(&sb, "Contact emails: %s\n", strings.Join(page.Emails, ", "))
	}
	fmt.Fprintf(&sb, "\nBody text:\n%s\n", page.BodyText)

	// Seed with recent learnings so reanalysis is biased by history.
	if learnings := a.store.RecentLearnings(5); len(learnings) > 0 {
		sb.WriteString("\nRecent agent activity for context:\n")
		for _, l := range learnings {
			fmt.Fprintf(&sb, "- [%s] %v\n", l.Type, l.Data)
		}
	}
	return sb.String()
}

// HeuristicProfile builds a deterministic profile from nothing but the
// domain name. No network or LLM involvement; this is the guaranteed
// fallback for the whole analysis path.
func HeuristicProfile(siteURL string) *knowledge.BusinessProfile {
	name := domainBaseName(siteURL)
	display := titleCase(strings.ReplaceAll(strings.ReplaceAll(name, "-", " "), "_", " "))
	if display == "" {
		display = "Unknown Business"
	}

	return &knowledge.BusinessProfile{
		CompanyName:           display,
		Industry:              "technology",
		Products:              []string{"products and services"},
		TargetMarket:          "small and medium businesses",
		ValueProposition:      fmt.Sprintf("%s helps businesses grow with quality products and services", display),
		BusinessModel:         "B2B",
		KeyFeatures:           []string{"professional service", "customer focus"},
		CompetitiveAdvantages: []string{"experienced team"},
		PartnerTypes:          []string{"resellers", "service providers", "complementary businesses"},
		MarketingChannels:     []string{"email", "content marketing"},
		SizeEstimate:          "small",
	}
}

func titleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		r, size := utf8.DecodeRuneInString(f)
		fields[i] = string(unicode.ToUpper(r)) + f[size:]
	}
	return strings.Join(fields, " ")
}

// domainBaseName reduces a URL to the registrable label: the part of the
// host before the public suffix, with any www prefix stripped.
func domainBaseName(siteURL string) string {
	s := strings.TrimSpace(strings.ToLower(siteURL))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	host := s
	if err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.TrimPrefix(host, "www.")
	if idx := strings.Index(host, ":"); idx > 0 {
		host = host[:idx]
	}
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return parts[0]
}
