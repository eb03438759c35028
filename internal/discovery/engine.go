// Package discovery finds and qualifies prospect companies. Queries are
// generated from the business profile and history, candidates come from
// the search collaborator, and each never-seen candidate is scored by the
// LLM with a constant heuristic as fallback. Discovery only ever appends
// to the knowledge base; existing prospects are never re-evaluated.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"prospector/internal/knowledge"
	"prospector/internal/llm"
	"prospector/internal/logging"
	"prospector/internal/web"
)

// Searcher is the search collaborator consumed by the engine.
type Searcher interface {
	Search(ctx context.Context, query string) ([]web.SearchResult, error)
}

// Candidate is a search hit considered for qualification.
type Candidate struct {
	Company string
	Website string
	Snippet string
	Query   string
}

// Engine runs prospect discovery cycles.
type Engine struct {
	searcher   Searcher
	client     llm.Client
	store      *knowledge.Store
	goal       string
	maxQueries int
}

// NewEngine creates a discovery engine. maxQueries bounds how many
// generated queries are searched per cycle.
func NewEngine(searcher Searcher, client llm.Client, store *knowledge.Store, goal string, maxQueries int) *Engine {
	if maxQueries <= 0 {
		maxQueries = 3
	}
	return &Engine{
		searcher:   searcher,
		client:     client,
		store:      store,
		goal:       goal,
		maxQueries: maxQueries,
	}
}

// Discover runs one discovery cycle: generate queries, search, dedupe,
// qualify, append. Failures on individual queries or candidates are logged
// and skipped; the cycle itself never fails.
func (e *Engine) Discover(ctx context.Context) {
	queries := e.GenerateQueries(ctx)
	if len(queries) > e.maxQueries {
		queries = queries[:e.maxQueries]
	}
	logging.Discovery("Discovery cycle: %d queries", len(queries))

	added := 0
	for _, query := range queries {
		results, err := e.searcher.Search(ctx, query)
		if err != nil {
			logging.DiscoveryWarn("Search failed for %q: %v, skipping query", query, err)
			continue
		}

		for _, r := range results {
			cand := candidateFromResult(r, query)
			if cand.Company == "" || cand.Website == "" || excludedSite(cand.Website) {
				continue
			}
			if e.store.HasProspect(cand.Company, cand.Website) {
				logging.DiscoveryDebug("Skipping known prospect: %s", cand.Company)
				continue
			}

			qual := e.Qualify(ctx, cand)
			if !qual.IsQualified {
				logging.DiscoveryDebug("Not qualified: %s (score %d: %s)", cand.Company, qual.Score, qual.Reason)
				continue
			}

			p, ok := e.store.AddProspect(knowledge.Prospect{
				Company:       cand.Company,
				Website:       cand.Website,
				SearchQuery:   cand.Query,
				Qualification: qual,
			})
			if !ok {
				continue
			}
			added++
			e.store.AddLearning(knowledge.LearningProspectDiscovery, "discovery", map[string]any{
				"company": p.Company,
				"website": p.Website,
				"query":   p.SearchQuery,
				"score":   qual.Score,
			})
			logging.Discovery("Added prospect %s (%s), score %d", p.Company, p.Website, qual.Score)
		}
	}
	logging.Discovery("Discovery cycle complete: %d prospects added", added)
}

const queryGenSystemPrompt = `You generate web search queries for B2B prospect discovery. Output ONLY a JSON array of 3 to 5 short search query strings. No prose.`

// GenerateQueries asks the LLM for search queries tailored to the business
// profile and goal, falling back to a fixed template set on any failure.
// At least one usable query is always returned.
func (e *Engine) GenerateQueries(ctx context.Context) []string {
	profile := e.store.BusinessProfile()
	if profile == nil {
		profile = &knowledge.BusinessProfile{Industry: "technology"}
	}

	if e.client != nil {
		if queries, err := e.queriesFromLLM(ctx, profile); err == nil && len(queries) > 0 {
			return queries
		} else if err != nil {
			logging.DiscoveryWarn("Query generation failed (%v), using template queries", err)
		}
	}
	return templateQueries(profile, e.goal)
}

func (e *Engine) queriesFromLLM(ctx context.Context, profile *knowledge.BusinessProfile) ([]string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Business: %s, industry: %s, model: %s\n", profile.CompanyName, profile.Industry, profile.BusinessModel)
	fmt.Fprintf(&sb, "Products: %s\n", strings.Join(profile.Products, ", "))
	fmt.Fprintf(&sb, "Partner types wanted: %s\n", strings.Join(profile.PartnerTypes, ", "))
	fmt.Fprintf(&sb, "Campaign goal: %s\n", e.goal)

	if sample := e.store.QualifiedSample(5); len(sample) > 0 {
		var names []string
		for _, p := range sample {
			names = append(names, p.Company)
		}
		fmt.Fprintf(&sb, "Companies already found (find similar, not identical): %s\n", strings.Join(names, ", "))
	}

	response, err := e.client.CompleteWithSystem(ctx, queryGenSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	arr := llm.ExtractJSONArray(response)
	if arr == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var queries []string
	if err := json.Unmarshal([]byte(arr), &queries); err != nil {
		return nil, fmt.Errorf("JSON parse failed: %w", err)
	}

	var out []string
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out, nil
}

// templateQueries is the deterministic fallback built from the profile and
// goal by substitution. Guarantees at least one query per cycle.
func templateQueries(profile *knowledge.BusinessProfile, goal string) []string {
	industry := profile.Industry
	if industry == "" {
		industry = "technology"
	}
	queries := []string{
		fmt.Sprintf("%s companies looking for partnerships", industry),
		fmt.Sprintf("%s business directory", industry),
	}
	if len(profile.Products) > 0 {
		queries = append(queries, fmt.Sprintf("companies that need %s", profile.Products[0]))
	}
	if goal != "" {
		queries = append(queries, fmt.Sprintf("%s %s", industry, goal))
	}
	return queries
}

const qualifySystemPrompt = `You qualify B2B outreach prospects. Given our business profile and a candidate company, output ONLY a JSON object:
{
  "is_qualified": bool,
  "score": int (0-100),
  "reason": string,
  "email_strategy": string,
  "value_proposition": string,
  "urgency": "low" | "medium" | "high"
}`

// Qualify scores a candidate via the LLM, seeded with the business profile
// and a sample of previously qualified prospects. On any failure it falls
// back to a constant moderately-qualified result so the engine can always
// classify a candidate.
func (e *Engine) Qualify(ctx context.Context, cand Candidate) knowledge.Qualification {
	if e.client == nil {
		return fallbackQualification()
	}

	qual, err := e.qualifyFromLLM(ctx, cand)
	if err != nil {
		logging.DiscoveryWarn("Qualification failed for %s (%v), using fallback score", cand.Company, err)
		return fallbackQualification()
	}
	if qual.Score < 0 {
		qual.Score = 0
	}
	if qual.Score > 100 {
		qual.Score = 100
	}
	return qual
}

func (e *Engine) qualifyFromLLM(ctx context.Context, cand Candidate) (knowledge.Qualification, error) {
	profile := e.store.BusinessProfile()
	if profile == nil {
		profile = &knowledge.BusinessProfile{}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Our business: %s (%s). Value proposition: %s\n", profile.CompanyName, profile.Industry, profile.ValueProposition)
	fmt.Fprintf(&sb, "Campaign goal: %s\n\n", e.goal)
	fmt.Fprintf(&sb, "Candidate company: %s\nWebsite: %s\nSearch snippet: %s\nFound via query: %s\n", cand.Company, cand.Website, cand.Snippet, cand.Query)

	if sample := e.store.QualifiedSample(3); len(sample) > 0 {
		sb.WriteString("\nExamples of prospects we previously qualified:\n")
		for _, p := range sample {
			fmt.Fprintf(&sb, "- %s (score %d): %s\n", p.Company, p.Qualification.Score, p.Qualification.Reason)
		}
	}

	response, err := e.client.CompleteWithSystem(ctx, qualifySystemPrompt, sb.String())
	if err != nil {
		return knowledge.Qualification{}, err
	}

	jsonStr := llm.ExtractJSON(response)
	if jsonStr == "" {
		return knowledge.Qualification{}, fmt.Errorf("no JSON found in response")
	}
	var qual knowledge.Qualification
	if err := json.Unmarshal([]byte(jsonStr), &qual); err != nil {
		return knowledge.Qualification{}, fmt.Errorf("JSON parse failed: %w", err)
	}
	return qual, nil
}

func fallbackQualification() knowledge.Qualification {
	return knowledge.Qualification{
		IsQualified:      true,
		Score:            60,
		Reason:           "Moderate fit based on search relevance (AI qualification unavailable)",
		EmailStrategy:    "introduce our business and propose a brief call",
		ValueProposition: "potential partnership opportunity",
		Urgency:          "medium",
	}
}

// candidateFromResult derives a candidate from a raw search hit. The
// company name is the title up to the first separator.
func candidateFromResult(r web.SearchResult, query string) Candidate {
	name := r.Title
	for _, sep := range []string{" - ", " | ", " – ", ": "} {
		if idx := strings.Index(name, sep); idx > 0 {
			name = name[:idx]
			break
		}
	}
	return Candidate{
		Company: strings.TrimSpace(name),
		Website: strings.TrimSpace(r.URL),
		Snippet: r.Snippet,
		Query:   query,
	}
}

// excludedSite filters out directories and platforms that are never a
// single company's own site.
func excludedSite(site string) bool {
	s := strings.ToLower(site)
	for _, domain := range []string{
		"wikipedia.org", "linkedin.com", "facebook.com", "youtube.com",
		"twitter.com", "instagram.com", "reddit.com", "yelp.com",
		"glassdoor.com", "indeed.com", "crunchbase.com", "duckduckgo.com",
	} {
		if strings.Contains(s, domain) {
			return true
		}
	}
	return false
}
