// Package email drafts, addresses, and sends personalized outreach
// emails, honoring the per-cycle and per-day caps and recording every
// outcome back into the knowledge base.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"prospector/internal/knowledge"
	"prospector/internal/llm"
	"prospector/internal/logging"
)

// Draft is a generated outreach email before sending.
type Draft struct {
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	AIGenerated bool   `json:"-"`
}

// Generator drafts personalized emails. The LLM path is backed by a
// deterministic template substitution, so a draft is always produced.
type Generator struct {
	client llm.Client
	store  *knowledge.Store
	goal   string
}

// NewGenerator creates a generator.
func NewGenerator(client llm.Client, store *knowledge.Store, goal string) *Generator {
	return &Generator{
		client: client,
		store:  store,
		goal:   goal,
	}
}

const generateSystemPrompt = `You write short, personalized B2B outreach emails. Given our business profile, the prospect, and example emails that performed well, output ONLY a JSON object:
{
  "subject": string,
  "body": string (HTML, 3 short paragraphs max, personalized to the prospect, ending with a soft call to action)
}`

// Generate drafts an email for the prospect. Never fails: LLM errors and
// unparseable output fall back to the template draft.
func (g *Generator) Generate(ctx context.Context, p knowledge.Prospect) Draft {
	if g.client == nil {
		return g.templateDraft(p)
	}

	draft, err := g.draftFromLLM(ctx, p)
	if err != nil {
		logging.EmailWarn("AI generation failed for %s (%v), using template", p.Company, err)
		return g.templateDraft(p)
	}
	if strings.TrimSpace(draft.Subject) == "" || strings.TrimSpace(draft.Body) == "" {
		logging.EmailWarn("AI draft for %s was incomplete, using template", p.Company)
		return g.templateDraft(p)
	}
	draft.AIGenerated = true
	return draft
}

func (g *Generator) draftFromLLM(ctx context.Context, p knowledge.Prospect) (Draft, error) {
	profile := g.store.BusinessProfile()
	if profile == nil {
		profile = &knowledge.BusinessProfile{}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Our business: %s (%s)\nValue proposition: %s\nCampaign goal: %s\n\n",
		profile.CompanyName, profile.Industry, profile.ValueProposition, g.goal)
	fmt.Fprintf(&sb, "Prospect: %s\nWebsite: %s\nWhy qualified: %s\nSuggested strategy: %s\nValue to offer them: %s\nUrgency: %s\n",
		p.Company, p.Website, p.Qualification.Reason, p.Qualification.EmailStrategy,
		p.Qualification.ValueProposition, p.Qualification.Urgency)

	if exemplars := g.store.TopEmailExemplars(3); len(exemplars) > 0 {
		sb.WriteString("\nSubjects of our best-performing emails, match their tone:\n")
		for _, rec := range exemplars {
			fmt.Fprintf(&sb, "- %s (personalization %d/100)\n", rec.Subject, rec.PersonalizationScore)
		}
	}

	response, err := g.client.CompleteWithSystem(ctx, generateSystemPrompt, sb.String())
	if err != nil {
		return Draft{}, err
	}

	jsonStr := llm.ExtractJSON(response)
	if jsonStr == "" {
		return Draft{}, fmt.Errorf("no JSON found in response")
	}
	var draft Draft
	if err := json.Unmarshal([]byte(jsonStr), &draft); err != nil {
		return Draft{}, fmt.Errorf("JSON parse failed: %w", err)
	}
	return draft, nil
}

// templateDraft is the deterministic fallback built from the same fields
// the LLM prompt uses.
func (g *Generator) templateDraft(p knowledge.Prospect) Draft {
	profile := g.store.BusinessProfile()
	if profile == nil {
		profile = &knowledge.BusinessProfile{CompanyName: "our team"}
	}

	valueProp := p.Qualification.ValueProposition
	if valueProp == "" {
		valueProp = profile.ValueProposition
	}

	body := fmt.Sprintf(
		`<p>Hi %s team,</p>
<p>I came across your company while researching %s businesses and thought there could be a good fit between us. %s</p>
<p>At %s, %s. If exploring a partnership sounds interesting, I'd be glad to set up a short call.</p>
<p>Best regards,<br>%s</p>`,
		p.Company,
		nonEmpty(profile.Industry, "growing"),
		valueProp,
		profile.CompanyName,
		nonEmpty(profile.ValueProposition, "we help businesses like yours grow"),
		profile.CompanyName,
	)

	return Draft{
		Subject:     fmt.Sprintf("Partnership opportunity for %s", p.Company),
		Body:        body,
		AIGenerated: false,
	}
}

func nonEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
