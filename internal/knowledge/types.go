// Package knowledge holds the agent's durable state: the knowledge base
// document aggregating prospects, email history, learnings, the business
// profile, and success metrics. The document is persisted wholesale as a
// single JSON file and reloaded at startup.
package knowledge

import "time"

// ProspectStatus tracks a prospect through its outreach lifecycle.
type ProspectStatus string

const (
	StatusDiscovered  ProspectStatus = "discovered"
	StatusEmailSent   ProspectStatus = "email_sent"
	StatusEmailFailed ProspectStatus = "email_failed"
	StatusResponded   ProspectStatus = "responded"
)

// Qualification is the judgment of whether a discovered candidate is worth
// emailing. Produced by the LLM, or by a constant heuristic when the LLM is
// unavailable.
type Qualification struct {
	IsQualified      bool   `json:"is_qualified"`
	Score            int    `json:"score"` // 0-100
	Reason           string `json:"reason"`
	EmailStrategy    string `json:"email_strategy"`
	ValueProposition string `json:"value_proposition"`
	Urgency          string `json:"urgency"` // low, medium, high
}

// Prospect is a discovered candidate company. Prospects are append-only:
// they are never deleted, only mutated in place as emails go out.
type Prospect struct {
	ID            string         `json:"id"`
	Company       string         `json:"company"`
	Website       string         `json:"website"`
	SearchQuery   string         `json:"search_query"`
	Qualification Qualification  `json:"qualification"`
	Status        ProspectStatus `json:"status"`
	EmailSent     bool           `json:"email_sent"`
	EmailError    string         `json:"email_error,omitempty"`
	AddedAt       time.Time      `json:"added_at"`
	EmailSentAt   *time.Time     `json:"email_sent_at,omitempty"`
}

// EmailRecord is the audit trail of one successful send. High-scoring
// records are fed back into generation prompts as style exemplars.
type EmailRecord struct {
	ID                   string    `json:"id"`
	To                   string    `json:"to"`
	Subject              string    `json:"subject"`
	MessageID            string    `json:"message_id"`
	SentAt               time.Time `json:"sent_at"`
	PersonalizationScore int       `json:"personalization_score"` // 0-100
	AIGenerated          bool      `json:"ai_generated"`
	Goal                 string    `json:"goal"`
}

// LearningType tags a learning entry with the event that produced it.
type LearningType string

const (
	LearningBusinessAnalysis  LearningType = "business_analysis"
	LearningProspectDiscovery LearningType = "prospect_discovery"
	LearningEmailSent         LearningType = "email_sent"
	LearningEmailFailed       LearningType = "email_failed"
)

// Learning is an append-only, tagged record of a notable event. It doubles
// as audit trail and as long-term memory included in future LLM prompts.
type Learning struct {
	ID        string         `json:"id"`
	Type      LearningType   `json:"type"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// BusinessProfile is the structured analysis of the operator's own website,
// produced once at agent start and regenerated only on explicit request.
type BusinessProfile struct {
	CompanyName           string   `json:"company_name"`
	Industry              string   `json:"industry"`
	Products              []string `json:"products"`
	TargetMarket          string   `json:"target_market"`
	ValueProposition      string   `json:"value_proposition"`
	BusinessModel         string   `json:"business_model"` // B2B, B2C, both
	KeyFeatures           []string `json:"key_features"`
	CompetitiveAdvantages []string `json:"competitive_advantages"`
	PartnerTypes          []string `json:"partner_types"`
	MarketingChannels     []string `json:"marketing_channels"`
	SizeEstimate          string   `json:"size_estimate"`
}

// SuccessMetrics is a running rollup maintained alongside the raw logs so
// status displays do not have to rescan the whole document.
type SuccessMetrics struct {
	ProspectsDiscovered int `json:"prospects_discovered"`
	ProspectsQualified  int `json:"prospects_qualified"`
	EmailsSent          int `json:"emails_sent"`
	EmailsFailed        int `json:"emails_failed"`
}

// KnowledgeBase is the single unit of durable state. It is loaded wholesale
// at startup and serialized wholesale on a timer and at shutdown; there is
// no partial or incremental persistence.
type KnowledgeBase struct {
	Prospects        []Prospect       `json:"prospects"`
	EmailHistory     []EmailRecord    `json:"email_history"`
	Learnings        []Learning       `json:"learnings"`
	BusinessAnalysis *BusinessProfile `json:"business_analysis,omitempty"`
	Metrics          SuccessMetrics   `json:"success_metrics"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
