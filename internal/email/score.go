package email

import (
	"strings"

	"prospector/internal/knowledge"
)

// ScorePolicy rates how tailored a generated email is to its recipient,
// on a 0-100 scale. The score is a ranking/exemplar signal only, never a
// send gate. It is an interface so the point values can change without
// touching the cycle logic.
type ScorePolicy interface {
	Score(body string, prospect knowledge.Prospect, profile *knowledge.BusinessProfile) int
}

// HeuristicScorePolicy is the default policy: a base score plus fixed
// bonuses for obvious personalization signals.
type HeuristicScorePolicy struct {
	Base int
}

// NewHeuristicScorePolicy returns the default policy with base 50.
func NewHeuristicScorePolicy() *HeuristicScorePolicy {
	return &HeuristicScorePolicy{Base: 50}
}

// Score applies the bonuses and caps the result at 100.
func (h *HeuristicScorePolicy) Score(body string, prospect knowledge.Prospect, profile *knowledge.BusinessProfile) int {
	score := h.Base
	lower := strings.ToLower(body)

	if prospect.Company != "" && strings.Contains(lower, strings.ToLower(prospect.Company)) {
		score += 15
	}
	if strings.Contains(lower, "your business") || strings.Contains(lower, "your company") {
		score += 10
	}
	if len(body) >= 400 {
		score += 15
	}
	if profile != nil && mentionsValueProposition(lower, profile.ValueProposition) {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}

// mentionsValueProposition checks for meaningful word overlap between the
// body and the profile's value proposition.
func mentionsValueProposition(lowerBody, valueProp string) bool {
	if valueProp == "" {
		return false
	}
	matched := 0
	for _, word := range strings.Fields(strings.ToLower(valueProp)) {
		if len(word) < 5 {
			continue
		}
		if strings.Contains(lowerBody, word) {
			matched++
			if matched >= 2 {
				return true
			}
		}
	}
	return false
}
