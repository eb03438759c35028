package email

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"prospector/internal/knowledge"
	"prospector/internal/logging"
)

// Engine runs email cycles: it drains qualified, unsent prospects from the
// knowledge base, sends to each sequentially, and records outcomes.
type Engine struct {
	store     *knowledge.Store
	generator *Generator
	resolver  *AddressResolver
	sender    Sender
	scorer    ScorePolicy
	limiter   *rate.Limiter

	maxPerCycle int
	maxPerDay   int
	goal        string
	now         func() time.Time
}

// NewEngine creates an email engine. sendDelay is the fixed pause between
// consecutive sends within a cycle.
func NewEngine(store *knowledge.Store, generator *Generator, resolver *AddressResolver, sender Sender, scorer ScorePolicy, maxPerCycle, maxPerDay int, sendDelay time.Duration, goal string) *Engine {
	if maxPerCycle <= 0 {
		maxPerCycle = 5
	}
	if maxPerDay <= 0 {
		maxPerDay = 50
	}
	if sendDelay <= 0 {
		sendDelay = 5 * time.Second
	}
	if scorer == nil {
		scorer = NewHeuristicScorePolicy()
	}
	return &Engine{
		store:       store,
		generator:   generator,
		resolver:    resolver,
		sender:      sender,
		scorer:      scorer,
		limiter:     rate.NewLimiter(rate.Every(sendDelay), 1),
		maxPerCycle: maxPerCycle,
		maxPerDay:   maxPerDay,
		goal:        goal,
		now:         time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// RunCycle runs one email cycle. A reached daily cap and an empty queue
// are benign no-ops, not errors. Individual prospect failures are recorded
// and skipped; the knowledge base is flushed once at cycle end.
func (e *Engine) RunCycle(ctx context.Context) {
	sentToday := e.store.SentToday(e.now())
	if sentToday >= e.maxPerDay {
		logging.Email("Daily cap reached (%d/%d), skipping email cycle", sentToday, e.maxPerDay)
		return
	}

	budget := e.maxPerCycle
	if remaining := e.maxPerDay - sentToday; remaining < budget {
		budget = remaining
	}

	pending := e.store.PendingProspects(budget)
	if len(pending) == 0 {
		logging.Email("No qualified prospects awaiting email")
		return
	}
	logging.Email("Email cycle: %d prospects selected (budget %d)", len(pending), budget)

	profile := e.store.BusinessProfile()
	sent := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			logging.EmailWarn("Email cycle cancelled after %d sends", sent)
			break
		}
		// Every send takes a limiter token, so consecutive sends are spaced
		// by sendDelay even across cycle boundaries. Waiting only between
		// sends would let a token accrued since the last cycle collapse the
		// first gap to zero.
		if err := e.limiter.Wait(ctx); err != nil {
			break
		}
		if e.sendOne(ctx, p, profile) {
			sent++
		}
	}

	if err := e.store.Save(); err != nil {
		logging.EmailWarn("Knowledge base save after email cycle failed: %v", err)
	}
	logging.Email("Email cycle complete: %d sent, %d attempted", sent, len(pending))
}

// sendOne processes a single prospect. Returns true on a successful send.
func (e *Engine) sendOne(ctx context.Context, p knowledge.Prospect, profile *knowledge.BusinessProfile) bool {
	draft := e.generator.Generate(ctx, p)

	to, err := e.resolver.Resolve(ctx, p.Website)
	if err != nil {
		logging.EmailWarn("No address for %s: %v", p.Company, err)
		e.store.MarkEmailFailed(p.ID, err.Error())
		e.store.AddLearning(knowledge.LearningEmailFailed, "email", map[string]any{
			"company": p.Company,
			"error":   err.Error(),
		})
		return false
	}

	messageID, err := e.sender.Send(ctx, Message{
		To:      to,
		Subject: draft.Subject,
		HTML:    draft.Body,
	})
	if err != nil {
		logging.EmailError("Send to %s (%s) failed: %v", p.Company, to, err)
		e.store.MarkEmailFailed(p.ID, err.Error())
		e.store.AddLearning(knowledge.LearningEmailFailed, "email", map[string]any{
			"company": p.Company,
			"to":      to,
			"error":   err.Error(),
		})
		return false
	}

	now := e.now()
	score := e.scorer.Score(draft.Body, p, profile)
	e.store.MarkEmailSent(p.ID, now)
	e.store.RecordEmail(knowledge.EmailRecord{
		To:                   to,
		Subject:              draft.Subject,
		MessageID:            messageID,
		SentAt:               now.UTC(),
		PersonalizationScore: score,
		AIGenerated:          draft.AIGenerated,
		Goal:                 e.goal,
	})
	e.store.AddLearning(knowledge.LearningEmailSent, "email", map[string]any{
		"company":               p.Company,
		"to":                    to,
		"subject":               draft.Subject,
		"personalization_score": score,
		"ai_generated":          draft.AIGenerated,
	})
	logging.Email("Sent to %s (%s), personalization %d/100", p.Company, to, score)
	return true
}
