package email

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"prospector/internal/knowledge"
	"prospector/internal/web"
)

// fakeSender records sends and can be made to fail.
type fakeSender struct {
	sent  []Message
	times []time.Time
	err   error
}

func (f *fakeSender) Send(ctx context.Context, msg Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	f.times = append(f.times, time.Now())
	return fmt.Sprintf("<msg-%d@test>", len(f.sent)), nil
}

// fakeFetcher serves canned pages keyed by URL for address resolution.
type fakeFetcher struct {
	pages map[string]*web.Page
}

func (f *fakeFetcher) FetchPage(ctx context.Context, url string) (*web.Page, error) {
	if p, ok := f.pages[url]; ok {
		return p, nil
	}
	return nil, errors.New("not found")
}

func newTestStore(t *testing.T) *knowledge.Store {
	t.Helper()
	s := knowledge.NewStore(filepath.Join(t.TempDir(), "kb.json"))
	s.Load()
	return s
}

func newTestEngine(store *knowledge.Store, sender Sender, fetcher *fakeFetcher, maxPerCycle, maxPerDay int) *Engine {
	if fetcher == nil {
		fetcher = &fakeFetcher{}
	}
	return NewEngine(
		store,
		NewGenerator(nil, store, "find partners"),
		NewAddressResolver(fetcher),
		sender,
		NewHeuristicScorePolicy(),
		maxPerCycle,
		maxPerDay,
		time.Millisecond,
		"find partners",
	)
}

func addPending(store *knowledge.Store, company string, score int) knowledge.Prospect {
	p, _ := store.AddProspect(knowledge.Prospect{
		Company:       company,
		Website:       strings.ToLower(company) + ".example",
		Qualification: knowledge.Qualification{IsQualified: true, Score: score},
	})
	return p
}

func TestRunCycle_SendsAndRecords(t *testing.T) {
	store := newTestStore(t)
	addPending(store, "acme", 80)
	sender := &fakeSender{}

	e := newTestEngine(store, sender, nil, 5, 50)
	e.RunCycle(context.Background())

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "info@acme.example" {
		t.Errorf("To = %q, want synthesized inbox", msg.To)
	}
	if !strings.Contains(msg.Subject, "acme") {
		t.Errorf("Subject = %q, want company mention", msg.Subject)
	}

	snap := store.Snapshot()
	p := snap.Prospects[0]
	if p.Status != knowledge.StatusEmailSent || !p.EmailSent || p.EmailSentAt == nil {
		t.Fatalf("prospect after send = %+v", p)
	}
	if len(snap.EmailHistory) != 1 {
		t.Fatalf("email history = %d records", len(snap.EmailHistory))
	}
	rec := snap.EmailHistory[0]
	if rec.MessageID == "" || rec.PersonalizationScore <= 0 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.AIGenerated {
		t.Error("template draft marked AI-generated")
	}
	if got := store.Metrics().EmailsSent; got != 1 {
		t.Fatalf("EmailsSent = %d", got)
	}
}

func TestRunCycle_DailyCapSkipsEntirely(t *testing.T) {
	store := newTestStore(t)
	addPending(store, "acme", 80)
	now := time.Now()
	for i := 0; i < 3; i++ {
		store.RecordEmail(knowledge.EmailRecord{To: "x@y.example", SentAt: now})
	}
	sender := &fakeSender{}

	e := newTestEngine(store, sender, nil, 5, 3)
	e.RunCycle(context.Background())

	// The cap is checked before any SMTP contact.
	if len(sender.sent) != 0 {
		t.Fatalf("sent %d messages past the daily cap", len(sender.sent))
	}
	if p := store.Snapshot().Prospects[0]; p.Status != knowledge.StatusDiscovered {
		t.Fatalf("prospect was consumed despite cap: %+v", p)
	}
}

func TestRunCycle_PerCycleCap(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		addPending(store, fmt.Sprintf("company%d", i), 50+i)
	}
	sender := &fakeSender{}

	e := newTestEngine(store, sender, nil, 2, 50)
	e.RunCycle(context.Background())

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d messages, want per-cycle cap of 2", len(sender.sent))
	}
	// Highest-scored prospects go first.
	if sender.sent[0].To != "info@company4.example" {
		t.Errorf("first send To = %q, want highest score first", sender.sent[0].To)
	}
}

func TestRunCycle_DailyBudgetShrinksCycle(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		addPending(store, fmt.Sprintf("company%d", i), 50)
	}
	now := time.Now()
	for i := 0; i < 9; i++ {
		store.RecordEmail(knowledge.EmailRecord{To: "x@y.example", SentAt: now})
	}
	sender := &fakeSender{}

	// 9 of 10 daily sends used; only 1 remains despite per-cycle cap of 5.
	e := newTestEngine(store, sender, nil, 5, 10)
	e.RunCycle(context.Background())

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want remaining daily budget of 1", len(sender.sent))
	}
}

func TestRunCycle_SendFailureMarksProspect(t *testing.T) {
	store := newTestStore(t)
	p := addPending(store, "acme", 80)
	sender := &fakeSender{err: errors.New("550 mailbox unavailable")}

	e := newTestEngine(store, sender, nil, 5, 50)
	e.RunCycle(context.Background())

	got := store.Snapshot().Prospects[0]
	if got.ID != p.ID || got.Status != knowledge.StatusEmailFailed {
		t.Fatalf("prospect = %+v", got)
	}
	if !strings.Contains(got.EmailError, "550") {
		t.Errorf("EmailError = %q", got.EmailError)
	}
	if store.Metrics().EmailsFailed != 1 {
		t.Fatalf("EmailsFailed = %d", store.Metrics().EmailsFailed)
	}
	// Failure is remembered as a learning.
	learnings := store.RecentLearnings(1)
	if len(learnings) != 1 || learnings[0].Type != knowledge.LearningEmailFailed {
		t.Fatalf("learnings = %+v", learnings)
	}
	// A failed prospect never re-enters the queue.
	if n := store.PendingCount(); n != 0 {
		t.Fatalf("PendingCount() = %d after failure", n)
	}
}

func TestRunCycle_PacesConsecutiveSends(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 3; i++ {
		addPending(store, fmt.Sprintf("company%d", i), 50)
	}
	sender := &fakeSender{}
	delay := 30 * time.Millisecond

	e := NewEngine(
		store,
		NewGenerator(nil, store, "find partners"),
		NewAddressResolver(&fakeFetcher{}),
		sender,
		NewHeuristicScorePolicy(),
		5,
		50,
		delay,
		"find partners",
	)
	e.RunCycle(context.Background())

	if len(sender.times) != 3 {
		t.Fatalf("sent %d messages, want 3", len(sender.times))
	}
	// The gap between the first and second send honors the delay too; a
	// token accrued before the cycle must not collapse it.
	for i := 1; i < len(sender.times); i++ {
		if gap := sender.times[i].Sub(sender.times[i-1]); gap < delay-5*time.Millisecond {
			t.Fatalf("gap between send %d and %d = %v, want >= %v", i-1, i, gap, delay)
		}
	}
}

func TestRunCycle_NoProspectsIsNoOp(t *testing.T) {
	store := newTestStore(t)
	sender := &fakeSender{}

	e := newTestEngine(store, sender, nil, 5, 50)
	e.RunCycle(context.Background())

	if len(sender.sent) != 0 {
		t.Fatalf("sent %d messages from an empty queue", len(sender.sent))
	}
}

func TestRunCycle_PersistsAtCycleEnd(t *testing.T) {
	store := newTestStore(t)
	addPending(store, "acme", 80)

	e := newTestEngine(store, &fakeSender{}, nil, 5, 50)
	e.RunCycle(context.Background())

	reloaded := knowledge.NewStore(store.Path())
	reloaded.Load()
	if got := reloaded.Metrics().EmailsSent; got != 1 {
		t.Fatalf("reloaded EmailsSent = %d, cycle did not persist", got)
	}
}

func TestResolve_PrefersScrapedGenericInbox(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*web.Page{
		"https://acme.example": {
			Emails: []string{"jane.doe@acme.example", "contact@acme.example"},
		},
	}}
	r := NewAddressResolver(fetcher)

	addr, err := r.Resolve(context.Background(), "https://www.acme.example")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if addr != "contact@acme.example" {
		t.Fatalf("Resolve() = %q, want preferred generic inbox", addr)
	}
}

func TestResolve_ScrapesContactPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*web.Page{
		"https://acme.example":         {Emails: nil},
		"https://acme.example/contact": {Emails: []string{"hello@acme.example"}},
	}}
	r := NewAddressResolver(fetcher)

	addr, err := r.Resolve(context.Background(), "acme.example")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if addr != "hello@acme.example" {
		t.Fatalf("Resolve() = %q", addr)
	}
}

func TestResolve_SynthesizesWhenScrapingFails(t *testing.T) {
	r := NewAddressResolver(&fakeFetcher{})
	addr, err := r.Resolve(context.Background(), "https://acme.example")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if addr != "info@acme.example" {
		t.Fatalf("Resolve() = %q, want synthesized inbox", addr)
	}
}

func TestResolve_NoDomain(t *testing.T) {
	r := NewAddressResolver(&fakeFetcher{})
	if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("Resolve(\"\") error = %v, want ErrNoAddress", err)
	}
	if _, err := r.Resolve(context.Background(), "not a url"); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("Resolve(garbage) error = %v, want ErrNoAddress", err)
	}
}

func TestPickAddress_PreferenceOrder(t *testing.T) {
	cases := []struct {
		name   string
		emails []string
		want   string
	}{
		{"generic beats personal", []string{"bob@acme.example", "sales@acme.example"}, "sales@acme.example"},
		{"info beats sales", []string{"sales@acme.example", "info@acme.example"}, "info@acme.example"},
		{"own domain beats foreign", []string{"x@other.example", "bob@acme.example"}, "bob@acme.example"},
		{"anything beats nothing", []string{"x@other.example"}, "x@other.example"},
		{"empty list", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pickAddress(tc.emails, "acme.example"); got != tc.want {
				t.Fatalf("pickAddress() = %q, want %q", got, tc.want)
			}
		})
	}
}
