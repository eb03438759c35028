package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "knowledge-base.json"))
	s.Load()
	return s
}

func TestStore_LoadMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kb.json")
	s := NewStore(path)
	s.Load()

	if got := s.Metrics(); got.ProspectsDiscovered != 0 {
		t.Fatalf("Metrics().ProspectsDiscovered = %d, want 0", got.ProspectsDiscovered)
	}
	// Load persists the empty document immediately.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected knowledge base file after Load, got %v", err)
	}
}

func TestStore_LoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path)
	s.Load()

	if n := s.PendingCount(); n != 0 {
		t.Fatalf("PendingCount() = %d, want 0 after corrupt load", n)
	}
	// The corrupt file is replaced with a valid empty document.
	s2 := NewStore(path)
	s2.Load()
	if n := s2.PendingCount(); n != 0 {
		t.Fatalf("reload after corrupt recovery failed, PendingCount() = %d", n)
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	s := NewStore(path)
	s.Load()

	p, ok := s.AddProspect(Prospect{
		Company: "Acme Corp",
		Website: "https://acme.example",
		Qualification: Qualification{
			IsQualified: true,
			Score:       85,
			Reason:      "strong fit",
			Urgency:     "high",
		},
	})
	if !ok {
		t.Fatal("AddProspect() returned ok=false for a new prospect")
	}
	s.RecordEmail(EmailRecord{To: "info@acme.example", Subject: "Hello", PersonalizationScore: 70})
	s.AddLearning(LearningProspectDiscovery, "discovery", map[string]any{"company": "Acme Corp"})
	s.SetBusinessProfile(&BusinessProfile{CompanyName: "My Biz", Industry: "software"})

	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded := NewStore(path)
	reloaded.Load()

	want := s.Snapshot()
	got := reloaded.Snapshot()
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
	if got.Prospects[0].ID != p.ID {
		t.Fatalf("prospect ID changed across reload: %s != %s", got.Prospects[0].ID, p.ID)
	}
}

func TestStore_AddProspectDedupes(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.AddProspect(Prospect{Company: "Acme Corp", Website: "https://acme.example"}); !ok {
		t.Fatal("first AddProspect() rejected")
	}

	cases := []struct {
		name    string
		company string
		website string
	}{
		{"same company different case", "ACME CORP", "https://other.example"},
		{"same company padded", "  Acme Corp  ", ""},
		{"same website different scheme", "Different Name", "http://acme.example"},
		{"same website www prefix", "Different Name", "https://www.acme.example/"},
		{"same website bare host", "Different Name", "acme.example"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := s.AddProspect(Prospect{Company: tc.company, Website: tc.website}); ok {
				t.Fatalf("AddProspect(%q, %q) accepted a duplicate", tc.company, tc.website)
			}
		})
	}

	if got := s.Metrics().ProspectsDiscovered; got != 1 {
		t.Fatalf("Metrics().ProspectsDiscovered = %d, want 1", got)
	}
}

func TestStore_StatusTransitionsAreMonotonic(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.AddProspect(Prospect{Company: "Acme", Website: "acme.example"})

	s.MarkEmailSent(p.ID, time.Now())
	// A later failure report must not demote a sent prospect.
	s.MarkEmailFailed(p.ID, "late bounce")

	got := s.Snapshot().Prospects[0]
	if got.Status != StatusEmailSent {
		t.Fatalf("Status = %q, want %q", got.Status, StatusEmailSent)
	}
	if !got.EmailSent || got.EmailSentAt == nil {
		t.Fatal("EmailSent flag or timestamp missing after MarkEmailSent")
	}
	if got.EmailError != "" {
		t.Fatalf("EmailError = %q, want empty", got.EmailError)
	}

	// And the reverse: a sent report must not resurrect a failed prospect.
	p2, _ := s.AddProspect(Prospect{Company: "Globex", Website: "globex.example"})
	s.MarkEmailFailed(p2.ID, "no address")
	s.MarkEmailSent(p2.ID, time.Now())

	got2 := s.Snapshot().Prospects[1]
	if got2.Status != StatusEmailFailed {
		t.Fatalf("Status = %q, want %q", got2.Status, StatusEmailFailed)
	}
	if got2.EmailError != "no address" {
		t.Fatalf("EmailError = %q, want %q", got2.EmailError, "no address")
	}
}

func TestStore_PendingProspectsOrderedByScore(t *testing.T) {
	s := newTestStore(t)
	for i, score := range []int{40, 90, 90, 70} {
		s.AddProspect(Prospect{
			Company:       fmt.Sprintf("Company %d", i),
			Website:       fmt.Sprintf("company%d.example", i),
			Qualification: Qualification{IsQualified: true, Score: score},
		})
	}

	pending := s.PendingProspects(3)
	if len(pending) != 3 {
		t.Fatalf("PendingProspects(3) returned %d", len(pending))
	}
	// Highest score first; equal scores keep insertion order.
	wantCompanies := []string{"Company 1", "Company 2", "Company 3"}
	for i, want := range wantCompanies {
		if pending[i].Company != want {
			t.Fatalf("pending[%d] = %q, want %q", i, pending[i].Company, want)
		}
	}

	// Sent prospects leave the pending set.
	s.MarkEmailSent(pending[0].ID, time.Now())
	if n := s.PendingCount(); n != 3 {
		t.Fatalf("PendingCount() = %d after one send, want 3", n)
	}
}

func TestStore_LearningsAreCapped(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < maxLearnings+25; i++ {
		s.AddLearning(LearningEmailSent, "test", map[string]any{"i": i})
	}

	all := s.RecentLearnings(maxLearnings + 100)
	if len(all) != maxLearnings {
		t.Fatalf("learning count = %d, want cap %d", len(all), maxLearnings)
	}
	// The oldest entries were dropped, not the newest.
	if got := all[len(all)-1].Data["i"]; got != maxLearnings+24 {
		t.Fatalf("newest learning Data[i] = %v, want %d", got, maxLearnings+24)
	}

	recent := s.RecentLearnings(5)
	if len(recent) != 5 {
		t.Fatalf("RecentLearnings(5) returned %d", len(recent))
	}
}

func TestStore_SentToday(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	s.RecordEmail(EmailRecord{To: "a@x.example", SentAt: now.Add(-2 * time.Hour)})
	s.RecordEmail(EmailRecord{To: "b@x.example", SentAt: now.Add(-14 * time.Hour)}) // previous day
	s.RecordEmail(EmailRecord{To: "c@x.example", SentAt: now.Add(-30 * time.Minute)})

	if got := s.SentToday(now); got != 2 {
		t.Fatalf("SentToday() = %d, want 2", got)
	}
	// The day after, the counter resets.
	if got := s.SentToday(now.Add(24 * time.Hour)); got != 0 {
		t.Fatalf("SentToday(+24h) = %d, want 0", got)
	}
}

func TestStore_TopEmailExemplars(t *testing.T) {
	s := newTestStore(t)
	s.RecordEmail(EmailRecord{Subject: "low", PersonalizationScore: 40})
	s.RecordEmail(EmailRecord{Subject: "high", PersonalizationScore: 95})
	s.RecordEmail(EmailRecord{Subject: "mid", PersonalizationScore: 60})

	top := s.TopEmailExemplars(2)
	if len(top) != 2 || top[0].Subject != "high" || top[1].Subject != "mid" {
		t.Fatalf("TopEmailExemplars(2) = %+v", top)
	}
}

func TestStore_BusinessProfileCopies(t *testing.T) {
	s := newTestStore(t)
	if s.BusinessProfile() != nil {
		t.Fatal("BusinessProfile() should be nil before analysis")
	}

	orig := &BusinessProfile{CompanyName: "My Biz"}
	s.SetBusinessProfile(orig)
	orig.CompanyName = "mutated"

	got := s.BusinessProfile()
	if got.CompanyName != "My Biz" {
		t.Fatalf("stored profile aliased caller memory: %q", got.CompanyName)
	}
	got.CompanyName = "mutated again"
	if s.BusinessProfile().CompanyName != "My Biz" {
		t.Fatal("returned profile aliased store memory")
	}
}

func TestStore_ConcurrentSaves(t *testing.T) {
	s := newTestStore(t)
	s.AddProspect(Prospect{Company: "Acme", Website: "acme.example"})

	// The backup timer and a cycle-end flush both call Save from their own
	// goroutines; interleaved saves must not race on the temp file.
	var wg sync.WaitGroup
	errCh := make(chan error, 4*100)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if err := s.Save(); err != nil {
					errCh <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent Save() error = %v", err)
	}

	reloaded := NewStore(s.Path())
	reloaded.LoadReadOnly()
	if !reloaded.HasProspect("Acme", "") {
		t.Fatal("document lost or corrupted by concurrent saves")
	}
}

func TestStore_LoadReadOnlyMissingFileWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s := NewStore(filepath.Join(dir, "kb.json"))
	s.LoadReadOnly()

	if got := s.Metrics(); got.ProspectsDiscovered != 0 {
		t.Fatalf("Metrics().ProspectsDiscovered = %d, want 0", got.ProspectsDiscovered)
	}
	// Unlike Load, nothing is persisted: not even the directory appears.
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("read-only load touched the disk, stat err = %v", err)
	}
}

func TestStore_LoadReadOnlyReadsExistingDocument(t *testing.T) {
	s := newTestStore(t)
	s.AddProspect(Prospect{Company: "Acme", Website: "acme.example"})
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ro := NewStore(s.Path())
	ro.LoadReadOnly()
	if !ro.HasProspect("Acme", "") {
		t.Fatal("read-only load missed the persisted prospect")
	}
}
