package knowledge

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"prospector/internal/logging"
)

// maxLearnings caps the learnings log. The log is the agent's long-term
// memory; without a cap it grows without bound over a long-running process.
// Oldest entries are dropped once the cap is reached.
const maxLearnings = 500

// Store owns the in-memory knowledge base and its on-disk JSON file.
// All mutation happens in memory; durability is only as fresh as the last
// Save. A crash between two saves loses the interval's worth of change but
// never corrupts structure, because writes are whole-document replacements
// through a temp file and rename.
type Store struct {
	mu     sync.RWMutex
	saveMu sync.Mutex
	path   string
	kb     *KnowledgeBase
}

// NewStore creates a store backed by the JSON file at path. Call Load
// before use.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		kb:   &KnowledgeBase{},
	}
}

// Path returns the on-disk location of the knowledge base.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted document. A missing or corrupt file degrades to
// an empty document which is persisted immediately; Load never fails the
// startup sequence.
func (s *Store) Load() {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.KnowledgeWarn("Could not read knowledge base %s: %v, starting empty", s.path, err)
		}
		s.kb = &KnowledgeBase{}
		s.mu.Unlock()
		_ = s.Save()
		return
	}

	var kb KnowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		logging.KnowledgeError("Knowledge base %s is corrupt: %v, starting empty", s.path, err)
		s.kb = &KnowledgeBase{}
		s.mu.Unlock()
		_ = s.Save()
		return
	}

	s.kb = &kb
	s.mu.Unlock()
	logging.Knowledge("Loaded knowledge base: %d prospects, %d emails, %d learnings",
		len(kb.Prospects), len(kb.EmailHistory), len(kb.Learnings))
}

// LoadReadOnly reads the persisted document without touching the disk.
// Missing and corrupt files yield an empty in-memory document; unlike Load,
// nothing is written back. For read-only consumers such as status views.
func (s *Store) LoadReadOnly() {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.kb = &KnowledgeBase{}
		return
	}
	var kb KnowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		s.kb = &KnowledgeBase{}
		return
	}
	s.kb = &kb
}

// Save serializes the entire document and atomically replaces the file.
// Savers are serialized: the backup timer and a cycle-end flush can fire at
// the same time, and both go through the same temp file.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	s.kb.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s.kb, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge base: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create knowledge base directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write knowledge base: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace knowledge base: %w", err)
	}

	logging.KnowledgeDebug("Saved knowledge base to %s (%d bytes)", s.path, len(data))
	return nil
}

// normalizeCompany folds a company name for dedup comparison.
func normalizeCompany(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// normalizeWebsite reduces a URL to its host for dedup comparison, so
// https://acme.com, http://www.acme.com/ and acme.com all collide.
func normalizeWebsite(site string) string {
	site = strings.TrimSpace(strings.ToLower(site))
	if site == "" {
		return ""
	}
	if !strings.Contains(site, "://") {
		site = "https://" + site
	}
	u, err := url.Parse(site)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(site, "/")
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// HasProspect reports whether a prospect with the given company name or
// website already exists.
func (s *Store) HasProspect(company, website string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasProspectLocked(company, website)
}

func (s *Store) hasProspectLocked(company, website string) bool {
	nc := normalizeCompany(company)
	nw := normalizeWebsite(website)
	for i := range s.kb.Prospects {
		p := &s.kb.Prospects[i]
		if nc != "" && normalizeCompany(p.Company) == nc {
			return true
		}
		if nw != "" && normalizeWebsite(p.Website) == nw {
			return true
		}
	}
	return false
}

// AddProspect appends a prospect unless one with the same company or
// website already exists. Returns the stored prospect and whether it was
// added. The ID, status, and timestamp are assigned here.
func (s *Store) AddProspect(p Prospect) (Prospect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasProspectLocked(p.Company, p.Website) {
		return Prospect{}, false
	}

	p.ID = uuid.NewString()
	p.Status = StatusDiscovered
	p.EmailSent = false
	p.AddedAt = time.Now().UTC()
	s.kb.Prospects = append(s.kb.Prospects, p)
	s.kb.Metrics.ProspectsDiscovered++
	if p.Qualification.IsQualified {
		s.kb.Metrics.ProspectsQualified++
	}
	return p, true
}

// MarkEmailSent transitions a prospect to email_sent. The transition is
// monotonic: a prospect that already left discovered is not touched.
func (s *Store) MarkEmailSent(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.kb.Prospects {
		p := &s.kb.Prospects[i]
		if p.ID != id || p.Status != StatusDiscovered {
			continue
		}
		p.Status = StatusEmailSent
		p.EmailSent = true
		p.EmailError = ""
		t := at.UTC()
		p.EmailSentAt = &t
		return
	}
}

// MarkEmailFailed transitions a prospect to email_failed with the captured
// error. Like MarkEmailSent, it only moves prospects out of discovered.
func (s *Store) MarkEmailFailed(id, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.kb.Prospects {
		p := &s.kb.Prospects[i]
		if p.ID != id || p.Status != StatusDiscovered {
			continue
		}
		p.Status = StatusEmailFailed
		p.EmailError = errMsg
		s.kb.Metrics.EmailsFailed++
		return
	}
}

// RecordEmail appends a send record to the audit trail.
func (s *Store) RecordEmail(rec EmailRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = uuid.NewString()
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now().UTC()
	}
	s.kb.EmailHistory = append(s.kb.EmailHistory, rec)
	s.kb.Metrics.EmailsSent++
}

// AddLearning appends a tagged learning entry, dropping the oldest entries
// once the retention cap is reached.
func (s *Store) AddLearning(lt LearningType, source string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kb.Learnings = append(s.kb.Learnings, Learning{
		ID:        uuid.NewString(),
		Type:      lt,
		Source:    source,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	})
	if len(s.kb.Learnings) > maxLearnings {
		s.kb.Learnings = s.kb.Learnings[len(s.kb.Learnings)-maxLearnings:]
	}
}

// RecentLearnings returns up to n learnings, newest last.
func (s *Store) RecentLearnings(n int) []Learning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.kb.Learnings) == 0 {
		return nil
	}
	start := len(s.kb.Learnings) - n
	if start < 0 {
		start = 0
	}
	out := make([]Learning, len(s.kb.Learnings)-start)
	copy(out, s.kb.Learnings[start:])
	return out
}

// PendingProspects returns up to limit prospects still awaiting email,
// ordered by descending qualification score. Ties keep insertion order so
// selection is deterministic.
func (s *Store) PendingProspects(limit int) []Prospect {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []Prospect
	for i := range s.kb.Prospects {
		p := s.kb.Prospects[i]
		if p.Status == StatusDiscovered && !p.EmailSent {
			pending = append(pending, p)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Qualification.Score > pending[j].Qualification.Score
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending
}

// PendingCount returns the number of prospects awaiting email.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for i := range s.kb.Prospects {
		if s.kb.Prospects[i].Status == StatusDiscovered && !s.kb.Prospects[i].EmailSent {
			n++
		}
	}
	return n
}

// SentToday counts email records stamped on the same calendar day as now,
// in local time. Used to enforce the daily send cap.
func (s *Store) SentToday(now time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	y, m, d := now.Date()
	n := 0
	for i := range s.kb.EmailHistory {
		ry, rm, rd := s.kb.EmailHistory[i].SentAt.In(now.Location()).Date()
		if ry == y && rm == m && rd == d {
			n++
		}
	}
	return n
}

// TopEmailExemplars returns up to n prior email records with the highest
// personalization scores, for use as style exemplars in prompts.
func (s *Store) TopEmailExemplars(n int) []EmailRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]EmailRecord, len(s.kb.EmailHistory))
	copy(recs, s.kb.EmailHistory)
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].PersonalizationScore > recs[j].PersonalizationScore
	})
	if n > 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs
}

// QualifiedSample returns up to n qualified prospects for prompt seeding.
func (s *Store) QualifiedSample(n int) []Prospect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Prospect
	for i := len(s.kb.Prospects) - 1; i >= 0 && len(out) < n; i-- {
		if s.kb.Prospects[i].Qualification.IsQualified {
			out = append(out, s.kb.Prospects[i])
		}
	}
	return out
}

// BusinessProfile returns the stored profile, or nil if analysis has not
// run yet.
func (s *Store) BusinessProfile() *BusinessProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kb.BusinessAnalysis == nil {
		return nil
	}
	cp := *s.kb.BusinessAnalysis
	return &cp
}

// SetBusinessProfile stores the analysis result.
func (s *Store) SetBusinessProfile(p *BusinessProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		s.kb.BusinessAnalysis = nil
		return
	}
	cp := *p
	s.kb.BusinessAnalysis = &cp
}

// Metrics returns the current success metrics rollup.
func (s *Store) Metrics() SuccessMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kb.Metrics
}

// Snapshot returns a deep copy of the whole document.
func (s *Store) Snapshot() KnowledgeBase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := KnowledgeBase{
		Prospects:    make([]Prospect, len(s.kb.Prospects)),
		EmailHistory: make([]EmailRecord, len(s.kb.EmailHistory)),
		Learnings:    make([]Learning, len(s.kb.Learnings)),
		Metrics:      s.kb.Metrics,
		UpdatedAt:    s.kb.UpdatedAt,
	}
	copy(out.Prospects, s.kb.Prospects)
	copy(out.EmailHistory, s.kb.EmailHistory)
	for i, l := range s.kb.Learnings {
		cp := l
		if l.Data != nil {
			cp.Data = make(map[string]any, len(l.Data))
			for k, v := range l.Data {
				cp.Data[k] = v
			}
		}
		out.Learnings[i] = cp
	}
	if s.kb.BusinessAnalysis != nil {
		cp := *s.kb.BusinessAnalysis
		out.BusinessAnalysis = &cp
	}
	return out
}

// Size returns the serialized size of the document in bytes. Best effort;
// returns 0 if marshaling fails.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := json.Marshal(s.kb)
	if err != nil {
		return 0
	}
	return len(data)
}
