package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"prospector/internal/knowledge"
	"prospector/internal/logging"
)

// Status is the agent status snapshot: what the controller reports in
// process, and what it writes to the status file for the status/monitor
// subcommands running in other processes.
type Status struct {
	State           State                      `json:"state"`
	PID             int                        `json:"pid"`
	Website         string                     `json:"website"`
	Goal            string                     `json:"goal"`
	StartedAt       time.Time                  `json:"started_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
	UptimeSeconds   int64                      `json:"uptime_seconds"`
	DiscoveryActive bool                       `json:"discovery_active"`
	EmailActive     bool                       `json:"email_active"`
	PendingEmails   int                        `json:"pending_emails"`
	SentToday       int                        `json:"sent_today"`
	Metrics         knowledge.SuccessMetrics   `json:"metrics"`
	Profile         *knowledge.BusinessProfile `json:"profile,omitempty"`
	RecentLearnings []knowledge.Learning       `json:"recent_learnings,omitempty"`
	KnowledgeBytes  int                        `json:"knowledge_bytes"`
}

// Status returns a point-in-time snapshot of the agent.
func (c *Controller) Status() Status {
	c.mu.Lock()
	state := c.state
	cfg := c.cfg
	started := c.startTime
	c.mu.Unlock()

	now := time.Now()
	st := Status{
		State:           state,
		PID:             os.Getpid(),
		Website:         cfg.Website,
		Goal:            cfg.Goal,
		StartedAt:       started,
		UpdatedAt:       now,
		DiscoveryActive: c.discoveryBusy.Load(),
		EmailActive:     c.emailBusy.Load(),
		PendingEmails:   c.store.PendingCount(),
		SentToday:       c.store.SentToday(now),
		Metrics:         c.store.Metrics(),
		Profile:         c.store.BusinessProfile(),
		RecentLearnings: c.store.RecentLearnings(5),
		KnowledgeBytes:  c.store.Size(),
	}
	if state == StateRunning && !started.IsZero() {
		st.UptimeSeconds = int64(now.Sub(started).Seconds())
	}
	return st
}

// writeStatus refreshes the status file. Best effort: a failed write is
// logged, never propagated, so status reporting can never break a cycle.
func (c *Controller) writeStatus() {
	if c.statusPath == "" {
		return
	}
	if err := WriteStatusFile(c.statusPath, c.Status()); err != nil {
		logging.AgentWarn("Status snapshot write failed: %v", err)
	}
}

// WriteStatusFile writes a status snapshot atomically via temp file and
// rename, so a concurrent reader never sees a torn document.
func WriteStatusFile(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}

// ReadStatusFile reads the status snapshot written by a running agent.
func ReadStatusFile(path string) (Status, error) {
	var st Status
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to parse status file: %w", err)
	}
	return st, nil
}
