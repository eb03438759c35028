// Package agent owns the run/pause lifecycle of the outreach agent: one
// controller per process, driving the discovery, email, and backup cycles
// on independent repeating timers.
package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"prospector/internal/knowledge"
	"prospector/internal/logging"
)

// Control errors reported to the caller; they never crash the process.
var (
	ErrAlreadyRunning = errors.New("agent is already running")
	ErrNotRunning     = errors.New("agent is not running")
)

// State is the controller lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Config is the per-run configuration, set once at Start and read-only
// for the rest of the run.
type Config struct {
	Website             string        `json:"website"`
	Goal                string        `json:"goal"`
	ProspectingInterval time.Duration `json:"prospecting_interval"`
	EmailingInterval    time.Duration `json:"emailing_interval"`
	BackupInterval      time.Duration `json:"backup_interval"`
}

// BusinessAnalyzer runs once at startup to profile the target website.
type BusinessAnalyzer interface {
	Analyze(ctx context.Context, url string) *knowledge.BusinessProfile
}

// Discoverer runs one prospect discovery cycle.
type Discoverer interface {
	Discover(ctx context.Context)
}

// EmailRunner runs one email cycle.
type EmailRunner interface {
	RunCycle(ctx context.Context)
}

// Stats is the cumulative summary returned by Stop.
type Stats struct {
	ProspectsFound    int           `json:"prospects_found"`
	EmailsSent        int           `json:"emails_sent"`
	EmailsFailed      int           `json:"emails_failed"`
	Runtime           time.Duration `json:"runtime"`
	KnowledgeBaseSize int           `json:"knowledge_base_size"`
}

// Controller is the agent state machine: idle -> running -> stopped.
// Running is the only state with active timers.
type Controller struct {
	mu    sync.Mutex
	state State
	cfg   Config

	store     *knowledge.Store
	analyzer  BusinessAnalyzer
	discovery Discoverer
	email     EmailRunner

	statusPath string
	startTime  time.Time
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	// Per-cycle busy flags. Each cycle type runs on its own goroutine with
	// the body invoked inline, so two cycles of the same kind can never
	// overlap; the flags exist so status can report in-flight cycles.
	discoveryBusy atomic.Bool
	emailBusy     atomic.Bool
}

// NewController creates an idle controller. statusPath, if non-empty, is
// where the controller writes its status snapshot after every cycle for
// out-of-process status/monitor readers.
func NewController(store *knowledge.Store, analyzer BusinessAnalyzer, discovery Discoverer, email EmailRunner, statusPath string) *Controller {
	return &Controller{
		state:      StateIdle,
		store:      store,
		analyzer:   analyzer,
		discovery:  discovery,
		email:      email,
		statusPath: statusPath,
	}
}

// Start analyzes the target website synchronously, then arms the three
// repeating timers and transitions to running. Returns ErrAlreadyRunning
// if the agent is already running.
func (c *Controller) Start(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.cfg = cfg
	c.startTime = time.Now()
	c.state = StateRunning

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	logging.Agent("Starting agent: website=%s goal=%q", cfg.Website, cfg.Goal)

	// Business analysis runs once, before any cycle. Analyze never fails;
	// it degrades to a heuristic profile.
	c.analyzer.Analyze(ctx, cfg.Website)

	c.wg.Add(3)
	go c.cycleLoop(runCtx, "discovery", cfg.ProspectingInterval, func(cycleCtx context.Context) {
		c.discoveryBusy.Store(true)
		defer c.discoveryBusy.Store(false)
		c.discovery.Discover(cycleCtx)
	})
	go c.cycleLoop(runCtx, "email", cfg.EmailingInterval, func(cycleCtx context.Context) {
		c.emailBusy.Store(true)
		defer c.emailBusy.Store(false)
		c.email.RunCycle(cycleCtx)
	})
	go c.cycleLoop(runCtx, "backup", cfg.BackupInterval, func(context.Context) {
		if err := c.store.Save(); err != nil {
			logging.AgentWarn("Scheduled knowledge base save failed: %v", err)
		}
	})

	c.writeStatus()
	logging.Agent("Agent running: discovery every %s, email every %s, backup every %s",
		cfg.ProspectingInterval, cfg.EmailingInterval, cfg.BackupInterval)
	return nil
}

// cycleLoop drives one cycle type. The body runs inline between ticks, so
// a slow cycle delays its next tick rather than overlapping it.
func (c *Controller) cycleLoop(ctx context.Context, name string, interval time.Duration, body func(context.Context)) {
	defer c.wg.Done()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.AgentDebug("%s loop stopped", name)
			return
		case <-ticker.C:
			logging.AgentDebug("%s cycle tick", name)
			body(ctx)
			c.writeStatus()
		}
	}
}

// Stop cancels the timers, aborting any in-flight collaborator calls via
// context, waits for the cycle goroutines to unwind, performs a final
// save, and transitions to stopped. Returns ErrNotRunning if the agent is
// not running.
func (c *Controller) Stop() (Stats, error) {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return Stats{}, ErrNotRunning
	}
	cancel := c.cancel
	c.cancel = nil
	c.state = StateStopped
	started := c.startTime
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	if err := c.store.Save(); err != nil {
		logging.AgentWarn("Final knowledge base save failed: %v", err)
	}

	metrics := c.store.Metrics()
	stats := Stats{
		ProspectsFound:    metrics.ProspectsDiscovered,
		EmailsSent:        metrics.EmailsSent,
		EmailsFailed:      metrics.EmailsFailed,
		Runtime:           time.Since(started),
		KnowledgeBaseSize: c.store.Size(),
	}
	c.writeStatus()
	logging.Agent("Agent stopped: %d prospects, %d emails sent, runtime %s",
		stats.ProspectsFound, stats.EmailsSent, stats.Runtime.Round(time.Second))
	return stats, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
