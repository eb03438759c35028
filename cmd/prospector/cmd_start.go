package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prospector/internal/agent"
	"prospector/internal/analyzer"
	"prospector/internal/config"
	"prospector/internal/discovery"
	"prospector/internal/email"
	"prospector/internal/knowledge"
	"prospector/internal/llm"
	"prospector/internal/web"
)

var (
	startGoal       string
	startForeground bool
)

// startCmd launches the agent
var startCmd = &cobra.Command{
	Use:   "start [website]",
	Short: "Start the outreach agent for a business website",
	Long: `Starts the agent loop: analyzes the website once, then discovers
prospects and sends outreach emails on repeating timers until stopped.

By default the agent is launched as a detached background process; use
--foreground to run it in the current terminal (Ctrl-C stops it).

Examples:
  prospector start https://mybusiness.com "find resellers in Europe"
  prospector start mybusiness.com --goal "find integration partners"
  prospector start mybusiness.com --foreground`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startGoal, "goal", "find business partnership opportunities", "campaign goal driving discovery and email copy")
	startCmd.Flags().BoolVar(&startForeground, "foreground", false, "run in the foreground instead of detaching")
}

type startResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	PID     int    `json:"pid,omitempty"`
	Website string `json:"website,omitempty"`
	Goal    string `json:"goal,omitempty"`
}

func runStart(cmd *cobra.Command, args []string) error {
	website := args[0]
	if len(args) > 1 {
		startGoal = args[1]
	}

	if pid, err := agent.ReadPIDFile(cfg.PIDFilePath()); err == nil && agent.ProcessAlive(pid) {
		printJSON(startResult{
			Success: false,
			Message: fmt.Sprintf("agent already running (pid %d), stop it first", pid),
			PID:     pid,
		})
		return nil
	}

	if startForeground {
		return runAgentForeground(website, startGoal)
	}
	return spawnAgentBackground(website, startGoal)
}

// spawnAgentBackground re-executes this binary with --foreground as a
// detached session leader, so the agent survives the launching terminal.
func spawnAgentBackground(website, goal string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	childArgs := []string{"start", website, "--foreground", "--goal", goal}
	if cfgPath != "" {
		childArgs = append(childArgs, "--config", cfgPath)
	}
	if verbose {
		childArgs = append(childArgs, "--verbose")
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	out, err := os.OpenFile(filepath.Join(cfg.LogDir, "agent.out"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open agent output file: %w", err)
	}
	defer out.Close()

	child := exec.Command(exe, childArgs...)
	child.Stdout = out
	child.Stderr = out
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to launch agent process: %w", err)
	}

	logger.Info("Agent launched",
		zap.Int("pid", child.Process.Pid),
		zap.String("website", website),
		zap.String("goal", goal))
	printJSON(startResult{
		Success: true,
		Message: "agent started in background",
		PID:     child.Process.Pid,
		Website: website,
		Goal:    goal,
	})
	// The child owns the pidfile; release it so it outlives this process.
	return child.Process.Release()
}

// runAgentForeground builds the full agent and blocks until a signal or a
// stop request arrives.
func runAgentForeground(website, goal string) error {
	ctrl, cleanup, err := buildController(cfg, goal)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := agent.WritePIDFile(cfg.PIDFilePath()); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	defer agent.RemovePIDFile(cfg.PIDFilePath())

	ctx := context.Background()
	if err := ctrl.Start(ctx, agent.Config{
		Website:             website,
		Goal:                goal,
		ProspectingInterval: cfg.ProspectingInterval(),
		EmailingInterval:    cfg.EmailingInterval(),
		BackupInterval:      cfg.BackupInterval(),
	}); err != nil {
		return err
	}

	printJSON(startResult{
		Success: true,
		Message: "agent running in foreground",
		PID:     os.Getpid(),
		Website: website,
		Goal:    goal,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Signal received, stopping agent", zap.String("signal", sig.String()))

	stats, err := ctrl.Stop()
	if err != nil {
		return err
	}
	printJSON(stats)
	return nil
}

// buildController wires the full collaborator graph from configuration.
// A missing LLM key degrades to heuristic fallbacks; missing SMTP
// configuration is a hard error because sending cannot degrade.
func buildController(cfg *config.Config, goal string) (*agent.Controller, func(), error) {
	store := knowledge.NewStore(cfg.KnowledgeBasePath())
	store.Load()

	client, err := llm.NewFromConfig(context.Background(), cfg)
	if err != nil {
		logger.Warn("LLM unavailable, running with heuristic fallbacks", zap.Error(err))
		client = nil
	}

	fetcher := web.NewFetcher(cfg.FetchTimeout())
	cleanup := func() {}
	if cfg.Web.UseBrowser {
		browser, err := web.NewBrowserFetcher(cfg.FetchTimeout())
		if err != nil {
			logger.Warn("Headless browser unavailable, static fetching only", zap.Error(err))
		} else {
			fetcher.EnableBrowser(browser)
			cleanup = func() { _ = browser.Close() }
		}
	}
	searcher := web.NewSearcher(cfg.SearchTimeout(), cfg.Web.MaxResults)

	sender, err := email.NewSMTPSender(cfg.SMTP)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("SMTP not usable: %w (set SMTP_HOST and SMTP_FROM)", err)
	}

	biz := analyzer.New(fetcher, client, store)
	disc := discovery.NewEngine(searcher, client, store, goal, cfg.Agent.MaxQueriesPerCycle)
	mailer := email.NewEngine(
		store,
		email.NewGenerator(client, store, goal),
		email.NewAddressResolver(fetcher),
		sender,
		email.NewHeuristicScorePolicy(),
		cfg.Agent.MaxEmailsPerCycle,
		cfg.Agent.MaxEmailsPerDay,
		cfg.SendDelay(),
		goal,
	)

	ctrl := agent.NewController(store, biz, disc, mailer, cfg.StatusFilePath())
	return ctrl, cleanup, nil
}
