package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prospector/internal/agent"
)

// stopCmd stops a running agent
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running agent",
	Long: `Signals the running agent process to shut down. The agent finishes
bookkeeping for the current moment, saves the knowledge base, and exits.
Reports the final run statistics from the agent's last status snapshot.`,
	RunE: runStop,
}

type stopResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Status  *agent.Status `json:"status,omitempty"`
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := cfg.PIDFilePath()

	pid, err := agent.ReadPIDFile(pidPath)
	if err != nil {
		printJSON(stopResult{Success: false, Message: "no agent is running"})
		return nil
	}
	if !agent.ProcessAlive(pid) {
		agent.RemovePIDFile(pidPath)
		printJSON(stopResult{Success: false, Message: fmt.Sprintf("stale pidfile for pid %d removed, no agent is running", pid)})
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find agent process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal agent process %d: %w", pid, err)
	}
	logger.Info("Stop signal sent", zap.Int("pid", pid))

	// Give the agent a moment to unwind and write its final snapshot.
	deadline := time.Now().Add(15 * time.Second)
	for agent.ProcessAlive(pid) && time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
	}

	result := stopResult{Success: true, Message: fmt.Sprintf("agent (pid %d) stopped", pid)}
	if agent.ProcessAlive(pid) {
		result.Message = fmt.Sprintf("stop signal sent to agent (pid %d), still shutting down", pid)
	}
	if st, err := agent.ReadStatusFile(cfg.StatusFilePath()); err == nil {
		result.Status = &st
	}
	printJSON(result)
	return nil
}
