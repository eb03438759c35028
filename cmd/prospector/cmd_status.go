package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prospector/internal/agent"
	"prospector/internal/knowledge"
)

// statusCmd reports agent status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status and campaign progress",
	Long: `Reads the status snapshot the running agent refreshes after every
cycle. When no agent is running, reports the state of the persisted
knowledge base instead, so progress is visible between runs.`,
	RunE: runStatus,
}

type statusResult struct {
	Running bool          `json:"running"`
	Message string        `json:"message"`
	Status  *agent.Status `json:"status,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	pid, err := agent.ReadPIDFile(cfg.PIDFilePath())
	running := err == nil && agent.ProcessAlive(pid)

	st, stErr := agent.ReadStatusFile(cfg.StatusFilePath())
	if stErr != nil {
		if os.IsNotExist(stErr) {
			// No agent has run yet against this data dir; fall back to
			// whatever the knowledge base holds.
			st = offlineStatus()
		} else {
			return fmt.Errorf("failed to read status snapshot: %w", stErr)
		}
	}
	if !running {
		// The snapshot may claim running if the agent died uncleanly.
		if st.State == agent.StateRunning {
			st.State = agent.StateStopped
		}
		st.DiscoveryActive = false
		st.EmailActive = false
	}

	msg := "agent is not running"
	if running {
		msg = fmt.Sprintf("agent is running (pid %d)", pid)
	}
	printJSON(statusResult{Running: running, Message: msg, Status: &st})
	return nil
}

// offlineStatus summarizes the knowledge base when no snapshot exists.
// The read-only load keeps status free of side effects: asking for status
// on a fresh machine must not create the data directory.
func offlineStatus() agent.Status {
	store := knowledge.NewStore(cfg.KnowledgeBasePath())
	store.LoadReadOnly()
	return agent.Status{
		State:          agent.StateIdle,
		PendingEmails:  store.PendingCount(),
		Metrics:        store.Metrics(),
		Profile:        store.BusinessProfile(),
		KnowledgeBytes: store.Size(),
	}
}
