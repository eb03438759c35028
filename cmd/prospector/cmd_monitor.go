package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"prospector/internal/agent"
)

// monitorCmd renders a live dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard for the running agent",
	Long: `Renders a terminal dashboard that follows the agent in real time.
It refreshes on a fixed interval and immediately whenever the agent
updates the knowledge base on disk.

Press q to exit and leave the agent running; Ctrl-C stops the agent
before exiting.`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	m := newMonitorModel(cfg.StatusFilePath(), cfg.KnowledgeBasePath(), cfg.PIDFilePath())
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}

const monitorRefresh = 5 * time.Second

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(18)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2).BorderForeground(lipgloss.Color("238"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type tickMsg time.Time

type kbChangedMsg struct{}

type watchErrMsg struct{ err error }

type monitorModel struct {
	statusPath string
	kbPath     string
	pidPath    string

	spinner  spinner.Model
	watcher  *fsnotify.Watcher
	status   agent.Status
	running  bool
	loadErr  error
	lastLoad time.Time
}

func newMonitorModel(statusPath, kbPath, pidPath string) monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return monitorModel{
		statusPath: statusPath,
		kbPath:     kbPath,
		pidPath:    pidPath,
		spinner:    s,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startWatcher(), m.refresh(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(monitorRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// startWatcher watches the data directory so knowledge base writes show
// up immediately instead of waiting for the next tick. The agent replaces
// the file via rename, so the directory is watched, not the file itself.
func (m monitorModel) startWatcher() tea.Cmd {
	return func() tea.Msg {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return watchErrMsg{err}
		}
		if err := w.Add(filepath.Dir(m.kbPath)); err != nil {
			w.Close()
			return watchErrMsg{err}
		}
		return watcherReadyMsg{w}
	}
}

type watcherReadyMsg struct{ watcher *fsnotify.Watcher }

// waitForChange blocks on the watcher until the knowledge base or status
// snapshot changes.
func waitForChange(w *fsnotify.Watcher, kbPath, statusPath string) tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if ev.Name == kbPath || ev.Name == statusPath {
					return kbChangedMsg{}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				return watchErrMsg{err}
			}
		}
	}
}

// refresh reloads the status snapshot from disk.
func (m monitorModel) refresh() tea.Cmd {
	statusPath, pidPath := m.statusPath, m.pidPath
	return func() tea.Msg {
		st, err := agent.ReadStatusFile(statusPath)
		pid, pidErr := agent.ReadPIDFile(pidPath)
		running := pidErr == nil && agent.ProcessAlive(pid)
		return statusLoadedMsg{status: st, running: running, err: err}
	}
}

type statusLoadedMsg struct {
	status  agent.Status
	running bool
	err     error
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc":
			if m.watcher != nil {
				m.watcher.Close()
			}
			return m, tea.Quit
		case "ctrl+c":
			// Interrupt means stop the agent itself, not just the view.
			if m.watcher != nil {
				m.watcher.Close()
			}
			stopAgentProcess(m.pidPath)
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case kbChangedMsg:
		cmds := []tea.Cmd{m.refresh()}
		if m.watcher != nil {
			cmds = append(cmds, waitForChange(m.watcher, m.kbPath, m.statusPath))
		}
		return m, tea.Batch(cmds...)

	case watcherReadyMsg:
		m.watcher = msg.watcher
		return m, waitForChange(m.watcher, m.kbPath, m.statusPath)

	case watchErrMsg:
		// Watching is an optimization; the periodic tick still refreshes.
		return m, nil

	case statusLoadedMsg:
		m.status = msg.status
		m.running = msg.running
		m.loadErr = msg.err
		m.lastLoad = time.Now()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m monitorModel) View() string {
	var b []string

	header := titleStyle.Render("prospector") + "  "
	if m.running {
		header += m.spinner.View() + okStyle.Render(" running")
	} else {
		header += warnStyle.Render("● stopped")
	}
	b = append(b, header, "")

	if m.loadErr != nil {
		b = append(b, errStyle.Render("no status snapshot yet"),
			dimStyle.Render("start the agent with: prospector start <website>"))
		return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, b...)) + "\n" + footer()
	}

	st := m.status
	row := func(label, value string) {
		b = append(b, labelStyle.Render(label)+valueStyle.Render(value))
	}

	row("Website", st.Website)
	row("Goal", st.Goal)
	if st.Profile != nil && st.Profile.CompanyName != "" {
		row("Business", fmt.Sprintf("%s (%s)", st.Profile.CompanyName, st.Profile.Industry))
	}
	if m.running {
		row("Uptime", (time.Duration(st.UptimeSeconds) * time.Second).String())
	}
	b = append(b, "")

	row("Prospects", fmt.Sprintf("%d discovered, %d qualified", st.Metrics.ProspectsDiscovered, st.Metrics.ProspectsQualified))
	row("Emails", fmt.Sprintf("%d sent, %d failed", st.Metrics.EmailsSent, st.Metrics.EmailsFailed))
	row("Today", fmt.Sprintf("%d sent", st.SentToday))
	row("Pending", fmt.Sprintf("%d awaiting email", st.PendingEmails))
	row("Knowledge base", fmt.Sprintf("%d bytes", st.KnowledgeBytes))

	cycles := ""
	if st.DiscoveryActive {
		cycles += okStyle.Render("discovery ")
	}
	if st.EmailActive {
		cycles += okStyle.Render("email")
	}
	if cycles != "" {
		row("Active cycles", cycles)
	}

	if len(st.RecentLearnings) > 0 {
		b = append(b, "", titleStyle.Render("Recent activity"))
		for _, l := range st.RecentLearnings {
			b = append(b, dimStyle.Render(fmt.Sprintf("  %s  %s", l.CreatedAt.Local().Format("15:04:05"), l.Type)))
		}
	}

	b = append(b, "", dimStyle.Render("updated "+m.lastLoad.Format("15:04:05")))
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, b...)) + "\n" + footer()
}

func footer() string {
	return dimStyle.Render("  q quit · r refresh · ctrl+c stop agent")
}

// stopAgentProcess signals the running agent, if any. Best effort; the
// dashboard exits either way.
func stopAgentProcess(pidPath string) {
	pid, err := agent.ReadPIDFile(pidPath)
	if err != nil || !agent.ProcessAlive(pid) {
		return
	}
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Signal(syscall.SIGTERM)
	}
}
