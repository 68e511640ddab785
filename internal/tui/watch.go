// Package tui renders a live view of the offline sync coordinator.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/hum-tech/tsoam/internal/tui/styles"
)

const (
	statusRefreshInterval = 2 * time.Second
	maxLogLines           = 8
	defaultBarWidth       = 40
)

// WatchModel shows connectivity, the pending count and the progress of the
// current cycle, and lets the user force a sync or flip connectivity.
type WatchModel struct {
	ctx      context.Context
	coord    Coordinator
	progress <-chan domain.SyncProgress
	keys     KeyMap
	spinner  spinner.Model

	status  domain.SyncStatus
	current domain.SyncProgress
	log     []string
	errors  []string
	syncing bool
	width   int
}

// NewWatchModel creates the watch view. progress should be fed by a
// ChannelObserver subscribed to the coordinator.
func NewWatchModel(ctx context.Context, coord Coordinator, progress <-chan domain.SyncProgress) WatchModel {
	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(styles.SpinnerStyle),
	)
	return WatchModel{
		ctx:      ctx,
		coord:    coord,
		progress: progress,
		keys:     DefaultKeyMap(),
		spinner:  sp,
		width:    defaultBarWidth + 20,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(
		listenProgressCmd(m.progress),
		refreshStatusCmd(m.ctx, m.coord),
		TickCmd(statusRefreshInterval),
		m.spinner.Tick,
	)
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Sync):
			if m.syncing {
				return m, nil
			}
			m.syncing = true
			return m, forceSyncCmd(m.ctx, m.coord)
		case key.Matches(msg, m.keys.ToggleOnline):
			m.coord.SetOnline(!m.coord.Online())
			return m, refreshStatusCmd(m.ctx, m.coord)
		case key.Matches(msg, m.keys.Refresh):
			return m, refreshStatusCmd(m.ctx, m.coord)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case ProgressMsg:
		m.applyProgress(msg.Progress)
		cmds := []tea.Cmd{listenProgressCmd(m.progress)}
		if msg.Progress.Done() {
			cmds = append(cmds, refreshStatusCmd(m.ctx, m.coord))
		}
		return m, tea.Batch(cmds...)

	case progressClosedMsg:
		return m, nil

	case StatusMsg:
		m.status = msg.Status
		m.syncing = m.syncing || msg.Status.SyncInProgress

	case SyncDoneMsg:
		m.syncing = false
		if msg.Result.Skipped {
			m.appendLog(styles.DimStyle.Render("sync skipped (offline or already running)"))
		}
		return m, refreshStatusCmd(m.ctx, m.coord)

	case TickMsg:
		return m, tea.Batch(refreshStatusCmd(m.ctx, m.coord), TickCmd(statusRefreshInterval))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *WatchModel) applyProgress(p domain.SyncProgress) {
	m.current = p
	m.errors = p.Errors
	m.syncing = !p.Done()

	line := fmt.Sprintf("%3d%%  %-18s %s", p.Progress, p.Step, p.Message)
	switch p.Step {
	case domain.StepError:
		line = styles.ErrorStyle.Render(line)
	case domain.StepComplete:
		line = styles.SuccessStyle.Render(line)
	}
	m.appendLog(line)
}

func (m *WatchModel) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m WatchModel) View() string {
	var b strings.Builder

	badge := styles.OfflineBadge.Render("OFFLINE")
	if m.status.Online {
		badge = styles.OnlineBadge.Render("ONLINE")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		styles.TitleStyle.Render("tsoam sync"), " ", badge)
	if m.status.Degraded {
		header = lipgloss.JoinHorizontal(lipgloss.Center, header, " ",
			styles.DimBadgeStyle.Render("NO OFFLINE CACHE"))
	}
	b.WriteString(header + "\n\n")

	last := "never"
	if !m.status.LastSync.IsZero() {
		last = m.status.LastSync.Local().Format("2006-01-02 15:04:05")
	}
	b.WriteString(styles.SubtitleStyle.Render(fmt.Sprintf("Pending operations: %d", m.status.PendingOperations)) + "\n")
	b.WriteString(styles.SubtitleStyle.Render("Last sync: "+last) + "\n\n")

	barWidth := m.width - 20
	if barWidth > defaultBarWidth {
		barWidth = defaultBarWidth
	}
	percent := 0.0
	if m.current.Total > 0 {
		percent = float64(m.current.Progress) * 100 / float64(m.current.Total)
	}
	prefix := "  "
	if m.syncing {
		prefix = m.spinner.View() + " "
	}
	step := m.current.Step
	if step == "" {
		step = "Idle"
	}
	b.WriteString(prefix + styles.RenderProgressBar(percent, barWidth) + " " + styles.AccentStyle.Render(step) + "\n\n")

	for _, line := range m.log {
		b.WriteString(line + "\n")
	}

	if len(m.errors) > 0 {
		b.WriteString("\n" + styles.ErrorStyle.Render(fmt.Sprintf("Errors (%d):", len(m.errors))) + "\n")
		for _, e := range m.errors {
			b.WriteString(styles.ErrorStyle.Render("  "+styles.Truncate(e, m.width-4)) + "\n")
		}
	}

	b.WriteString("\n" + m.helpView())
	return styles.ActiveBorder.Render(b.String())
}

func (m WatchModel) helpView() string {
	var parts []string
	for _, binding := range m.keys.ShortHelp() {
		h := binding.Help()
		parts = append(parts, styles.HelpKeyStyle.Render(h.Key)+" "+styles.HelpDescStyle.Render(h.Desc))
	}
	return strings.Join(parts, styles.DimStyle.Render(" • "))
}
