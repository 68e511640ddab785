package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hum-tech/tsoam/internal/domain"
)

// Coordinator is the part of the offline service the watch view drives
type Coordinator interface {
	GetSyncStatus(ctx context.Context) domain.SyncStatus
	ForceSyncAll(ctx context.Context) domain.CycleResult
	SetOnline(online bool)
	Online() bool
}

// listenProgressCmd reads the next event from the progress channel
func listenProgressCmd(ch <-chan domain.SyncProgress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return progressClosedMsg{}
		}
		return ProgressMsg{Progress: p}
	}
}

// refreshStatusCmd loads a status snapshot
func refreshStatusCmd(ctx context.Context, coord Coordinator) tea.Cmd {
	return func() tea.Msg {
		return StatusMsg{Status: coord.GetSyncStatus(ctx)}
	}
}

// forceSyncCmd runs one cycle in the background
func forceSyncCmd(ctx context.Context, coord Coordinator) tea.Cmd {
	return func() tea.Msg {
		return SyncDoneMsg{Result: coord.ForceSyncAll(ctx)}
	}
}

// TickCmd returns a command that sends a tick after a delay
func TickCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}
