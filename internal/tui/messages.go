package tui

import "github.com/hum-tech/tsoam/internal/domain"

// Message types for the TUI

// ProgressMsg carries one progress event from the coordinator
type ProgressMsg struct {
	Progress domain.SyncProgress
}

// StatusMsg carries a fresh status snapshot
type StatusMsg struct {
	Status domain.SyncStatus
}

// SyncDoneMsg signals that a manually requested cycle returned
type SyncDoneMsg struct {
	Result domain.CycleResult
}

// TickMsg triggers a periodic status refresh
type TickMsg struct{}

// progressClosedMsg signals that the progress channel was closed
type progressClosedMsg struct{}
