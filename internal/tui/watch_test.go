package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	online bool
	status domain.SyncStatus
	syncs  int
}

func (f *fakeCoordinator) GetSyncStatus(context.Context) domain.SyncStatus {
	s := f.status
	s.Online = f.online
	return s
}

func (f *fakeCoordinator) ForceSyncAll(context.Context) domain.CycleResult {
	f.syncs++
	return domain.CycleResult{Succeeded: 1}
}

func (f *fakeCoordinator) SetOnline(online bool) { f.online = online }
func (f *fakeCoordinator) Online() bool          { return f.online }

func update(t *testing.T, m WatchModel, msg tea.Msg) (WatchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(WatchModel)
	require.True(t, ok)
	return wm, cmd
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWatchModelShowsStatus(t *testing.T) {
	coord := &fakeCoordinator{online: true, status: domain.SyncStatus{PendingOperations: 3}}
	m := NewWatchModel(context.Background(), coord, make(chan domain.SyncProgress))

	m, _ = update(t, m, StatusMsg{Status: coord.GetSyncStatus(context.Background())})
	view := m.View()
	assert.Contains(t, view, "ONLINE")
	assert.Contains(t, view, "Pending operations: 3")
	assert.Contains(t, view, "Last sync: never")
	assert.Contains(t, view, "Idle")
}

func TestWatchModelTracksProgress(t *testing.T) {
	ch := make(chan domain.SyncProgress, 1)
	m := NewWatchModel(context.Background(), &fakeCoordinator{}, ch)

	m, cmd := update(t, m, ProgressMsg{Progress: domain.SyncProgress{
		Step: domain.StepSyncing, Progress: 50, Total: 100, Message: "Synced members CREATE",
	}})
	assert.True(t, m.syncing)
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Synced members CREATE")

	m, _ = update(t, m, ProgressMsg{Progress: domain.SyncProgress{
		Step: domain.StepComplete, Progress: 100, Total: 100,
		Errors: []string{"events CREATE op-1: remote API returned 500 Internal Server Error"},
	}})
	assert.False(t, m.syncing)
	view := m.View()
	assert.Contains(t, view, "Errors (1)")
	assert.Contains(t, view, "Complete")
}

func TestWatchModelLogIsBounded(t *testing.T) {
	m := NewWatchModel(context.Background(), &fakeCoordinator{}, make(chan domain.SyncProgress))
	for i := 0; i < maxLogLines*2; i++ {
		m, _ = update(t, m, ProgressMsg{Progress: domain.SyncProgress{Step: domain.StepSyncing, Total: 100}})
	}
	assert.Len(t, m.log, maxLogLines)
}

func TestWatchModelKeys(t *testing.T) {
	coord := &fakeCoordinator{}
	m := NewWatchModel(context.Background(), coord, make(chan domain.SyncProgress))

	m, cmd := update(t, m, keyMsg("o"))
	assert.True(t, coord.online)
	require.NotNil(t, cmd)

	m, cmd = update(t, m, keyMsg("s"))
	require.NotNil(t, cmd)
	assert.True(t, m.syncing)

	// A second press while syncing is ignored
	_, again := update(t, m, keyMsg("s"))
	assert.Nil(t, again)

	msg := cmd()
	done, ok := msg.(SyncDoneMsg)
	require.True(t, ok)
	assert.Equal(t, 1, done.Result.Succeeded)
	assert.Equal(t, 1, coord.syncs)

	m, _ = update(t, m, done)
	assert.False(t, m.syncing)

	_, cmd = update(t, m, keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestListenProgressCmd(t *testing.T) {
	ch := make(chan domain.SyncProgress, 1)
	ch <- domain.SyncProgress{Step: domain.StepStarting}
	msg := listenProgressCmd(ch)()
	assert.Equal(t, ProgressMsg{Progress: domain.SyncProgress{Step: domain.StepStarting}}, msg)

	close(ch)
	assert.IsType(t, progressClosedMsg{}, listenProgressCmd(ch)())
}

func TestChannelObserverNeverBlocks(t *testing.T) {
	ch := make(chan domain.SyncProgress, 1)
	obs := NewChannelObserver(ch)

	done := make(chan struct{})
	go func() {
		obs.OnProgress(domain.SyncProgress{Step: domain.StepStarting})
		obs.OnProgress(domain.SyncProgress{Step: domain.StepComplete})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer blocked on a full channel")
	}
	// The final event displaces the queued intermediate one
	assert.Equal(t, domain.StepComplete, (<-ch).Step)
}

func TestChannelObserverDropsIntermediateWhenFull(t *testing.T) {
	ch := make(chan domain.SyncProgress, 1)
	obs := NewChannelObserver(ch)

	obs.OnProgress(domain.SyncProgress{Step: domain.StepStarting})
	obs.OnProgress(domain.SyncProgress{Step: domain.StepLoading})
	assert.Equal(t, domain.StepStarting, (<-ch).Step)
	assert.Empty(t, ch)
}
