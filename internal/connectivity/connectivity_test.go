package connectivity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan domain.ConnectivityEvent) domain.ConnectivityEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.ConnectivityEvent{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan domain.ConnectivityEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManualPublishesTransitionsOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManual(false)
	events := m.Events(ctx)

	m.SetOnline(false)
	assertNoEvent(t, events)

	m.SetOnline(true)
	assert.Equal(t, domain.EventOnline, receive(t, events).Kind)
	assert.True(t, m.Online())

	m.Resume()
	assert.Equal(t, domain.EventResumed, receive(t, events).Kind)

	m.SetOnline(false)
	assert.Equal(t, domain.EventOffline, receive(t, events).Kind)
}

func TestManualClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := NewManual(true).Events(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

type fakePinger struct {
	up atomic.Bool
}

func (f *fakePinger) Ping(context.Context, string) error {
	if f.up.Load() {
		return nil
	}
	return domain.ErrOffline
}

func TestProberReportsTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pinger := &fakePinger{}
	p := NewProber(pinger, "/health", time.Hour, nil)
	events := p.Events(ctx)

	assert.False(t, p.Probe(ctx))
	assertNoEvent(t, events)

	pinger.up.Store(true)
	assert.True(t, p.Probe(ctx))
	assert.Equal(t, domain.EventOnline, receive(t, events).Kind)

	assert.True(t, p.Probe(ctx))
	assertNoEvent(t, events)

	pinger.up.Store(false)
	assert.False(t, p.Probe(ctx))
	assert.Equal(t, domain.EventOffline, receive(t, events).Kind)
	assert.False(t, p.Online())
}

func TestTokenWatcherEmitsResumed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	inner := NewManual(true)
	w := NewTokenWatcher(inner, path, nil)
	events := w.Events(ctx)

	assert.True(t, w.Online())

	// Unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0600))
	assertNoEvent(t, events)

	require.NoError(t, os.WriteFile(path, []byte("fresh-token"), 0600))
	assert.Equal(t, domain.EventResumed, receive(t, events).Kind)

	// Drain duplicate notifications from the same write
	drain := time.After(100 * time.Millisecond)
loop:
	for {
		select {
		case <-events:
		case <-drain:
			break loop
		}
	}

	inner.SetOnline(false)
	assert.Equal(t, domain.EventOffline, receive(t, events).Kind)
}

func TestTokenWatcherMissingDirectory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := NewManual(false)
	w := NewTokenWatcher(inner, filepath.Join(t.TempDir(), "missing", "token"), nil)
	events := w.Events(ctx)

	inner.SetOnline(true)
	assert.Equal(t, domain.EventOnline, receive(t, events).Kind)
}

func TestProbeIgnoresCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProber(pingerFunc(func(context.Context, string) error { return errors.New("cancelled") }), "/", 0, nil)
	p.online.Store(true)
	assert.True(t, p.Probe(ctx))
}

type pingerFunc func(context.Context, string) error

func (f pingerFunc) Ping(ctx context.Context, path string) error { return f(ctx, path) }
