package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hum-tech/tsoam/internal/connectivity"
	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/hum-tech/tsoam/internal/store"
	"github.com/stretchr/testify/require"
)

type remoteCall struct {
	Method   string
	Endpoint string
	ID       string
	Payload  string
}

// fakeRemote records calls and assigns sequential ids on Create.
type fakeRemote struct {
	mu     sync.Mutex
	calls  []remoteCall
	nextID int
	fail   map[string]error

	// gate, when set, holds every call until closed; entered is signalled first
	gate    chan struct{}
	entered chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{fail: make(map[string]error)}
}

func (f *fakeRemote) failEndpoint(endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[endpoint] = err
}

func (f *fakeRemote) record(c remoteCall) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	err := f.fail[c.Endpoint]
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}
	return err
}

func (f *fakeRemote) Create(_ context.Context, endpoint string, payload json.RawMessage) (json.RawMessage, error) {
	if err := f.record(remoteCall{Method: "POST", Endpoint: endpoint, Payload: string(payload)}); err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.nextID++
	obj["id"] = f.nextID
	f.mu.Unlock()
	return json.Marshal(obj)
}

func (f *fakeRemote) Update(_ context.Context, endpoint, id string, payload json.RawMessage) (json.RawMessage, error) {
	if err := f.record(remoteCall{Method: "PUT", Endpoint: endpoint, ID: id, Payload: string(payload)}); err != nil {
		return nil, err
	}
	return payload, nil
}

func (f *fakeRemote) Delete(_ context.Context, endpoint, id string) error {
	return f.record(remoteCall{Method: "DELETE", Endpoint: endpoint, ID: id})
}

func (f *fakeRemote) Calls() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remoteCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// progressLog collects every event a subscriber sees.
type progressLog struct {
	mu     sync.Mutex
	events []domain.SyncProgress
}

func (l *progressLog) OnProgress(p domain.SyncProgress) {
	l.mu.Lock()
	l.events = append(l.events, p)
	l.mu.Unlock()
}

func (l *progressLog) Events() []domain.SyncProgress {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.SyncProgress, len(l.events))
	copy(out, l.events)
	return out
}

func (l *progressLog) Steps(step string) []domain.SyncProgress {
	var out []domain.SyncProgress
	for _, e := range l.Events() {
		if e.Step == step {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	svc    *OfflineService
	store  domain.DurableStore
	remote *fakeRemote
	clock  *fakeClock
	conn   *connectivity.Manual
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	h := &harness{
		store:  store.NewMemoryStore(),
		remote: newFakeRemote(),
		clock:  &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		conn:   connectivity.NewManual(online),
	}
	h.svc = NewOfflineService(Options{
		Store:        h.store,
		Remote:       h.remote,
		Connectivity: h.conn,
		Logger:       quietLogger(),
		Clock:        h.clock.Now,
	})
	t.Cleanup(func() { h.store.Close() })
	return h
}

func (h *harness) queue(t *testing.T, module string, kind domain.OperationKind, payload string) domain.PendingOperation {
	t.Helper()
	op, err := h.svc.QueueOperation(context.Background(), module, kind, json.RawMessage(payload))
	require.NoError(t, err)
	h.clock.Advance(time.Millisecond)
	return op
}

func (h *harness) put(t *testing.T, op domain.PendingOperation) {
	t.Helper()
	require.NoError(t, h.store.Store(context.Background(), domain.PartitionOperations, op))
}

func (h *harness) pending(t *testing.T) map[string]domain.PendingOperation {
	t.Helper()
	raws, err := h.store.RetrieveAll(context.Background(), domain.PartitionOperations)
	require.NoError(t, err)
	ops, err := domain.DecodeAll[domain.PendingOperation](raws)
	require.NoError(t, err)
	out := make(map[string]domain.PendingOperation, len(ops))
	for _, op := range ops {
		out[op.ID] = op
	}
	return out
}
