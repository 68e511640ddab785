package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hum-tech/tsoam/internal/domain"
)

const (
	DefaultSyncInterval = 5 * time.Minute
	DefaultMaxRetries   = 3
	DefaultGCAge        = 24 * time.Hour
	DefaultGCMinRetries = 2
)

// Options configures an OfflineService. Only Remote is required.
type Options struct {
	// Store is the durable store; nil runs without an offline cache
	Store domain.DurableStore

	Remote       domain.RemoteAPI
	Connectivity domain.ConnectivityObserver
	CacheWorker  domain.CacheWorker
	Registry     *domain.ModuleRegistry
	Logger       *slog.Logger

	// Clock defaults to time.Now
	Clock func() time.Time

	Interval     time.Duration
	MaxRetries   int
	GCAge        time.Duration
	GCMinRetries int
}

// OfflineService queues mutations while offline and replays them against
// the remote API when connectivity allows.
type OfflineService struct {
	store    domain.DurableStore
	remote   domain.RemoteAPI
	conn     domain.ConnectivityObserver
	worker   domain.CacheWorker
	registry *domain.ModuleRegistry
	logger   *slog.Logger
	now      func() time.Time

	interval     time.Duration
	maxRetries   int
	gcAge        time.Duration
	gcMinRetries int

	online    atomic.Bool
	syncing   atomic.Bool
	observers *observerRegistry

	// kick requests a cycle from the Run loop
	kick chan struct{}

	stampMu   sync.Mutex
	lastStamp int64
}

// NewOfflineService creates the coordinator. It does not start any
// goroutines; call Run to react to connectivity and the periodic timer.
func NewOfflineService(opts Options) *OfflineService {
	s := &OfflineService{
		store:        opts.Store,
		remote:       opts.Remote,
		conn:         opts.Connectivity,
		worker:       opts.CacheWorker,
		registry:     opts.Registry,
		logger:       opts.Logger,
		now:          opts.Clock,
		interval:     opts.Interval,
		maxRetries:   opts.MaxRetries,
		gcAge:        opts.GCAge,
		gcMinRetries: opts.GCMinRetries,
		observers:    newObserverRegistry(),
		kick:         make(chan struct{}, 1),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.worker == nil {
		s.worker = domain.NoOpCacheWorker{}
	}
	if s.registry == nil {
		s.registry = domain.NewModuleRegistry(nil)
	}
	if s.interval <= 0 {
		s.interval = DefaultSyncInterval
	}
	if s.maxRetries <= 0 {
		s.maxRetries = DefaultMaxRetries
	}
	if s.gcAge <= 0 {
		s.gcAge = DefaultGCAge
	}
	if s.gcMinRetries <= 0 {
		s.gcMinRetries = DefaultGCMinRetries
	}
	if s.conn != nil {
		s.online.Store(s.conn.Online())
	}

	if s.store == nil {
		s.logger.Warn("offline storage unavailable, running without offline cache")
	}
	return s
}

// Registry returns the module registry used to resolve endpoints.
func (s *OfflineService) Registry() *domain.ModuleRegistry { return s.registry }

// Online reports the current connectivity state.
func (s *OfflineService) Online() bool { return s.online.Load() }

// SetOnline overrides the connectivity state. Going online requests a sync.
func (s *OfflineService) SetOnline(online bool) {
	prev := s.online.Swap(online)
	if prev == online {
		return
	}
	s.logger.Info("connectivity changed", "online", online)
	if online {
		s.requestSync()
	}
}

// requestSync wakes the Run loop without blocking.
func (s *OfflineService) requestSync() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Subscribe registers obs for progress events until the returned func is called.
func (s *OfflineService) Subscribe(obs domain.SyncObserver) (unsubscribe func()) {
	return s.observers.subscribe(obs)
}

// stamp returns a millisecond timestamp strictly greater than the previous one.
func (s *OfflineService) stamp() int64 {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	now := s.now().UnixMilli()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return now
}

func (s *OfflineService) requireStore() error {
	if s.store == nil {
		return domain.ErrStorageUnavailable
	}
	return nil
}

// QueueOperation appends a mutation to the pending log. When online, a sync
// is requested right away.
func (s *OfflineService) QueueOperation(ctx context.Context, module string, kind domain.OperationKind, payload json.RawMessage) (domain.PendingOperation, error) {
	if err := s.requireStore(); err != nil {
		return domain.PendingOperation{}, err
	}
	kind, err := domain.ParseOperationKind(string(kind))
	if err != nil {
		return domain.PendingOperation{}, err
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return domain.PendingOperation{}, fmt.Errorf("payload for %s is not valid JSON", module)
	}

	ts := s.stamp()
	op := domain.PendingOperation{
		ID:        domain.NewOperationID(module, kind, time.UnixMilli(ts)),
		Kind:      kind,
		Module:    module,
		Data:      payload,
		Timestamp: ts,
	}
	if err := s.store.Store(ctx, domain.PartitionOperations, op); err != nil {
		s.logger.Error("failed to queue operation", "module", module, "kind", kind, "error", err)
		return domain.PendingOperation{}, err
	}

	s.logger.Info("queued operation", "id", op.ID, "module", module, "kind", kind)
	if s.Online() {
		s.requestSync()
	}
	return op, nil
}

// StoreOfflineData caches payload as {module}_{key}, replacing any previous value.
func (s *OfflineService) StoreOfflineData(ctx context.Context, module, key string, payload json.RawMessage) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	return s.cacheRecord(ctx, module, key, payload)
}

func (s *OfflineService) cacheRecord(ctx context.Context, module, key string, payload json.RawMessage) error {
	rec := domain.CachedRecord{
		Key:          domain.CacheKey(module, key),
		Data:         payload,
		LastModified: s.stamp(),
		Version:      domain.CurrentSchemaVersion,
		Module:       module,
	}
	return s.store.Store(ctx, domain.PartitionData, rec)
}

// GetOfflineData returns the cached payload for {module}_{key}.
func (s *OfflineService) GetOfflineData(ctx context.Context, module, key string) (json.RawMessage, bool, error) {
	if err := s.requireStore(); err != nil {
		return nil, false, err
	}
	var rec domain.CachedRecord
	found, err := s.store.Retrieve(ctx, domain.PartitionData, domain.CacheKey(module, key), &rec)
	if err != nil || !found {
		return nil, false, err
	}
	return rec.Data, true, nil
}

// GetModuleData returns every cached record of module, newest first.
func (s *OfflineService) GetModuleData(ctx context.Context, module string) ([]domain.CachedRecord, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	raws, err := s.store.RetrieveByModule(ctx, domain.PartitionData, module)
	if err != nil {
		return nil, err
	}
	recs, err := domain.DecodeAll[domain.CachedRecord](raws)
	if err != nil {
		return nil, fmt.Errorf("decode cached records: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].LastModified > recs[j].LastModified
	})
	return recs, nil
}

// AllOfflineData returns every cached record across modules.
func (s *OfflineService) AllOfflineData(ctx context.Context) ([]domain.CachedRecord, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	raws, err := s.store.RetrieveAll(ctx, domain.PartitionData)
	if err != nil {
		return nil, err
	}
	return domain.DecodeAll[domain.CachedRecord](raws)
}

// PendingOperations returns the queued operations in replay order
// (module first appearance, then timestamp).
func (s *OfflineService) PendingOperations(ctx context.Context) ([]domain.PendingOperation, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	ops, err := s.loadOperations(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.PendingOperation
	for _, g := range groupByModule(ops) {
		out = append(out, g.ops...)
	}
	return out, nil
}

// GetSyncStatus reports connectivity, the single-flight flag, the pending
// count and the last completed sync. Storage failures are logged and
// leave the affected fields zero.
func (s *OfflineService) GetSyncStatus(ctx context.Context) domain.SyncStatus {
	status := domain.SyncStatus{
		Online:         s.Online(),
		SyncInProgress: s.syncing.Load(),
		Degraded:       s.store == nil,
	}
	if s.store == nil {
		return status
	}

	raws, err := s.store.RetrieveAll(ctx, domain.PartitionOperations)
	if err != nil {
		s.logger.Error("failed to count pending operations", "error", err)
	} else {
		status.PendingOperations = len(raws)
	}

	var meta domain.SyncMetadata
	if found, err := s.store.Retrieve(ctx, domain.PartitionMetadata, domain.MetadataKey, &meta); err != nil {
		s.logger.Error("failed to read sync metadata", "error", err)
	} else if found {
		status.LastSync = meta.LastSyncTime()
	}
	return status
}

// ClearOfflineData wipes cached records, pending operations and metadata.
func (s *OfflineService) ClearOfflineData(ctx context.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	var errs []error
	for _, p := range domain.Partitions() {
		if err := s.store.Clear(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("cleared offline data")
	return nil
}

// Run reacts to connectivity events, enqueue requests and the periodic
// timer until ctx is cancelled. Cycles run on their own goroutine; Run
// waits for an in-flight cycle before returning.
func (s *OfflineService) Run(ctx context.Context) error {
	var events <-chan domain.ConnectivityEvent
	if s.conn != nil {
		events = s.conn.Events(ctx)
		// Transitions published before the subscription are not replayed
		if online := s.conn.Online(); s.online.Swap(online) != online {
			s.logger.Info("connectivity changed", "online", online)
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	trigger := func(reason string) {
		if !s.Online() {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.ForceSyncAll(ctx)
			if !res.Skipped {
				s.logger.Debug("sync cycle finished", "reason", reason,
					"succeeded", res.Succeeded, "dropped", res.Dropped, "errors", len(res.Errors))
			}
		}()
	}

	if s.Online() {
		trigger("startup")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Kind {
			case domain.EventOnline:
				s.SetOnline(true)
			case domain.EventOffline:
				s.SetOnline(false)
			case domain.EventResumed:
				s.logger.Debug("resumed", "online", s.Online())
				trigger("resumed")
			}
		case <-s.kick:
			trigger("requested")
		case <-ticker.C:
			trigger("interval")
		}
	}
}
