package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hum-tech/tsoam/internal/domain"
)

type memoryEntry struct {
	module string
	ts     int64
	data   []byte
}

// MemoryStore implements domain.DurableStore in process memory.
// Nothing survives a restart; used for tests and --store memory runs.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[domain.Partition]map[string]memoryEntry
	closed     bool
}

// NewMemoryStore creates an empty memory-only store.
func NewMemoryStore() *MemoryStore {
	partitions := make(map[domain.Partition]map[string]memoryEntry)
	for _, p := range domain.Partitions() {
		partitions[p] = make(map[string]memoryEntry)
	}
	return &MemoryStore{partitions: partitions}
}

func (s *MemoryStore) partition(p domain.Partition) (map[string]memoryEntry, error) {
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	m, ok := s.partitions[p]
	if !ok {
		return nil, fmt.Errorf("unknown partition %s", p)
	}
	return m, nil
}

func (s *MemoryStore) Store(ctx context.Context, p domain.Partition, rec domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", p, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.partition(p)
	if err != nil {
		return &domain.StorageError{Op: "store", Partition: p, Err: err}
	}
	m[rec.RecordKey()] = memoryEntry{module: rec.RecordModule(), ts: recordTime(rec), data: data}
	return nil
}

func (s *MemoryStore) Retrieve(ctx context.Context, p domain.Partition, key string, dest any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	m, err := s.partition(p)
	var entry memoryEntry
	var ok bool
	if err == nil {
		entry, ok = m[key]
	}
	s.mu.RUnlock()

	if err != nil {
		return false, &domain.StorageError{Op: "retrieve", Partition: p, Err: err}
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", p, key, err)
	}
	return true, nil
}

func (s *MemoryStore) RetrieveAll(ctx context.Context, p domain.Partition) ([]json.RawMessage, error) {
	return s.scan(ctx, "retrieve all", p, true, func(memoryEntry) bool { return true })
}

func (s *MemoryStore) RetrieveByModule(ctx context.Context, p domain.Partition, module string) ([]json.RawMessage, error) {
	if !p.Indexed() {
		return nil, fmt.Errorf("partition %s has no module index", p)
	}
	return s.scan(ctx, "retrieve by module", p, false, func(e memoryEntry) bool { return e.module == module })
}

// scan returns matching entries in key order, or by time then key when
// byTime is set, mirroring the bolt indexes.
func (s *MemoryStore) scan(ctx context.Context, op string, p domain.Partition, byTime bool, match func(memoryEntry) bool) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.partition(p)
	if err != nil {
		return nil, &domain.StorageError{Op: op, Partition: p, Err: err}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if byTime {
		sort.SliceStable(keys, func(i, j int) bool { return m[keys[i]].ts < m[keys[j]].ts })
	}

	var out []json.RawMessage
	for _, k := range keys {
		if e := m[k]; match(e) {
			out = append(out, append(json.RawMessage(nil), e.data...))
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, p domain.Partition, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.partition(p)
	if err != nil {
		return &domain.StorageError{Op: "delete", Partition: p, Err: err}
	}
	delete(m, key)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, p domain.Partition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.partition(p); err != nil {
		return &domain.StorageError{Op: "clear", Partition: p, Err: err}
	}
	s.partitions[p] = make(map[string]memoryEntry)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
