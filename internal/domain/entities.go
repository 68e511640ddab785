package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OperationKind is the mutation a PendingOperation replays against the API.
type OperationKind string

const (
	OperationCreate OperationKind = "CREATE"
	OperationUpdate OperationKind = "UPDATE"
	OperationDelete OperationKind = "DELETE"
)

// ParseOperationKind accepts the kind in any letter case.
func ParseOperationKind(s string) (OperationKind, error) {
	switch OperationKind(strings.ToUpper(strings.TrimSpace(s))) {
	case OperationCreate:
		return OperationCreate, nil
	case OperationUpdate:
		return OperationUpdate, nil
	case OperationDelete:
		return OperationDelete, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// CurrentSchemaVersion is stamped on every CachedRecord.
const CurrentSchemaVersion = 1

// MetadataKey is the fixed key of the SyncMetadata record.
const MetadataKey = "last_sync"

// Record is anything persisted in a store partition.
type Record interface {
	// RecordKey returns the primary key within the partition
	RecordKey() string

	// RecordModule returns the owning module ("" for unindexed records)
	RecordModule() string
}

// TimedRecord is a Record with a timestamp the store orders by.
type TimedRecord interface {
	Record

	// RecordTime returns unix millis
	RecordTime() int64
}

// CachedRecord is a locally persisted snapshot of a server-owned entity.
type CachedRecord struct {
	Key          string          `json:"key"` // {module}_{entityKey}
	Data         json.RawMessage `json:"data"`
	LastModified int64           `json:"lastModified"`
	Version      int             `json:"version"`
	Module       string          `json:"module"`
}

func (r CachedRecord) RecordKey() string    { return r.Key }
func (r CachedRecord) RecordModule() string { return r.Module }
func (r CachedRecord) RecordTime() int64    { return r.LastModified }

// CacheKey builds the composite key of a cached entity.
func CacheKey(module, key string) string {
	return module + "_" + key
}

// PendingOperation is a queued mutation awaiting replay.
type PendingOperation struct {
	ID         string          `json:"id"`
	Kind       OperationKind   `json:"type"`
	Module     string          `json:"module"`
	Data       json.RawMessage `json:"data"`
	Timestamp  int64           `json:"timestamp"` // unix millis at enqueue
	RetryCount int             `json:"retryCount"`
	LastError  string          `json:"lastError,omitempty"`
}

func (op PendingOperation) RecordKey() string    { return op.ID }
func (op PendingOperation) RecordModule() string { return op.Module }
func (op PendingOperation) RecordTime() int64    { return op.Timestamp }

// EnqueuedAt returns the enqueue timestamp as a time.
func (op PendingOperation) EnqueuedAt() time.Time {
	return time.UnixMilli(op.Timestamp)
}

// NewOperationID returns {module}_{kind}_{millis}_{random}.
func NewOperationID(module string, kind OperationKind, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%s_%d_%s", module, kind, at.UnixMilli(), suffix)
}

// SyncMetadata is process-wide synchronizer bookkeeping.
type SyncMetadata struct {
	Key      string `json:"key"`
	LastSync int64  `json:"lastSync"` // unix millis
}

func (m SyncMetadata) RecordKey() string    { return m.Key }
func (m SyncMetadata) RecordModule() string { return "" }

// LastSyncTime returns the zero time if no cycle has completed yet.
func (m SyncMetadata) LastSyncTime() time.Time {
	if m.LastSync == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.LastSync)
}

// EntityID extracts the "id" field of a JSON object payload.
// Numbers and strings are both accepted; ok is false when absent or empty.
func EntityID(payload json.RawMessage) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return "", false
	}
	raw, ok := obj["id"]
	if !ok {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		return n.String(), true
	}
	return "", false
}

// SyncStatus is the externally visible state of the synchronizer.
type SyncStatus struct {
	Online            bool
	SyncInProgress    bool
	PendingOperations int
	LastSync          time.Time
	Degraded          bool // no durable store available
}
