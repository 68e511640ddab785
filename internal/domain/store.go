package domain

import (
	"context"
	"encoding/json"
)

// Partition names a table in the durable store.
type Partition string

const (
	PartitionData       Partition = "offline_data"
	PartitionOperations Partition = "offline_operations"
	PartitionMetadata   Partition = "sync_metadata"
)

// Partitions lists every partition in creation order.
func Partitions() []Partition {
	return []Partition{PartitionData, PartitionOperations, PartitionMetadata}
}

// Indexed reports whether records in p carry a module index.
func (p Partition) Indexed() bool {
	return p == PartitionData || p == PartitionOperations
}

// DurableStore is crash-durable, partitioned key-value storage.
// Every call is independently atomic. Values are JSON encoded.
type DurableStore interface {
	// Store inserts or replaces rec under rec.RecordKey()
	Store(ctx context.Context, p Partition, rec Record) error

	// Retrieve decodes the record at key into dest.
	// A missing key returns (false, nil).
	Retrieve(ctx context.Context, p Partition, key string, dest any) (bool, error)

	// RetrieveAll returns every record ordered by RecordTime, then key.
	// Records without a time sort first.
	RetrieveAll(ctx context.Context, p Partition) ([]json.RawMessage, error)

	// RetrieveByModule scans the module index of an indexed partition
	RetrieveByModule(ctx context.Context, p Partition, module string) ([]json.RawMessage, error)

	// Delete removes key; missing keys are not an error
	Delete(ctx context.Context, p Partition, key string) error

	// Clear removes every record in p
	Clear(ctx context.Context, p Partition) error

	Close() error
}

// DecodeAll unmarshals raw records into a typed slice.
func DecodeAll[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
