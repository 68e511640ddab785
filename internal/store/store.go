package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hum-tech/tsoam/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Driver names accepted by Open.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open creates the durable store selected by driver.
func Open(driver, path string) (domain.DurableStore, error) {
	switch strings.ToLower(driver) {
	case "", DriverBolt:
		s, err := NewBoltStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}
}

// indexSep separates module and key inside index keys
const indexSep = "\x00"

// Per-partition helper buckets:
//
//	idx_<partition>:  module\x00key -> ""        (module index, prefix scans)
//	ts_<partition>:   be64(time)+key -> ""      (time index, ordered scans)
//	own_<partition>:  key -> be64(time)+module  (reverse lookup for re-index/delete)
func indexBucket(p domain.Partition) []byte { return []byte("idx_" + string(p)) }
func timeBucket(p domain.Partition) []byte  { return []byte("ts_" + string(p)) }
func ownerBucket(p domain.Partition) []byte { return []byte("own_" + string(p)) }

func helperBuckets(p domain.Partition) [][]byte {
	return [][]byte{indexBucket(p), timeBucket(p), ownerBucket(p)}
}

func indexKey(module, key string) []byte {
	return []byte(module + indexSep + key)
}

func timeKey(ts int64, key string) []byte {
	k := make([]byte, 8, 8+len(key))
	binary.BigEndian.PutUint64(k, uint64(ts))
	return append(k, key...)
}

func ownerValue(ts int64, module string) []byte {
	return timeKey(ts, module)
}

func parseOwner(v []byte) (ts int64, module string) {
	if len(v) < 8 {
		return 0, string(v)
	}
	return int64(binary.BigEndian.Uint64(v[:8])), string(v[8:])
}

// recordTime returns rec's timestamp, or 0 when it carries none.
func recordTime(rec domain.Record) int64 {
	if t, ok := rec.(domain.TimedRecord); ok {
		return t.RecordTime()
	}
	return 0
}

// BoltStore implements domain.DurableStore using BoltDB.
// One bucket per partition; values are JSON.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (creating if needed) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, p := range domain.Partitions() {
			if _, err := tx.CreateBucketIfNotExists([]byte(p)); err != nil {
				return err
			}
			if !p.Indexed() {
				continue
			}
			for _, name := range helperBuckets(p) {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *BoltStore) Path() string { return s.path }

func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *BoltStore) Store(ctx context.Context, p domain.Partition, rec domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", p, err)
	}
	key := []byte(rec.RecordKey())
	module := rec.RecordModule()
	ts := recordTime(rec)

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		if !p.Indexed() {
			return nil
		}

		if err := unindex(tx, p, string(key)); err != nil {
			return err
		}
		if err := tx.Bucket(ownerBucket(p)).Put(key, ownerValue(ts, module)); err != nil {
			return err
		}
		if err := tx.Bucket(timeBucket(p)).Put(timeKey(ts, string(key)), []byte{}); err != nil {
			return err
		}
		return tx.Bucket(indexBucket(p)).Put(indexKey(module, string(key)), []byte{})
	})
	if err != nil {
		return &domain.StorageError{Op: "store", Partition: p, Err: err}
	}
	return nil
}

func (s *BoltStore) Retrieve(ctx context.Context, p domain.Partition, key string, dest any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return false, &domain.StorageError{Op: "retrieve", Partition: p, Err: err}
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", p, key, err)
	}
	return true, nil
}

func (s *BoltStore) RetrieveAll(ctx context.Context, p domain.Partition) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []json.RawMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		if !p.Indexed() {
			return b.ForEach(func(_, v []byte) error {
				out = append(out, bytes.Clone(v))
				return nil
			})
		}
		return tx.Bucket(timeBucket(p)).ForEach(func(k, _ []byte) error {
			if v := b.Get(k[8:]); v != nil {
				out = append(out, bytes.Clone(v))
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "retrieve all", Partition: p, Err: err}
	}
	return out, nil
}

func (s *BoltStore) RetrieveByModule(ctx context.Context, p domain.Partition, module string) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.Indexed() {
		return nil, fmt.Errorf("partition %s has no module index", p)
	}

	var out []json.RawMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		prefix := []byte(module + indexSep)
		c := tx.Bucket(indexBucket(p)).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if v := b.Get(k[len(prefix):]); v != nil {
				out = append(out, bytes.Clone(v))
			}
		}
		return nil
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "retrieve by module", Partition: p, Err: err}
	}
	return out, nil
}

func (s *BoltStore) Delete(ctx context.Context, p domain.Partition, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		if err := b.Delete([]byte(key)); err != nil {
			return err
		}
		if !p.Indexed() {
			return nil
		}
		return unindex(tx, p, key)
	})
	if err != nil {
		return &domain.StorageError{Op: "delete", Partition: p, Err: err}
	}
	return nil
}

func (s *BoltStore) Clear(ctx context.Context, p domain.Partition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Drop and recreate the partition and its index buckets
	err := s.db.Update(func(tx *bolt.Tx) error {
		names := [][]byte{[]byte(p)}
		if p.Indexed() {
			names = append(names, helperBuckets(p)...)
		}
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.StorageError{Op: "clear", Partition: p, Err: err}
	}
	return nil
}

// unindex removes key's module and time index entries.
func unindex(tx *bolt.Tx, p domain.Partition, key string) error {
	own := tx.Bucket(ownerBucket(p))
	prev := own.Get([]byte(key))
	if prev == nil {
		return nil
	}
	ts, module := parseOwner(prev)
	if err := tx.Bucket(indexBucket(p)).Delete(indexKey(module, key)); err != nil {
		return err
	}
	if err := tx.Bucket(timeBucket(p)).Delete(timeKey(ts, key)); err != nil {
		return err
	}
	return own.Delete([]byte(key))
}

func bucket(tx *bolt.Tx, p domain.Partition) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(p))
	if b == nil {
		return nil, fmt.Errorf("unknown partition %s", p)
	}
	return b, nil
}
