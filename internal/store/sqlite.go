package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hum-tech/tsoam/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.DurableStore using modernc.org/sqlite.
// Each partition is a table of (key, module, value, updated_at), where
// updated_at is the record's own timestamp.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database file at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, p := range domain.Partitions() {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
				key        TEXT PRIMARY KEY,
				module     TEXT NOT NULL DEFAULT '',
				value      BLOB NOT NULL,
				updated_at INTEGER NOT NULL
			)`, p),
		}
		if p.Indexed() {
			stmts = append(stmts,
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (module)`, "idx_"+string(p)+"_module", p),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (updated_at)`, "idx_"+string(p)+"_updated", p),
			)
		}
		for _, stmt := range stmts {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("migrate %s: %w", p, err)
			}
		}
	}
	return nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Store(ctx context.Context, p domain.Partition, rec domain.Record) error {
	if err := checkPartition(p); err != nil {
		return &domain.StorageError{Op: "store", Partition: p, Err: err}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", p, err)
	}

	query := fmt.Sprintf(`INSERT INTO %q (key, module, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET module = excluded.module, value = excluded.value, updated_at = excluded.updated_at`, p)
	if _, err := s.db.ExecContext(ctx, query, rec.RecordKey(), rec.RecordModule(), data, recordTime(rec)); err != nil {
		return &domain.StorageError{Op: "store", Partition: p, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Retrieve(ctx context.Context, p domain.Partition, key string, dest any) (bool, error) {
	if err := checkPartition(p); err != nil {
		return false, &domain.StorageError{Op: "retrieve", Partition: p, Err: err}
	}

	var data []byte
	query := fmt.Sprintf(`SELECT value FROM %q WHERE key = ?`, p)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &domain.StorageError{Op: "retrieve", Partition: p, Err: err}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", p, key, err)
	}
	return true, nil
}

func (s *SQLiteStore) RetrieveAll(ctx context.Context, p domain.Partition) ([]json.RawMessage, error) {
	if err := checkPartition(p); err != nil {
		return nil, &domain.StorageError{Op: "retrieve all", Partition: p, Err: err}
	}
	query := fmt.Sprintf(`SELECT value FROM %q ORDER BY updated_at, key`, p)
	return s.queryValues(ctx, "retrieve all", p, query)
}

func (s *SQLiteStore) RetrieveByModule(ctx context.Context, p domain.Partition, module string) ([]json.RawMessage, error) {
	if !p.Indexed() {
		return nil, fmt.Errorf("partition %s has no module index", p)
	}
	query := fmt.Sprintf(`SELECT value FROM %q WHERE module = ? ORDER BY key`, p)
	return s.queryValues(ctx, "retrieve by module", p, query, module)
}

func (s *SQLiteStore) queryValues(ctx context.Context, op string, p domain.Partition, query string, args ...any) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StorageError{Op: op, Partition: p, Err: err}
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, &domain.StorageError{Op: op, Partition: p, Err: err}
		}
		out = append(out, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: op, Partition: p, Err: err}
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, p domain.Partition, key string) error {
	if err := checkPartition(p); err != nil {
		return &domain.StorageError{Op: "delete", Partition: p, Err: err}
	}
	query := fmt.Sprintf(`DELETE FROM %q WHERE key = ?`, p)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return &domain.StorageError{Op: "delete", Partition: p, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, p domain.Partition) error {
	if err := checkPartition(p); err != nil {
		return &domain.StorageError{Op: "clear", Partition: p, Err: err}
	}
	query := fmt.Sprintf(`DELETE FROM %q`, p)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return &domain.StorageError{Op: "clear", Partition: p, Err: err}
	}
	return nil
}

// checkPartition guards the table names interpolated into queries.
func checkPartition(p domain.Partition) error {
	for _, known := range domain.Partitions() {
		if p == known {
			return nil
		}
	}
	return fmt.Errorf("unknown partition %s", p)
}
