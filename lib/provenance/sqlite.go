// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/raptorcast/lib/sqlitepool"
)

// sqliteSchema creates the single entries table. seq is the write
// order; replacing an entry deletes and re-inserts it so its seq moves
// to the end.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace  TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      BLOB    NOT NULL,
	root       BLOB    NOT NULL,
	status     INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (namespace, key)
);
CREATE INDEX IF NOT EXISTS entries_namespace_seq ON entries (namespace, seq);
`

const selectColumns = `SELECT namespace, key, value, root, seq, status, updated_at FROM entries`

// SQLiteBackend stores records in a SQLite database through a
// [sqlitepool.Pool]. State survives process restarts, which is what
// lets the CLI verify a broadcast propagated by an earlier invocation.
type SQLiteBackend struct {
	pool *sqlitepool.Pool
}

// SQLiteConfig configures [OpenSQLite].
type SQLiteConfig struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize defaults to sqlitepool.DefaultPoolSize.
	PoolSize int

	// Durable requests synchronous=FULL.
	Durable bool

	Logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at cfg.Path.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteBackend, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Durable:  cfg.Durable,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("provenance: %w", err)
	}
	return &SQLiteBackend{pool: pool}, nil
}

func (s *SQLiteBackend) Load(ctx context.Context, namespace, key string) (Record, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, false, err
	}
	defer s.pool.Put(conn)

	var record Record
	var found bool
	err = sqlitex.Execute(conn, selectColumns+` WHERE namespace = ? AND key = ?`, &sqlitex.ExecOptions{
		Args: []any{namespace, key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record = scanRecord(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("provenance: loading %s/%s: %w", namespace, key, err)
	}
	return record, found, nil
}

func (s *SQLiteBackend) Save(ctx context.Context, record Record) (Record, error) {
	err := s.pool.Transact(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `DELETE FROM entries WHERE namespace = ? AND key = ?`, &sqlitex.ExecOptions{
			Args: []any{record.Namespace, record.Key},
		})
		if err != nil {
			return fmt.Errorf("replacing: %w", err)
		}
		err = sqlitex.Execute(conn,
			`INSERT INTO entries (namespace, key, value, root, status, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					record.Namespace,
					record.Key,
					record.Blob,
					record.Root[:],
					int64(record.Status),
					record.UpdatedAt.UnixNano(),
				},
			})
		if err != nil {
			return fmt.Errorf("inserting: %w", err)
		}
		record.Sequence = uint64(conn.LastInsertRowID())
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("provenance: saving %s/%s: %w", record.Namespace, record.Key, err)
	}
	return record, nil
}

func (s *SQLiteBackend) UpdateStatus(ctx context.Context, namespace, key string, status Status, at time.Time) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `UPDATE entries SET status = ?, updated_at = ? WHERE namespace = ? AND key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{int64(status), at.UnixNano(), namespace, key},
		})
	if err != nil {
		return fmt.Errorf("provenance: updating status of %s/%s: %w", namespace, key, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, namespace, key)
	}
	return nil
}

func (s *SQLiteBackend) List(ctx context.Context, namespace string) ([]Record, error) {
	return s.query(ctx, selectColumns+` WHERE namespace = ? ORDER BY seq`, namespace)
}

func (s *SQLiteBackend) Range(ctx context.Context, namespace, start, end string) ([]Record, error) {
	if end == "" {
		return s.query(ctx, selectColumns+` WHERE namespace = ? AND key >= ? ORDER BY key`, namespace, start)
	}
	return s.query(ctx, selectColumns+` WHERE namespace = ? AND key >= ? AND key < ? ORDER BY key`, namespace, start, end)
}

// Close closes the connection pool.
func (s *SQLiteBackend) Close() error {
	return s.pool.Close()
}

func (s *SQLiteBackend) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			records = append(records, scanRecord(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("provenance: querying %v: %w", args[0], err)
	}
	return records, nil
}

// scanRecord reads a row selected with selectColumns.
func scanRecord(stmt *sqlite.Stmt) Record {
	record := Record{
		Namespace: stmt.ColumnText(0),
		Key:       stmt.ColumnText(1),
		Blob:      make([]byte, stmt.ColumnLen(2)),
		Sequence:  uint64(stmt.ColumnInt64(4)),
		Status:    Status(stmt.ColumnInt64(5)),
		UpdatedAt: time.Unix(0, stmt.ColumnInt64(6)).UTC(),
	}
	stmt.ColumnBytes(2, record.Blob)
	stmt.ColumnBytes(3, record.Root[:])
	return record
}
