// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// DefaultPoolSize is used when Config.PoolSize is zero or negative.
const DefaultPoolSize = 4

// Config holds the parameters for opening a SQLite connection pool.
// Path is required.
type Config struct {
	// Path is the database file. The parent directory must exist; the
	// file is created if missing.
	Path string

	// PoolSize is the number of connections. SQLite serializes writes
	// regardless, so extra connections only help concurrent readers.
	PoolSize int

	// Durable selects synchronous=FULL, which survives power loss at
	// the cost of an fsync per commit. The default, NORMAL, survives
	// process crashes only.
	Durable bool

	// Logger receives open and close messages. Nil discards them.
	Logger *slog.Logger

	// OnConnect runs once per connection after the pragmas, typically
	// to create the schema. An error discards the connection and is
	// returned from Take.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size pool of SQLite connections. It wraps
// sqlitex.Pool and exposes the same Take/Put API.
//
// Pool is safe for concurrent use. Individual connections are not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool. Connections are initialized lazily on first
// Take. The caller must call Close.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	synchronous := "NORMAL"
	if cfg.Durable {
		synchronous = "FULL"
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, synchronous, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened",
		"path", cfg.Path,
		"pool_size", poolSize,
		"synchronous", synchronous,
	)
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// done. The caller must Put it back:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Transact runs fn on a borrowed connection inside an IMMEDIATE
// transaction, committing if fn returns nil and rolling back
// otherwise. IMMEDIATE takes the write lock up front, so read-then-write
// sequences inside fn cannot fail with SQLITE_BUSY halfway through.
func (p *Pool) Transact(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: begin transaction: %w", err)
	}
	defer endTransaction(&err)
	return fn(conn)
}

// Close closes all connections, blocking until borrowed ones are
// returned.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn, synchronous string, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=" + synchronous,
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
		"PRAGMA cache_size=-8192",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}

	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}
	return nil
}
