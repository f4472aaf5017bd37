// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases with a fixed connection
// pool and a standard set of pragmas.
//
// It wraps zombiezen.com/go/sqlite. Callers [Pool.Take] a connection,
// do their work, and [Pool.Put] it back; [Pool.Transact] does the same
// around an IMMEDIATE transaction. Connections are not safe for
// concurrent use.
//
// # Pragmas
//
//   - journal_mode=WAL: readers never block the single writer.
//   - synchronous=NORMAL, or FULL with Config.Durable.
//   - busy_timeout=5000: wait for the write lock instead of failing
//     with SQLITE_BUSY.
//   - foreign_keys=OFF.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - temp_store=MEMORY.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   filepath.Join(stateDir, "provenance.db"),
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// The package applies pragmas and nothing more. Callers write SQL and
// use sqlitex.Execute directly.
package sqlitepool
