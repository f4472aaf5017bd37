// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package provenance persists broadcast and propagation records.
//
// A [Store] maps (namespace, key) to a CBOR-encoded value. Every entry
// carries a commitment root (a keyed BLAKE3 hash over namespace, key
// and value), a sequence number giving write order, and a status.
// Writing an identical value again is a no-op that returns the same
// root.
//
// # Lifecycle
//
// New entries are [StatusPending]. A [Confirmer] moves them to
// [StatusConfirmed] after a delay and an optional [Anchor] call, or to
// [StatusFailed] if that does not finish within its timeout. Writers
// never wait for confirmation; observers either read the status from
// the entry or [Store.Subscribe] to changes.
//
// # Storage
//
// Two backends implement [Backend]: [MemoryBackend], a btree keyed by
// namespace and key, and [SQLiteBackend], a single table opened
// through lib/sqlitepool. Before reaching the backend a value is framed
// with a [CompressionTag] (none, lz4 or zstd) and, when the store has
// an encryption key, sealed with XChaCha20-Poly1305 under a
// per-namespace key derived by HKDF-SHA256. The AAD binds each sealed
// value to its namespace and key.
//
// # Ordering
//
// [Store.List] returns a namespace in write order. [Store.Range]
// returns a key interval in key order; history-by-time keys built with
// [HistoryKey] make key order chronological.
package provenance
