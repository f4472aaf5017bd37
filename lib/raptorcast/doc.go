// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package raptorcast is the propagation engine: the one handle callers
// use to broadcast a payload for an artifact and inspect the outcome.
//
// # Pipeline
//
// [Engine.Propagate] runs, synchronously and without a global lock:
//
//  1. lib/encoder splits the payload into systematic and repair chunks
//     and computes the commitment root and message id.
//  2. lib/broadcasttree builds the two-level fan-out tree over the
//     online nodes of the engine's registry.
//  3. lib/distribution simulates per-hop loss over the tree.
//  4. lib/propagation scores the result with a per-message seeded
//     random stream and assembles the record.
//  5. lib/provenance stores the tree, broadcast, record, subject and a
//     history entry. Each stored entry is confirmed in the background.
//
// Each subject is propagated once. Concurrent calls for one subject
// share a single run, and later calls return the cached record, or the
// stored one after a restart.
//
// # Failure model
//
// Bad options and bad input fail with [ErrInvalidConfig]; queries on
// an id with no record fail with [ErrUnknownMessage]; anything called
// before [Engine.Initialize] fails with [ErrNotInitialized]. Storage
// failures never fail Propagate or Evolve. Writes that fail are
// retried with exponential backoff behind a circuit breaker, and are
// visible in the raptorcast_persist_failures_total metric and the log.
//
// # Observability
//
// The engine logs through the configured slog.Logger and maintains
// Prometheus collectors, registered on Config.Registerer when set.
package raptorcast
