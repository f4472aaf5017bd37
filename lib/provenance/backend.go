// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"context"
	"time"

	"github.com/bureau-foundation/raptorcast/lib/encoder"
)

// Record is an entry as a backend holds it: Blob is the framed,
// possibly compressed and encrypted value.
type Record struct {
	Namespace string
	Key       string
	Blob      []byte
	Root      encoder.Hash
	Sequence  uint64
	Status    Status
	UpdatedAt time.Time
}

// Backend is the persistence layer under a [Store]. Implementations
// must be safe for concurrent use. The Store serializes writes to a
// single key, so backends only need per-operation atomicity.
type Backend interface {
	// Load returns the record for namespace/key. The boolean is false
	// when no record exists.
	Load(ctx context.Context, namespace, key string) (Record, bool, error)

	// Save inserts or replaces a record and assigns it the next
	// sequence number, which is returned in the saved record.
	Save(ctx context.Context, record Record) (Record, error)

	// UpdateStatus changes the status of an existing record. Returns
	// an error wrapping ErrNotFound when the record does not exist.
	UpdateStatus(ctx context.Context, namespace, key string, status Status, at time.Time) error

	// List returns the namespace's records in sequence (write) order.
	List(ctx context.Context, namespace string) ([]Record, error)

	// Range returns records with start <= key < end in key order. An
	// empty end means no upper bound.
	Range(ctx context.Context, namespace, start, end string) ([]Record, error)

	// Close releases backend resources.
	Close() error
}
