// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/btree"
)

// memoryDegree is the btree node degree for the memory backend.
const memoryDegree = 16

// MemoryBackend keeps records in a btree ordered by namespace then
// key, which gives Range an ordered scan without sorting.
type MemoryBackend struct {
	mu       sync.RWMutex
	records  *btree.BTreeG[Record]
	sequence uint64
}

// NewMemoryBackend returns an empty memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: btree.NewG(memoryDegree, func(a, b Record) bool {
			if a.Namespace != b.Namespace {
				return a.Namespace < b.Namespace
			}
			return a.Key < b.Key
		}),
	}
}

func (m *MemoryBackend) Load(_ context.Context, namespace, key string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, found := m.records.Get(Record{Namespace: namespace, Key: key})
	if !found {
		return Record{}, false, nil
	}
	return cloneRecord(record), true, nil
}

func (m *MemoryBackend) Save(_ context.Context, record Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequence++
	record.Sequence = m.sequence
	record = cloneRecord(record)
	m.records.ReplaceOrInsert(record)
	return record, nil
}

func (m *MemoryBackend) UpdateStatus(_ context.Context, namespace, key string, status Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, found := m.records.Get(Record{Namespace: namespace, Key: key})
	if !found {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, namespace, key)
	}
	record.Status = status
	record.UpdatedAt = at
	m.records.ReplaceOrInsert(record)
	return nil
}

func (m *MemoryBackend) List(ctx context.Context, namespace string) ([]Record, error) {
	records, err := m.Range(ctx, namespace, "", "")
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Sequence < records[j].Sequence })
	return records, nil
}

func (m *MemoryBackend) Range(_ context.Context, namespace, start, end string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []Record
	m.records.AscendGreaterOrEqual(Record{Namespace: namespace, Key: start}, func(record Record) bool {
		if record.Namespace != namespace || (end != "" && record.Key >= end) {
			return false
		}
		records = append(records, cloneRecord(record))
		return true
	})
	return records, nil
}

// Close is a no-op; the records are garbage collected with the
// backend.
func (m *MemoryBackend) Close() error { return nil }

// cloneRecord copies the blob so callers cannot alias stored bytes.
func cloneRecord(record Record) Record {
	record.Blob = append([]byte(nil), record.Blob...)
	return record
}
