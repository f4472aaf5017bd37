// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/raptorcast/lib/clock"
	"github.com/bureau-foundation/raptorcast/lib/codec"
	"github.com/bureau-foundation/raptorcast/lib/encoder"
)

var (
	// ErrNotFound is returned (wrapped) when no entry exists for a
	// namespace and key.
	ErrNotFound = errors.New("entry not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("provenance store is closed")
)

// keyLockStripes is the number of mutexes writes are striped over.
const keyLockStripes = 64

// Config configures a [Store].
type Config struct {
	// Backend holds the records. Nil selects a new MemoryBackend.
	Backend Backend

	// Compression is applied to every value written.
	Compression CompressionTag

	// EncryptionKey enables encryption at rest when set. Must be
	// KeySize bytes. Every value in the backend must have been written
	// with the same key.
	EncryptionKey []byte

	// Clock timestamps writes and status changes. Nil selects the
	// real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Store is a namespaced key-value store whose entries carry a
// commitment root and a pending/confirmed/failed status. Values are
// CBOR-encoded Go values.
//
// Writes to the same namespace and key are serialized. Writes to
// different keys proceed in parallel, limited only by the backend.
type Store struct {
	backend     Backend
	compression CompressionTag
	sealer      *sealer
	clock       clock.Clock
	logger      *slog.Logger

	lockSeed maphash.Seed
	keyLocks [keyLockStripes]sync.Mutex

	subscribersMu  sync.Mutex
	subscribers    map[int]chan StatusChange
	nextSubscriber int

	closed atomic.Bool
}

// New creates a store over cfg.Backend.
func New(cfg Config) (*Store, error) {
	backend := cfg.Backend
	if backend == nil {
		backend = NewMemoryBackend()
	}
	storeClock := cfg.Clock
	if storeClock == nil {
		storeClock = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Compression > CompressionZstd {
		return nil, fmt.Errorf("provenance: unsupported compression %s", cfg.Compression)
	}

	store := &Store{
		backend:     backend,
		compression: cfg.Compression,
		clock:       storeClock,
		logger:      logger,
		lockSeed:    maphash.MakeSeed(),
		subscribers: make(map[int]chan StatusChange),
	}
	if cfg.EncryptionKey != nil {
		sealer, err := newSealer(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("provenance: %w", err)
		}
		store.sealer = sealer
	}
	return store, nil
}

// Put encodes value and stores it under namespace/key with status
// pending, returning the entry's commitment root. If the stored value
// is already identical, Put returns the existing root and writes
// nothing, leaving the entry's status untouched.
func (s *Store) Put(ctx context.Context, namespace, key string, value any) (encoder.Hash, error) {
	if s.closed.Load() {
		return encoder.Hash{}, ErrClosed
	}
	if namespace == "" || key == "" {
		return encoder.Hash{}, fmt.Errorf("provenance: namespace and key are required (got %q, %q)", namespace, key)
	}

	plaintext, err := codec.Marshal(value)
	if err != nil {
		return encoder.Hash{}, fmt.Errorf("provenance: encoding %s/%s: %w", namespace, key, err)
	}
	root := CommitmentRoot(namespace, key, plaintext)

	unlock := s.lockKey(namespace, key)
	defer unlock()

	existing, found, err := s.backend.Load(ctx, namespace, key)
	if err != nil {
		return encoder.Hash{}, err
	}
	if found && existing.Root == root {
		return root, nil
	}

	blob, err := s.seal(plaintext, namespace, key)
	if err != nil {
		return encoder.Hash{}, err
	}
	now := s.clock.Now()
	_, err = s.backend.Save(ctx, Record{
		Namespace: namespace,
		Key:       key,
		Blob:      blob,
		Root:      root,
		Status:    StatusPending,
		UpdatedAt: now,
	})
	if err != nil {
		return encoder.Hash{}, err
	}

	s.notify(StatusChange{Namespace: namespace, Key: key, Root: root, Status: StatusPending, At: now})
	return root, nil
}

// Get returns the entry for namespace/key, or an error wrapping
// ErrNotFound.
func (s *Store) Get(ctx context.Context, namespace, key string) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	record, found, err := s.backend.Load(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, namespace, key)
	}
	return s.open(record)
}

// List returns every entry in namespace in write order.
func (s *Store) List(ctx context.Context, namespace string) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	records, err := s.backend.List(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return s.openAll(records)
}

// Range returns the entries of namespace with start <= key < end in key
// order. An empty end means no upper bound.
func (s *Store) Range(ctx context.Context, namespace, start, end string) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	records, err := s.backend.Range(ctx, namespace, start, end)
	if err != nil {
		return nil, err
	}
	return s.openAll(records)
}

// SetStatus moves a pending entry to status. Entries that already left
// pending keep their status; the call is then a no-op.
func (s *Store) SetStatus(ctx context.Context, namespace, key string, status Status) error {
	if s.closed.Load() {
		return ErrClosed
	}

	unlock := s.lockKey(namespace, key)
	defer unlock()

	record, found, err := s.backend.Load(ctx, namespace, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, namespace, key)
	}
	if record.Status != StatusPending || status == StatusPending {
		return nil
	}

	now := s.clock.Now()
	if err := s.backend.UpdateStatus(ctx, namespace, key, status, now); err != nil {
		return err
	}
	s.notify(StatusChange{Namespace: namespace, Key: key, Root: record.Root, Status: status, At: now})
	return nil
}

// Subscribe returns a channel that receives every status change (new
// pending entries and transitions) until the returned cancel function
// is called. Changes are dropped for a subscriber whose buffer is full.
func (s *Store) Subscribe(buffer int) (<-chan StatusChange, func()) {
	channel := make(chan StatusChange, max(buffer, 1))

	s.subscribersMu.Lock()
	id := s.nextSubscriber
	s.nextSubscriber++
	s.subscribers[id] = channel
	s.subscribersMu.Unlock()

	var once sync.Once
	return channel, func() {
		once.Do(func() {
			s.subscribersMu.Lock()
			if _, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(channel)
			}
			s.subscribersMu.Unlock()
		})
	}
}

// Close closes subscriber channels and the backend.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.subscribersMu.Lock()
	for id, channel := range s.subscribers {
		close(channel)
		delete(s.subscribers, id)
	}
	s.subscribersMu.Unlock()
	return s.backend.Close()
}

func (s *Store) notify(change StatusChange) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	for _, channel := range s.subscribers {
		select {
		case channel <- change:
		default:
			s.logger.Warn("dropping status change for slow subscriber",
				"namespace", change.Namespace,
				"key", change.Key,
				"status", change.Status.String(),
			)
		}
	}
}

// lockKey locks the stripe for namespace/key and returns its unlock
// function.
func (s *Store) lockKey(namespace, key string) func() {
	var hash maphash.Hash
	hash.SetSeed(s.lockSeed)
	hash.WriteString(namespace)
	hash.WriteByte(0)
	hash.WriteString(key)
	lock := &s.keyLocks[hash.Sum64()%keyLockStripes]
	lock.Lock()
	return lock.Unlock
}

func (s *Store) seal(plaintext []byte, namespace, key string) ([]byte, error) {
	blob, err := packValue(plaintext, s.compression)
	if err != nil {
		return nil, fmt.Errorf("provenance: compressing %s/%s: %w", namespace, key, err)
	}
	if s.sealer == nil {
		return blob, nil
	}
	return s.sealer.seal(blob, namespace, key)
}

func (s *Store) open(record Record) (*Entry, error) {
	blob := record.Blob
	if s.sealer != nil {
		var err error
		blob, err = s.sealer.open(blob, record.Namespace, record.Key)
		if err != nil {
			return nil, fmt.Errorf("provenance: %w", err)
		}
	}
	value, err := unpackValue(blob)
	if err != nil {
		return nil, fmt.Errorf("provenance: unpacking %s/%s: %w", record.Namespace, record.Key, err)
	}
	if CommitmentRoot(record.Namespace, record.Key, value) != record.Root {
		return nil, fmt.Errorf("provenance: %s/%s does not match its commitment root", record.Namespace, record.Key)
	}
	return &Entry{
		Namespace: record.Namespace,
		Key:       record.Key,
		Value:     value,
		Root:      record.Root,
		Sequence:  record.Sequence,
		Status:    record.Status,
		UpdatedAt: record.UpdatedAt,
	}, nil
}

func (s *Store) openAll(records []Record) ([]Entry, error) {
	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		entry, err := s.open(record)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}
