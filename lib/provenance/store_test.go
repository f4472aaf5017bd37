// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/raptorcast/lib/clock"
	"github.com/bureau-foundation/raptorcast/lib/testutil"
)

type testRecord struct {
	MessageID string   `json:"message_id"`
	Sent      int      `json:"sent"`
	Nodes     []string `json:"nodes,omitempty"`
}

var testEpoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// forEachBackend runs fn once per backend implementation.
func forEachBackend(t *testing.T, fn func(t *testing.T, newBackend func() Backend)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, func() Backend { return NewMemoryBackend() })
	})
	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "provenance.db")
		fn(t, func() Backend {
			backend, err := OpenSQLite(SQLiteConfig{Path: path, PoolSize: 2})
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			return backend
		})
	})
}

func newTestStore(t *testing.T, backend Backend, configure ...func(*Config)) *Store {
	t.Helper()
	cfg := Config{Backend: backend, Clock: clock.Fake(testEpoch)}
	for _, apply := range configure {
		apply(&cfg)
	}
	store, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newBackend func() Backend) {
		store := newTestStore(t, newBackend())
		ctx := context.Background()

		value := testRecord{MessageID: "msg-1", Sent: 69, Nodes: []string{"a", "b"}}
		root, err := store.Put(ctx, NamespaceBroadcasts, "msg-1", value)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if root.IsZero() {
			t.Fatal("Put returned a zero root")
		}

		entry, err := store.Get(ctx, NamespaceBroadcasts, "msg-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if entry.Root != root || entry.Status != StatusPending {
			t.Errorf("entry root %s status %s, want %s pending", entry.Root, entry.Status, root)
		}
		if !entry.UpdatedAt.Equal(testEpoch) {
			t.Errorf("UpdatedAt = %v, want %v", entry.UpdatedAt, testEpoch)
		}
		var decoded testRecord
		if err := entry.Decode(&decoded); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if decoded.MessageID != "msg-1" || decoded.Sent != 69 || len(decoded.Nodes) != 2 {
			t.Errorf("decoded = %+v", decoded)
		}

		_, err = store.Get(ctx, NamespaceBroadcasts, "msg-missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
		_, err = store.Get(ctx, NamespaceTrees, "msg-1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get in another namespace error = %v, want ErrNotFound", err)
		}
	})
}

func TestPutIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newBackend func() Backend) {
		store := newTestStore(t, newBackend())
		ctx := context.Background()

		first, err := store.Put(ctx, NamespaceBroadcasts, "k", testRecord{MessageID: "m", Sent: 1})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := store.SetStatus(ctx, NamespaceBroadcasts, "k", StatusConfirmed); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
		before, err := store.Get(ctx, NamespaceBroadcasts, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}

		second, err := store.Put(ctx, NamespaceBroadcasts, "k", testRecord{MessageID: "m", Sent: 1})
		if err != nil {
			t.Fatalf("second Put: %v", err)
		}
		if first != second {
			t.Error("identical Put returned a different root")
		}
		after, err := store.Get(ctx, NamespaceBroadcasts, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if after.Sequence != before.Sequence || after.Status != StatusConfirmed {
			t.Errorf("identical Put rewrote the entry: before %+v after %+v", before, after)
		}

		changed, err := store.Put(ctx, NamespaceBroadcasts, "k", testRecord{MessageID: "m", Sent: 2})
		if err != nil {
			t.Fatalf("changed Put: %v", err)
		}
		if changed == first {
			t.Error("different value produced the same root")
		}
		entries, err := store.List(ctx, NamespaceBroadcasts)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(entries) != 1 || entries[0].Status != StatusPending {
			t.Errorf("after overwrite List = %+v, want one pending entry", entries)
		}
	})
}

func TestListWriteOrderAndRangeKeyOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newBackend func() Backend) {
		store := newTestStore(t, newBackend())
		ctx := context.Background()

		for _, key := range []string{"charlie", "alpha", "bravo"} {
			if _, err := store.Put(ctx, NamespaceArtifacts, key, testRecord{MessageID: key}); err != nil {
				t.Fatalf("Put(%s): %v", key, err)
			}
		}
		if _, err := store.Put(ctx, NamespaceTrees, "alpha", testRecord{MessageID: "other"}); err != nil {
			t.Fatalf("Put: %v", err)
		}

		listed, err := store.List(ctx, NamespaceArtifacts)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if got := entryKeys(listed); got != "charlie,alpha,bravo" {
			t.Errorf("List order = %s, want charlie,alpha,bravo", got)
		}

		ranged, err := store.Range(ctx, NamespaceArtifacts, "", "")
		if err != nil {
			t.Fatalf("Range: %v", err)
		}
		if got := entryKeys(ranged); got != "alpha,bravo,charlie" {
			t.Errorf("Range order = %s, want alpha,bravo,charlie", got)
		}

		window, err := store.Range(ctx, NamespaceArtifacts, "b", "c")
		if err != nil {
			t.Fatalf("Range window: %v", err)
		}
		if got := entryKeys(window); got != "bravo" {
			t.Errorf("Range [b, c) = %s, want bravo", got)
		}
	})
}

func TestHistoryKeysSortChronologically(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())
	ctx := context.Background()

	times := []time.Time{
		testEpoch.Add(3 * time.Second),
		testEpoch,
		testEpoch.Add(1500 * time.Millisecond),
	}
	for i, at := range times {
		key := HistoryKey(at, fmt.Sprintf("msg-%d", i))
		if _, err := store.Put(ctx, NamespaceHistoryByTime, key, testRecord{MessageID: key}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	entries, err := store.Range(ctx, NamespaceHistoryByTime, TimeKey(testEpoch.Add(time.Second)), "")
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Range returned %d entries, want 2", len(entries))
	}
	if !strings.HasSuffix(entries[0].Key, "/msg-2") || !strings.HasSuffix(entries[1].Key, "/msg-0") {
		t.Errorf("history order = %s, want msg-2 then msg-0", entryKeys(entries))
	}
}

func TestSetStatusTransitions(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())
	ctx := context.Background()

	if _, err := store.Put(ctx, NamespaceBroadcasts, "k", testRecord{MessageID: "k"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.SetStatus(ctx, NamespaceBroadcasts, "k", StatusFailed); err != nil {
		t.Fatalf("SetStatus(failed): %v", err)
	}
	if err := store.SetStatus(ctx, NamespaceBroadcasts, "k", StatusConfirmed); err != nil {
		t.Fatalf("SetStatus(confirmed): %v", err)
	}
	entry, err := store.Get(ctx, NamespaceBroadcasts, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Status != StatusFailed {
		t.Errorf("status = %s, want failed (terminal states do not change)", entry.Status)
	}

	err = store.SetStatus(ctx, NamespaceBroadcasts, "missing", StatusConfirmed)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSubscribe(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())
	ctx := context.Background()

	changes, cancel := store.Subscribe(8)
	defer cancel()

	root, err := store.Put(ctx, NamespaceBroadcasts, "k", testRecord{MessageID: "k"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	pending := testutil.RequireReceive(t, changes, 5*time.Second, "waiting for pending change")
	if pending.Status != StatusPending || pending.Root != root || pending.Key != "k" {
		t.Errorf("first change = %+v", pending)
	}

	if err := store.SetStatus(ctx, NamespaceBroadcasts, "k", StatusConfirmed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	confirmed := testutil.RequireReceive(t, changes, 5*time.Second, "waiting for confirmed change")
	if confirmed.Status != StatusConfirmed {
		t.Errorf("second change = %+v", confirmed)
	}

	cancel()
	if _, ok := <-changes; ok {
		t.Error("channel still open after cancel")
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	nodes := make([]string, 200)
	for i := range nodes {
		nodes[i] = fmt.Sprintf("node-%03d", i)
	}
	value := testRecord{MessageID: "msg-compress", Nodes: nodes}

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			backend := NewMemoryBackend()
			store := newTestStore(t, backend, func(cfg *Config) { cfg.Compression = tag })
			ctx := context.Background()

			if _, err := store.Put(ctx, NamespacePropagations, "k", value); err != nil {
				t.Fatalf("Put: %v", err)
			}
			record, _, err := backend.Load(ctx, NamespacePropagations, "k")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if CompressionTag(record.Blob[0]) != tag {
				t.Errorf("blob tag = %s, want %s", CompressionTag(record.Blob[0]), tag)
			}

			entry, err := store.Get(ctx, NamespacePropagations, "k")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			var decoded testRecord
			if err := entry.Decode(&decoded); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(decoded.Nodes) != 200 || decoded.Nodes[199] != "node-199" {
				t.Errorf("decoded %d nodes", len(decoded.Nodes))
			}
		})
	}
}

func TestIncompressibleValueStoredUncompressed(t *testing.T) {
	blob, err := packValue([]byte{0x01, 0x02}, CompressionZstd)
	if err != nil {
		t.Fatalf("packValue: %v", err)
	}
	if CompressionTag(blob[0]) != CompressionNone {
		t.Errorf("tag = %s, want none for a 2-byte value", CompressionTag(blob[0]))
	}
	value, err := unpackValue(blob)
	if err != nil {
		t.Fatalf("unpackValue: %v", err)
	}
	if !bytes.Equal(value, []byte{0x01, 0x02}) {
		t.Errorf("value = %x", value)
	}
}

func TestEncryptionAtRest(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)
	backend := NewMemoryBackend()
	store := newTestStore(t, backend, func(cfg *Config) {
		cfg.EncryptionKey = key
		cfg.Compression = CompressionLZ4
	})
	ctx := context.Background()

	secretValue := testRecord{MessageID: "msg-secret-marker"}
	if _, err := store.Put(ctx, NamespaceBroadcasts, "k", secretValue); err != nil {
		t.Fatalf("Put: %v", err)
	}

	record, _, err := backend.Load(ctx, NamespaceBroadcasts, "k")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bytes.Contains(record.Blob, []byte("secret-marker")) {
		t.Error("plaintext visible in the stored blob")
	}

	entry, err := store.Get(ctx, NamespaceBroadcasts, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var decoded testRecord
	if err := entry.Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.MessageID != "msg-secret-marker" {
		t.Errorf("decoded = %+v", decoded)
	}

	// A blob moved to another key must not open.
	record.Key = "other"
	if _, err := backend.Save(ctx, record); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Get(ctx, NamespaceBroadcasts, "other"); err == nil {
		t.Error("Get succeeded for a blob copied to another key")
	}

	wrongKey := newTestStore(t, backend, func(cfg *Config) {
		cfg.EncryptionKey = bytes.Repeat([]byte{0x43}, KeySize)
	})
	if _, err := wrongKey.Get(ctx, NamespaceBroadcasts, "k"); err == nil {
		t.Error("Get succeeded with the wrong key")
	}
}

func TestNewRejectsBadEncryptionKey(t *testing.T) {
	if _, err := New(Config{EncryptionKey: []byte("short")}); err == nil {
		t.Error("New accepted a 5-byte key")
	}
	if _, err := ParseKey(strings.Repeat("ab", KeySize)); err != nil {
		t.Errorf("ParseKey: %v", err)
	}
	if _, err := ParseKey("abcd"); err == nil {
		t.Error("ParseKey accepted a 2-byte key")
	}
}

func TestTamperedValueRejected(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	if _, err := store.Put(ctx, NamespaceBroadcasts, "k", testRecord{MessageID: "m", Sent: 5}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	record, _, err := backend.Load(ctx, NamespaceBroadcasts, "k")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	record.Blob[len(record.Blob)-1] ^= 0x01
	if _, err := backend.Save(ctx, record); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Get(ctx, NamespaceBroadcasts, "k"); err == nil {
		t.Error("Get accepted a value that no longer matches its root")
	}
}

func TestConcurrentPutsToOneKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newBackend func() Backend) {
		store := newTestStore(t, newBackend())
		ctx := context.Background()

		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Put(ctx, NamespacePropagationBySubject, "subject", testRecord{MessageID: "same"}); err != nil {
					t.Errorf("Put: %v", err)
				}
			}()
		}
		wg.Wait()

		entries, err := store.List(ctx, NamespacePropagationBySubject)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("%d entries, want 1", len(entries))
		}
		if entries[0].Sequence != 1 {
			t.Errorf("Sequence = %d, want 1 (identical writes after the first are no-ops)", entries[0].Sequence)
		}
	})
}

func TestSQLiteStatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	first, err := OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	store, err := New(Config{Backend: first, Clock: clock.Fake(testEpoch)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	root, err := store.Put(ctx, NamespaceBroadcasts, "msg-p", testRecord{MessageID: "msg-p"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened := newTestStore(t, second)
	entry, err := reopened.Get(ctx, NamespaceBroadcasts, "msg-p")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if entry.Root != root {
		t.Errorf("root after reopen = %s, want %s", entry.Root, root)
	}
}

func TestClosedStore(t *testing.T) {
	store, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := store.Put(context.Background(), NamespaceBroadcasts, "k", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close error = %v, want ErrClosed", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestCommitmentRootSeparatesFields(t *testing.T) {
	a := CommitmentRoot("ab", "c", []byte("v"))
	b := CommitmentRoot("a", "bc", []byte("v"))
	if a == b {
		t.Error("moving a byte between namespace and key kept the root")
	}
}

func entryKeys(entries []Entry) string {
	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}
	return strings.Join(keys, ",")
}
