// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/raptorcast/lib/clock"
	"github.com/bureau-foundation/raptorcast/lib/testutil"
)

func newConfirmTest(t *testing.T, anchor Anchor) (*Store, *Confirmer, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.Fake(testEpoch)
	store, err := New(Config{Clock: fakeClock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	confirmer := NewConfirmer(ConfirmerConfig{
		Store:  store,
		Clock:  fakeClock,
		Anchor: anchor,
	})
	t.Cleanup(confirmer.Close)

	if _, err := store.Put(context.Background(), NamespaceBroadcasts, "msg-c", testRecord{MessageID: "msg-c"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return store, confirmer, fakeClock
}

func statusOf(t *testing.T, store *Store, key string) Status {
	t.Helper()
	entry, err := store.Get(context.Background(), NamespaceBroadcasts, key)
	if err != nil {
		t.Fatalf("Get(%s): %v", key, err)
	}
	return entry.Status
}

func TestConfirmAfterDelay(t *testing.T) {
	var anchored Entry
	store, confirmer, fakeClock := newConfirmTest(t, func(_ context.Context, entry Entry) error {
		anchored = entry
		return nil
	})

	confirmer.Confirm(NamespaceBroadcasts, "msg-c")
	// Timeout and delay.
	fakeClock.WaitForTimers(2)
	if status := statusOf(t, store, "msg-c"); status != StatusPending {
		t.Fatalf("status before delay = %s, want pending", status)
	}

	fakeClock.Advance(DefaultConfirmDelay)
	confirmer.Wait()

	if status := statusOf(t, store, "msg-c"); status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", status)
	}
	if anchored.Key != "msg-c" || anchored.Root.IsZero() {
		t.Errorf("anchor saw %+v", anchored)
	}
	if pending := fakeClock.PendingCount(); pending != 0 {
		t.Errorf("%d timers still pending after confirmation", pending)
	}
}

func TestConfirmAnchorError(t *testing.T) {
	store, confirmer, fakeClock := newConfirmTest(t, func(context.Context, Entry) error {
		return errors.New("ledger rejected root")
	})

	changes, cancel := store.Subscribe(4)
	defer cancel()

	confirmer.Confirm(NamespaceBroadcasts, "msg-c")
	fakeClock.WaitForTimers(2)
	fakeClock.Advance(DefaultConfirmDelay)

	change := testutil.RequireReceive(t, changes, 5*time.Second, "waiting for failed status")
	if change.Status != StatusFailed || change.Key != "msg-c" {
		t.Errorf("change = %+v, want msg-c failed", change)
	}
	confirmer.Wait()
}

func TestConfirmTimeout(t *testing.T) {
	anchorStarted := make(chan struct{})
	store, confirmer, fakeClock := newConfirmTest(t, func(ctx context.Context, _ Entry) error {
		close(anchorStarted)
		<-ctx.Done()
		return ctx.Err()
	})

	confirmer.Confirm(NamespaceBroadcasts, "msg-c")
	fakeClock.WaitForTimers(2)
	fakeClock.Advance(DefaultConfirmDelay)
	testutil.RequireClosed(t, anchorStarted, 5*time.Second, "anchor started")

	fakeClock.Advance(DefaultConfirmTimeout)
	confirmer.Wait()

	if status := statusOf(t, store, "msg-c"); status != StatusFailed {
		t.Errorf("status = %s, want failed", status)
	}
}

func TestConfirmerCloseLeavesPending(t *testing.T) {
	store, confirmer, fakeClock := newConfirmTest(t, nil)

	confirmer.Confirm(NamespaceBroadcasts, "msg-c")
	fakeClock.WaitForTimers(2)
	confirmer.Close()

	if status := statusOf(t, store, "msg-c"); status != StatusPending {
		t.Errorf("status after Close = %s, want pending", status)
	}

	// Confirm after Close does nothing.
	confirmer.Confirm(NamespaceBroadcasts, "msg-c")
	confirmer.Wait()
	if status := statusOf(t, store, "msg-c"); status != StatusPending {
		t.Errorf("status = %s, want pending", status)
	}
}

func TestConfirmMissingEntryFails(t *testing.T) {
	store, confirmer, fakeClock := newConfirmTest(t, nil)

	confirmer.Confirm(NamespaceBroadcasts, "msg-absent")
	fakeClock.WaitForTimers(2)
	fakeClock.Advance(DefaultConfirmDelay)
	confirmer.Wait()

	if _, err := store.Get(context.Background(), NamespaceBroadcasts, "msg-absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	if status := statusOf(t, store, "msg-c"); status != StatusPending {
		t.Errorf("unrelated entry status = %s, want pending", status)
	}
}

func TestConfirmRacingClose(t *testing.T) {
	_, confirmer, _ := newConfirmTest(t, nil)

	var callers sync.WaitGroup
	start := make(chan struct{})
	for i := range 16 {
		callers.Add(1)
		go func() {
			defer callers.Done()
			<-start
			for j := range 50 {
				confirmer.Confirm(NamespaceBroadcasts, fmt.Sprintf("msg-%d-%d", i, j))
			}
		}()
	}

	closed := make(chan struct{})
	go func() {
		<-start
		confirmer.Close()
		close(closed)
	}()
	close(start)

	testutil.RequireClosed(t, closed, 5*time.Second, "Close racing Confirm")
	callers.Wait()

	// Nothing scheduled after Close may still be running.
	confirmer.mu.Lock()
	running := confirmer.running
	confirmer.mu.Unlock()
	if running != 0 {
		t.Errorf("%d confirmations running after Close", running)
	}
}
