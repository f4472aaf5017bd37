// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that timestamp records or schedule background work (the
// provenance confirmer, the engine's persistence retries) take a Clock
// instead of calling the time package. Real() is the standard library;
// Fake() is a deterministic clock that moves only when Advance is
// called.
//
//	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	confirmer := provenance.NewConfirmer(provenance.ConfirmerConfig{Clock: fakeClock, ...})
//	confirmer.Confirm(namespace, key)
//	fakeClock.WaitForTimers(2)              // timeout and delay registered
//	fakeClock.Advance(2 * time.Second)      // delay elapses
//
// # FakeClock Synchronization
//
// A goroutine calling AfterFunc on a FakeClock queues a call.
// WaitForTimers blocks until that many calls are queued, so a test
// cannot Advance before a background goroutine has scheduled its wait.
package clock
