// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireMatch] and [RequireClosed] wrap the
// select-with-timeout pattern used when a test waits on a background
// goroutine (store subscriptions, confirmations). They are the only
// place tests use real wall-clock timeouts; everything else runs on
// lib/clock's fake clock.
//
// [UniqueID] generates distinct identifiers without consulting the
// clock.
//
// All helpers call t.Fatalf on failure.
package testutil
