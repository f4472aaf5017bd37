// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// T is the subset of testing.TB the helpers need.
type T interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the
// test.
//
//	change := testutil.RequireReceive(t, changes, 5*time.Second, "waiting for status change")
func RequireReceive[V any](t T, ch <-chan V, timeout time.Duration, msgAndArgs ...any) V {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireMatch reads from ch until match returns true, discarding
// other values, and returns the matching value. The timeout bounds the
// whole search.
//
//	confirmed := testutil.RequireMatch(t, changes, 5*time.Second,
//	    func(c provenance.StatusChange) bool { return c.Status == provenance.StatusConfirmed },
//	    "waiting for confirmation")
func RequireMatch[V any](t T, ch <-chan V, timeout time.Duration, match func(V) bool, msgAndArgs ...any) V {
	t.Helper()
	deadline := time.After(timeout) //nolint:realclock test hang prevention
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed before a matching value: %s", formatMessage(msgAndArgs))
			}
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out after %v without a matching value: %s", timeout, formatMessage(msgAndArgs))
		}
	}
}

// RequireClosed waits for ch to be closed (or receive a value) within
// timeout, or fails the test.
func RequireClosed(t T, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, formatMessage(msgAndArgs))
	}
}

// formatMessage accepts either a single value or a format string
// followed by args.
func formatMessage(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return "(no message)"
	}
	if len(msgAndArgs) == 1 {
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}
