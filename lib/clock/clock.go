// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"context"
	"time"
)

// Clock is the time source for record timestamps, confirmation
// deadlines and retry backoff.
type Clock interface {
	Now() time.Time

	// AfterFunc arranges for f to run once d has elapsed and returns a
	// function that cancels the call. The cancel function reports
	// whether it prevented f from running.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// Real returns the wall clock.
func Real() Clock { return wallClock{} }

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// SleepContext waits d on clock. It returns nil once d has elapsed, or
// the cause of ctx as soon as ctx is done, leaving nothing scheduled on
// clock.
func SleepContext(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return context.Cause(ctx)
	}
	elapsed := make(chan struct{})
	stop := clock.AfterFunc(d, func() { close(elapsed) })
	select {
	case <-elapsed:
		return nil
	case <-ctx.Done():
		stop()
		return context.Cause(ctx)
	}
}
