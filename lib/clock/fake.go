// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// FakeClock stands still until Advance moves it. It is safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	changed *sync.Cond
	now     time.Time
	seq     uint64

	// queue is ordered by due time, then by scheduling order.
	queue []*call
}

type call struct {
	due time.Time
	seq uint64
	f   func()
}

func compareCalls(a, b *call) int {
	if order := a.due.Compare(b.due); order != 0 {
		return order
	}
	return cmp.Compare(a.seq, b.seq)
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc queues f for the Advance that reaches d past the current
// time. A non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	if d <= 0 {
		f()
		return func() bool { return false }
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	scheduled := &call{due: c.now.Add(d), seq: c.seq, f: f}
	at, _ := slices.BinarySearchFunc(c.queue, scheduled, compareCalls)
	c.queue = slices.Insert(c.queue, at, scheduled)
	c.changed.Broadcast()
	return func() bool { return c.cancel(scheduled) }
}

func (c *FakeClock) cancel(scheduled *call) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at := slices.Index(c.queue, scheduled)
	if at < 0 {
		return false
	}
	c.queue = slices.Delete(c.queue, at, at+1)
	c.changed.Broadcast()
	return true
}

// Advance moves the clock forward by d and runs every call now due, in
// due order, on the calling goroutine. The clock is unlocked while a
// call runs, so it may read the time or schedule more work.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	for len(c.queue) > 0 && !c.queue[0].due.After(c.now) {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.changed.Broadcast()
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.mu.Unlock()
}

// WaitForTimers blocks until at least n calls are queued. Tests use it
// to let a background goroutine schedule its wait before they Advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of queued calls.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
