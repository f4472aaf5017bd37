// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/raptorcast/lib/clock"
)

// Confirmation defaults.
const (
	DefaultConfirmDelay   = 2 * time.Second
	DefaultConfirmTimeout = 30 * time.Second
)

// Anchor performs the external inclusion step for an entry (for
// example, submitting its root to a ledger). It must return promptly
// once ctx is done.
type Anchor func(ctx context.Context, entry Entry) error

// ConfirmerConfig configures a [Confirmer].
type ConfirmerConfig struct {
	Store *Store

	// Clock schedules the delay and the timeout. Nil selects the real
	// clock.
	Clock clock.Clock

	// Delay is waited before anchoring. Zero selects
	// DefaultConfirmDelay.
	Delay time.Duration

	// Timeout bounds delay plus anchoring. Zero selects
	// DefaultConfirmTimeout.
	Timeout time.Duration

	// Anchor is called after Delay. Nil always succeeds.
	Anchor Anchor

	Logger *slog.Logger
}

// Confirmer moves entries from pending to confirmed in the background.
// Each Confirm call starts one detached goroutine; its outcome is
// visible only through the entry's status and store subscriptions.
type Confirmer struct {
	store   *Store
	clock   clock.Clock
	delay   time.Duration
	timeout time.Duration
	anchor  Anchor
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closed and running, the number of live goroutines.
	// Confirm never starts one once closed is set.
	mu      sync.Mutex
	idle    *sync.Cond
	closed  bool
	running int
}

// NewConfirmer returns a confirmer for cfg.Store.
func NewConfirmer(cfg ConfirmerConfig) *Confirmer {
	confirmClock := cfg.Clock
	if confirmClock == nil {
		confirmClock = clock.Real()
	}
	delay := cfg.Delay
	if delay == 0 {
		delay = DefaultConfirmDelay
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultConfirmTimeout
	}
	anchor := cfg.Anchor
	if anchor == nil {
		anchor = func(context.Context, Entry) error { return nil }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Confirmer{
		store:   cfg.Store,
		clock:   confirmClock,
		delay:   delay,
		timeout: timeout,
		anchor:  anchor,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Confirm schedules confirmation of namespace/key and returns
// immediately. After Close it does nothing and the entry stays
// pending.
func (c *Confirmer) Confirm(namespace, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.running++
	go c.run(namespace, key)
}

// Wait blocks until every scheduled confirmation has finished.
// Confirmations scheduled while it waits are waited for too.
func (c *Confirmer) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.running > 0 {
		c.idle.Wait()
	}
}

// Close abandons in-flight confirmations, leaving their entries
// pending, and waits for the goroutines to exit.
func (c *Confirmer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.Wait()
}

func (c *Confirmer) done() {
	c.mu.Lock()
	c.running--
	if c.running == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}

func (c *Confirmer) run(namespace, key string) {
	defer c.done()

	ctx, cancel := context.WithCancelCause(c.ctx)
	defer cancel(nil)
	stop := c.clock.AfterFunc(c.timeout, func() { cancel(context.DeadlineExceeded) })
	defer stop()

	logger := c.logger.With("namespace", namespace, "key", key)

	err := c.attempt(ctx, namespace, key)
	if c.ctx.Err() != nil {
		// Confirmer closed; leave the entry pending.
		return
	}
	if err == nil && ctx.Err() != nil {
		err = context.Cause(ctx)
	}

	status := StatusConfirmed
	if err != nil {
		status = StatusFailed
	}
	if updateErr := c.store.SetStatus(c.ctx, namespace, key, status); updateErr != nil {
		logger.Error("recording confirmation outcome failed", "status", status.String(), "error", updateErr)
		return
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("confirmation timed out", "timeout", c.timeout)
		} else {
			logger.Warn("confirmation failed", "error", err)
		}
		return
	}
	logger.Debug("entry confirmed")
}

func (c *Confirmer) attempt(ctx context.Context, namespace, key string) error {
	if err := clock.SleepContext(ctx, c.clock, c.delay); err != nil {
		return err
	}

	entry, err := c.store.Get(ctx, namespace, key)
	if err != nil {
		return err
	}
	return c.anchor(ctx, *entry)
}
