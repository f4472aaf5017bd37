// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raptorcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bureau-foundation/raptorcast/lib/clock"
	"github.com/bureau-foundation/raptorcast/lib/provenance"
)

// write is one pending provenance Put.
type write struct {
	namespace string
	key       string
	value     any
}

// persister writes records to the provenance store on behalf of
// Propagate and Evolve. Every batch is written by its own background
// goroutine; the caller waits for the first attempt only as long as
// its context and StoreTimeout allow. A failed write never reaches the
// caller. It is logged and retried with exponential backoff.
// Batches run through a circuit breaker so a store that keeps failing
// is skipped quickly instead of being hit by every call.
type persister struct {
	store     *provenance.Store
	confirmer *provenance.Confirmer
	breaker   *gobreaker.CircuitBreaker
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics

	timeout    time.Duration
	backoff    time.Duration
	maxBackoff time.Duration
	attempts   int

	ctx    context.Context
	cancel context.CancelCauseFunc

	// mu orders wg.Add against close's wg.Wait and guards firsts, the
	// number of batches whose first attempt has not finished.
	mu     sync.Mutex
	idle   *sync.Cond
	closed bool
	firsts int
	wg     sync.WaitGroup
}

var errPersisterClosed = errors.New("persister closed")

func newPersister(cfg Config, store *provenance.Store, confirmer *provenance.Confirmer, m *metrics) *persister {
	ctx, cancel := context.WithCancelCause(context.Background())
	p := &persister{
		store:      store,
		confirmer:  confirmer,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		metrics:    m,
		timeout:    cfg.StoreTimeout,
		backoff:    cfg.RetryBackoff,
		maxBackoff: cfg.RetryMaxBackoff,
		attempts:   cfg.RetryAttempts,
		ctx:        ctx,
		cancel:     cancel,
	}
	p.idle = sync.NewCond(&p.mu)
	threshold := uint32(cfg.BreakerFailures)
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "provenance",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("persistence circuit breaker changed state",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if to == gobreaker.StateOpen {
				p.metrics.breakerOpen.Set(1)
			} else {
				p.metrics.breakerOpen.Set(0)
			}
		},
	})
	return p
}

// persist starts writing batch in the background and waits at most
// StoreTimeout for the first attempt, less if ctx ends sooner. It never
// returns an error. The writes run under the persister's context, so
// cancelling ctx only stops the wait.
func (p *persister) persist(ctx context.Context, batch []write) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.abandon(batch, "engine closed")
		return
	}
	p.wg.Add(1)
	p.firsts++
	p.mu.Unlock()

	first := make(chan struct{})
	go p.run(batch, first)

	wait, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	select {
	case <-first:
	case <-wait.Done():
		p.logger.Warn("provenance write still running, continuing in background",
			"writes", len(batch),
			"error", context.Cause(wait),
		)
	}
}

// run makes the first attempt at batch, closes first, then retries
// whatever is left with backoff.
func (p *persister) run(batch []write, first chan<- struct{}) {
	defer p.wg.Done()

	batch = p.flush(p.ctx, batch)
	close(first)
	p.mu.Lock()
	p.firsts--
	if p.firsts == 0 {
		p.idle.Broadcast()
	}
	p.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if p.attempts == 0 {
		p.abandon(batch, "no retries")
		return
	}

	delay := p.backoff
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := clock.SleepContext(p.ctx, p.clock, delay); err != nil {
			p.abandon(batch, "engine closed")
			return
		}
		p.metrics.persistRetries.Inc()
		batch = p.flush(p.ctx, batch)
		if len(batch) == 0 {
			p.logger.Info("provenance retry succeeded", "attempt", attempt)
			return
		}
		delay = min(delay*2, p.maxBackoff)
	}
	p.abandon(batch, "retries exhausted")
}

// flush runs one breaker-guarded pass over batch, in order, and returns
// the writes from the first failure onward. Nothing after a failed
// write is attempted, so a write is only stored once every write
// before it is. Each successful write is handed to the confirmer, and
// each write gets StoreTimeout to finish.
func (p *persister) flush(ctx context.Context, batch []write) []write {
	remaining := batch
	_, err := p.breaker.Execute(func() (any, error) {
		for len(remaining) > 0 {
			w := remaining[0]
			if err := p.put(ctx, w); err != nil {
				p.metrics.persistFailures.WithLabelValues(w.namespace).Inc()
				return nil, fmt.Errorf("%s/%s: %w", w.namespace, w.key, err)
			}
			p.confirmer.Confirm(w.namespace, w.key)
			remaining = remaining[1:]
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// The batch never ran.
		for _, w := range remaining {
			p.metrics.persistFailures.WithLabelValues(w.namespace).Inc()
		}
	}
	if err != nil {
		p.logger.Warn("provenance write failed", "remaining", len(remaining), "error", err)
	}
	return remaining
}

func (p *persister) put(ctx context.Context, w write) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	_, err := p.store.Put(ctx, w.namespace, w.key, w.value)
	return err
}

// drain blocks until every batch started so far has made its first
// attempt.
func (p *persister) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.firsts > 0 {
		p.idle.Wait()
	}
}

func (p *persister) abandon(batch []write, reason string) {
	for _, w := range batch {
		p.logger.Error("provenance write abandoned",
			"namespace", w.namespace,
			"key", w.key,
			"reason", reason,
		)
	}
}

// close stops pending retries and waits for their goroutines. A write
// already inside the backend is waited for.
func (p *persister) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel(errPersisterClosed)
	p.wg.Wait()
}
