// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raptorcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/raptorcast/lib/broadcasttree"
	"github.com/bureau-foundation/raptorcast/lib/clock"
	"github.com/bureau-foundation/raptorcast/lib/delivery"
	"github.com/bureau-foundation/raptorcast/lib/participant"
	"github.com/bureau-foundation/raptorcast/lib/propagation"
	"github.com/bureau-foundation/raptorcast/lib/provenance"
)

// Engine owns a node registry, the record caches and the provenance
// store for one process. Create it with New, call Initialize once, and
// share the handle.
//
// All methods are safe for concurrent use.
type Engine struct {
	config    Config
	builder   broadcasttree.Builder
	verifier  *delivery.Verifier
	store     *provenance.Store
	ownsStore bool
	confirmer *provenance.Confirmer
	persister *persister
	metrics   *metrics
	clock     clock.Clock
	logger    *slog.Logger

	registry participant.Registry

	initMu      sync.Mutex
	initialized atomic.Bool
	closed      atomic.Bool

	// flight collapses concurrent propagations of one subject.
	flight singleflight.Group

	mu        sync.RWMutex
	bySubject map[string]*propagation.Record
	byMessage map[string]*propagation.Record

	// trees caches recently built trees by message id.
	trees *lru.Cache
}

// New validates cfg and returns an engine. Call Initialize before any
// other method.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	verifier, err := delivery.NewVerifier(cfg.MinConfirmations)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	trees, err := lru.New(cfg.TreeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: tree cache: %w", ErrInvalidConfig, err)
	}
	engineMetrics, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}

	store := cfg.Store
	ownsStore := false
	if store == nil {
		store, err = provenance.New(provenance.Config{Clock: cfg.Clock, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		ownsStore = true
	}

	confirmer := provenance.NewConfirmer(provenance.ConfirmerConfig{
		Store:   store,
		Clock:   cfg.Clock,
		Delay:   cfg.ConfirmDelay,
		Timeout: cfg.ConfirmTimeout,
		Anchor:  cfg.Anchor,
		Logger:  cfg.Logger,
	})

	return &Engine{
		config:    cfg,
		builder:   broadcasttree.Builder{Fanout: cfg.Fanout},
		verifier:  verifier,
		store:     store,
		ownsStore: ownsStore,
		confirmer: confirmer,
		persister: newPersister(cfg, store, confirmer, engineMetrics),
		metrics:   engineMetrics,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		bySubject: make(map[string]*propagation.Record),
		byMessage: make(map[string]*propagation.Record),
		trees:     trees,
	}, nil
}

// Initialize registers the configured nodes. Calling it again is a
// no-op.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.initialized.Load() {
		return nil
	}

	for _, node := range e.config.Nodes {
		if err := e.registry.Register(node.ID, node.Weight, !node.Offline); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	e.updateOnlineGauge()
	e.initialized.Store(true)

	e.logger.InfoContext(ctx, "engine initialized",
		"nodes", e.registry.Len(),
		"online", len(e.registry.Online()),
		"fanout", e.config.Fanout,
	)
	return nil
}

// ready reports whether the engine accepts calls.
func (e *Engine) ready() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

// RegisterNode adds a node, or updates the weight and online flag of
// an existing one without changing its registration order.
func (e *Engine) RegisterNode(id string, weight float64, online bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.registry.Register(id, weight, online); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	e.updateOnlineGauge()
	e.logger.Info("node registered", "node_id", id, "weight", weight, "online", online)
	return nil
}

// SetNodeOnline sets a node's online flag and reports whether the node
// exists. Offline nodes are left out of every tree built afterward.
// It returns false before Initialize.
func (e *Engine) SetNodeOnline(nodeID string, online bool) bool {
	if e.ready() != nil {
		return false
	}
	if !e.registry.SetOnline(nodeID, online) {
		return false
	}
	e.updateOnlineGauge()
	e.logger.Info("node status changed", "node_id", nodeID, "online", online)
	return true
}

// Nodes returns the registered nodes in registration order, or nil
// before Initialize.
func (e *Engine) Nodes() []participant.Node {
	if e.ready() != nil {
		return nil
	}
	return e.registry.Snapshot()
}

// AwaitConfirmations blocks until every write started so far has
// made its first attempt and every scheduled confirmation has
// finished. Propagate never waits for confirmation; short-lived
// callers such as the CLI use this before Close so their entries leave
// pending.
func (e *Engine) AwaitConfirmations() {
	e.persister.drain()
	e.confirmer.Wait()
}

// Close stops background retries and confirmations and closes the
// store if the engine created it. Entries still being confirmed stay
// pending.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.persister.close()
	e.confirmer.Close()
	if e.ownsStore {
		return e.store.Close()
	}
	return nil
}

func (e *Engine) updateOnlineGauge() {
	e.metrics.nodesOnline.Set(float64(len(e.registry.Online())))
}
