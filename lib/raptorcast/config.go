// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raptorcast

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/raptorcast/lib/broadcasttree"
	"github.com/bureau-foundation/raptorcast/lib/clock"
	"github.com/bureau-foundation/raptorcast/lib/delivery"
	"github.com/bureau-foundation/raptorcast/lib/distribution"
	"github.com/bureau-foundation/raptorcast/lib/encoder"
	"github.com/bureau-foundation/raptorcast/lib/propagation"
	"github.com/bureau-foundation/raptorcast/lib/provenance"
)

// Engine defaults not owned by a component package.
const (
	DefaultTreeCacheSize   = 256
	DefaultStoreTimeout    = 2 * time.Second
	DefaultRetryBackoff    = time.Second
	DefaultRetryMaxBackoff = time.Minute
	DefaultRetryAttempts   = 8
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// NodeConfig describes a node registered by Initialize.
type NodeConfig struct {
	ID      string  `json:"id" yaml:"id"`
	Weight  float64 `json:"weight" yaml:"weight"`
	Offline bool    `json:"offline,omitempty" yaml:"offline,omitempty"`
}

// DefaultNodes returns the registry Initialize installs when
// Config.Nodes is empty: node-01 through node-20 with weights cycling
// 1 through 10, all online.
func DefaultNodes() []NodeConfig {
	nodes := make([]NodeConfig, 20)
	for i := range nodes {
		nodes[i] = NodeConfig{
			ID:     fmt.Sprintf("node-%02d", i+1),
			Weight: float64(i%10 + 1),
		}
	}
	return nodes
}

// Config configures an [Engine]. The zero value is usable: every field
// has a default.
type Config struct {
	// Nodes are registered by Initialize. Empty selects DefaultNodes.
	Nodes []NodeConfig

	// Fanout is the maximum number of level-1 nodes.
	// Zero selects broadcasttree.DefaultFanout.
	Fanout int

	// RedundancyFactor and ChunkSize are the encoder defaults for
	// propagations whose Options leave them zero.
	RedundancyFactor int
	ChunkSize        int

	// Probabilities are the per-hop delivery probabilities. A zero
	// field selects its value from distribution.DefaultProbabilities.
	Probabilities distribution.Probabilities

	// MinConfirmations is the Verify threshold. Zero selects
	// delivery.DefaultMinConfirmations.
	MinConfirmations float64

	// Scorer derives propagation scores. The zero value uses the
	// propagation package defaults.
	Scorer propagation.Scorer

	// Seed fixes the per-message random streams used for scoring.
	Seed uint64

	// Random, when set, replaces the seeded source. It is called once
	// per propagation with the message id.
	Random func(messageID string) propagation.RandomSource

	// TreeCacheSize bounds the in-memory tree cache. Trees evicted
	// from it are read back from the store.
	TreeCacheSize int

	// Store persists records. Nil selects an in-memory store owned
	// (and closed) by the engine.
	Store *provenance.Store

	// ConfirmDelay, ConfirmTimeout and Anchor configure the background
	// pending to confirmed step. See provenance.ConfirmerConfig.
	ConfirmDelay   time.Duration
	ConfirmTimeout time.Duration
	Anchor         provenance.Anchor

	// StoreTimeout bounds how long Propagate waits on the store, for
	// the stored-subject lookup and for the first write attempt, and
	// how long any single write may take. Writes that outlast the wait
	// continue in the background.
	StoreTimeout time.Duration

	// RetryBackoff is the first delay before retrying writes that
	// failed; it doubles up to RetryMaxBackoff for at most
	// RetryAttempts retries.
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
	RetryAttempts   int

	// BreakerFailures consecutive failed write batches open the
	// persistence circuit breaker for BreakerCooldown.
	BreakerFailures int
	BreakerCooldown time.Duration

	// Registerer receives the engine's metrics. Nil leaves them
	// unregistered (they are still maintained).
	Registerer prometheus.Registerer

	Clock  clock.Clock
	Logger *slog.Logger
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if len(c.Nodes) == 0 {
		c.Nodes = DefaultNodes()
	}
	if c.Fanout == 0 {
		c.Fanout = broadcasttree.DefaultFanout
	}
	if c.RedundancyFactor == 0 {
		c.RedundancyFactor = encoder.DefaultRedundancyFactor
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = encoder.DefaultChunkSize
	}
	if c.Probabilities.LevelOne == 0 {
		c.Probabilities.LevelOne = distribution.DefaultLevelOne
	}
	if c.Probabilities.LevelTwo == 0 {
		c.Probabilities.LevelTwo = distribution.DefaultLevelTwo
	}
	if c.MinConfirmations == 0 {
		c.MinConfirmations = delivery.DefaultMinConfirmations
	}
	if c.TreeCacheSize == 0 {
		c.TreeCacheSize = DefaultTreeCacheSize
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.RetryMaxBackoff == 0 {
		c.RetryMaxBackoff = DefaultRetryMaxBackoff
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = DefaultBreakerFailures
	}
	if c.BreakerCooldown == 0 {
		c.BreakerCooldown = DefaultBreakerCooldown
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// validate checks a defaulted configuration.
func (c Config) validate() error {
	if c.Fanout < 1 {
		return fmt.Errorf("%w: fanout %d must be at least 1", ErrInvalidConfig, c.Fanout)
	}
	if c.RedundancyFactor < 1 {
		return fmt.Errorf("%w: redundancy factor %d must be at least 1", ErrInvalidConfig, c.RedundancyFactor)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidConfig, c.ChunkSize)
	}
	if err := c.Probabilities.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Scorer.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.TreeCacheSize < 1 {
		return fmt.Errorf("%w: tree cache size %d must be positive", ErrInvalidConfig, c.TreeCacheSize)
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("%w: store timeout %v must be positive", ErrInvalidConfig, c.StoreTimeout)
	}
	if c.RetryBackoff < 0 || c.RetryMaxBackoff < c.RetryBackoff || c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry backoff %v..%v over %d attempts", ErrInvalidConfig,
			c.RetryBackoff, c.RetryMaxBackoff, c.RetryAttempts)
	}
	if c.BreakerFailures < 1 || c.BreakerCooldown < 0 {
		return fmt.Errorf("%w: breaker trips after %d failures for %v", ErrInvalidConfig,
			c.BreakerFailures, c.BreakerCooldown)
	}
	if c.ConfirmDelay < 0 || c.ConfirmTimeout < 0 {
		return fmt.Errorf("%w: negative confirmation delay or timeout", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, node := range c.Nodes {
		if node.ID == "" || !(node.Weight > 0) {
			return fmt.Errorf("%w: node %q with weight %v", ErrInvalidConfig, node.ID, node.Weight)
		}
		if seen[node.ID] {
			return fmt.Errorf("%w: node %q listed twice", ErrInvalidConfig, node.ID)
		}
		seen[node.ID] = true
	}
	return nil
}

// Options are per-propagation overrides. Zero fields take the engine
// configuration.
type Options struct {
	RedundancyFactor int `json:"redundancy_factor,omitempty"`
	ChunkSize        int `json:"chunk_size,omitempty"`
}
