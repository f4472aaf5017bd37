// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/raptorcast/lib/config"
	"github.com/bureau-foundation/raptorcast/lib/distribution"
	"github.com/bureau-foundation/raptorcast/lib/propagation"
	"github.com/bureau-foundation/raptorcast/lib/provenance"
	"github.com/bureau-foundation/raptorcast/lib/raptorcast"
)

// loadConfig reads the file named by path, or by RAPTORCAST_CONFIG when
// path is empty. With neither set the built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(config.EnvironmentVariable)
	}
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.LoadFile(path)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// session is an initialized engine over a store it does not own.
type session struct {
	engine *raptorcast.Engine
	store  *provenance.Store
}

// openSession opens the configured store and an engine over it.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session, error) {
	store, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	engine, err := raptorcast.New(engineConfig(cfg, store, logger))
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := engine.Initialize(ctx); err != nil {
		engine.Close()
		store.Close()
		return nil, err
	}
	return &session{engine: engine, store: store}, nil
}

// Close stops the engine, then the store.
func (s *session) Close() error {
	return errors.Join(s.engine.Close(), s.store.Close())
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (*provenance.Store, error) {
	compression, err := provenance.ParseCompressionTag(cfg.Compression)
	if err != nil {
		return nil, err
	}
	var key []byte
	if cfg.EncryptionKey != "" {
		key, err = provenance.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
	}

	var backend provenance.Backend
	switch cfg.Backend {
	case config.BackendSQLite:
		if err := (&config.Config{Store: cfg}).EnsureStoreDir(); err != nil {
			return nil, err
		}
		backend, err = provenance.OpenSQLite(provenance.SQLiteConfig{
			Path:     cfg.Path,
			PoolSize: cfg.PoolSize,
			Durable:  cfg.Durable,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	default:
		backend = provenance.NewMemoryBackend()
	}

	store, err := provenance.New(provenance.Config{
		Backend:       backend,
		Compression:   compression,
		EncryptionKey: key,
		Logger:        logger,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}

// engineConfig maps the file configuration onto the engine's.
func engineConfig(cfg *config.Config, store *provenance.Store, logger *slog.Logger) raptorcast.Config {
	e := cfg.Engine
	nodes := make([]raptorcast.NodeConfig, len(cfg.Nodes))
	for i, node := range cfg.Nodes {
		nodes[i] = raptorcast.NodeConfig{ID: node.ID, Weight: node.Weight, Offline: node.Offline}
	}
	return raptorcast.Config{
		Nodes:            nodes,
		Fanout:           e.Fanout,
		RedundancyFactor: e.RedundancyFactor,
		ChunkSize:        e.ChunkSize,
		Probabilities: distribution.Probabilities{
			LevelOne: e.LevelOneProbability,
			LevelTwo: e.LevelTwoProbability,
		},
		MinConfirmations: e.MinConfirmations,
		Scorer:           propagation.Scorer{EvolutionThreshold: e.EvolutionThreshold},
		Seed:             e.Seed,
		TreeCacheSize:    e.TreeCacheSize,
		Store:            store,
		ConfirmDelay:     e.ConfirmDelay.Std(),
		ConfirmTimeout:   e.ConfirmTimeout.Std(),
		StoreTimeout:     e.StoreTimeout.Std(),
		RetryBackoff:     e.RetryBackoff.Std(),
		RetryMaxBackoff:  e.RetryMaxBackoff.Std(),
		RetryAttempts:    e.RetryAttempts,
		BreakerFailures:  e.BreakerFailures,
		BreakerCooldown:  e.BreakerCooldown.Std(),
		Logger:           logger,
	}
}
