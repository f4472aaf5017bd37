// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raptorcast

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/raptorcast/lib/broadcasttree"
	"github.com/bureau-foundation/raptorcast/lib/delivery"
	"github.com/bureau-foundation/raptorcast/lib/propagation"
	"github.com/bureau-foundation/raptorcast/lib/provenance"
)

// Record returns a copy of the propagation record for messageID.
func (e *Engine) Record(ctx context.Context, messageID string) (*propagation.Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	record, err := e.lookup(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return cloneRecord(record), nil
}

// Evolve derives a new artifact from the subject of messageID using
// the broadcast's score, stores it, and returns it. It returns nil and
// no error when the broadcast earned no evolution factor. Evolving the
// same message again returns an identical artifact.
func (e *Engine) Evolve(ctx context.Context, messageID string) (*propagation.Artifact, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	record, err := e.lookup(ctx, messageID)
	if err != nil {
		return nil, err
	}

	evolved := propagation.Evolve(record.Subject, record.Score(), messageID)
	if evolved == nil {
		e.logger.DebugContext(ctx, "no evolution",
			"message_id", messageID,
			"replication_factor", record.ReplicationFactor,
		)
		return nil, nil
	}

	e.metrics.evolutions.Inc()
	e.persister.persist(ctx, []write{{provenance.NamespaceArtifacts, evolved.ID, *evolved}})
	e.logger.InfoContext(ctx, "artifact evolved",
		"message_id", messageID,
		"subject_id", record.Subject.ID,
		"artifact_id", evolved.ID,
		"quality", evolved.Quality,
		"generation", evolved.Generation,
	)
	return evolved, nil
}

// GetTree returns the broadcast tree of messageID. The tree is shared
// and must not be modified.
func (e *Engine) GetTree(ctx context.Context, messageID string) (*broadcasttree.Tree, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if cached, ok := e.trees.Get(messageID); ok {
		return cached.(*broadcasttree.Tree), nil
	}

	entry, err := e.store.Get(ctx, provenance.NamespaceTrees, messageID)
	if errors.Is(err, provenance.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s has no tree", ErrUnknownMessage, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading tree %s: %w", messageID, err)
	}
	tree, err := broadcasttree.Unmarshal(entry.Value)
	if err != nil {
		return nil, fmt.Errorf("loading tree %s: %w", messageID, err)
	}
	e.trees.Add(messageID, tree)
	return tree, nil
}

// Verify computes the delivery confirmation rate of messageID:
// chunks sent over chunks generated times tree size (originator
// included), and whether it reaches the configured threshold.
func (e *Engine) Verify(ctx context.Context, messageID string) (delivery.Verification, error) {
	if err := e.ready(); err != nil {
		return delivery.Verification{}, err
	}
	record, err := e.lookup(ctx, messageID)
	if err != nil {
		return delivery.Verification{}, err
	}

	verification := e.verifier.Verify(messageID, delivery.Counts{
		ChunksGenerated: record.ChunksGenerated,
		ChunksSent:      record.ChunksSent,
		TreeSize:        len(record.ReceivingNodes) + 1,
	}, e.clock.Now())

	result := "failure"
	if verification.Success {
		result = "success"
	}
	e.metrics.verifications.WithLabelValues(result).Inc()
	return verification, nil
}

// History returns the entries of namespace. The history-by-time
// namespace is returned in key order, which is chronological; every
// other namespace in write order.
func (e *Engine) History(ctx context.Context, namespace string) ([]provenance.Entry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !slices.Contains(provenance.Namespaces(), namespace) {
		return nil, fmt.Errorf("%w: unknown namespace %q", ErrInvalidConfig, namespace)
	}
	if namespace == provenance.NamespaceHistoryByTime {
		return e.store.Range(ctx, namespace, "", "")
	}
	return e.store.List(ctx, namespace)
}

// Status returns the confirmation status of the broadcast entry for
// messageID. A broadcast whose write has not reached the store yet is
// pending.
func (e *Engine) Status(ctx context.Context, messageID string) (provenance.Status, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	entry, err := e.store.Get(ctx, provenance.NamespaceBroadcasts, messageID)
	if err == nil {
		return entry.Status, nil
	}
	if !errors.Is(err, provenance.ErrNotFound) {
		return 0, fmt.Errorf("loading broadcast %s: %w", messageID, err)
	}
	e.mu.RLock()
	_, known := e.byMessage[messageID]
	e.mu.RUnlock()
	if known {
		return provenance.StatusPending, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
}

// lookup returns the record for messageID from memory or the store.
func (e *Engine) lookup(ctx context.Context, messageID string) (*propagation.Record, error) {
	e.mu.RLock()
	record, ok := e.byMessage[messageID]
	e.mu.RUnlock()
	if ok {
		return record, nil
	}

	entry, err := e.store.Get(ctx, provenance.NamespacePropagations, messageID)
	if errors.Is(err, provenance.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading propagation %s: %w", messageID, err)
	}
	record = &propagation.Record{}
	if err := entry.Decode(record); err != nil {
		return nil, fmt.Errorf("loading propagation %s: %w", messageID, err)
	}
	return e.remember(record, nil), nil
}
