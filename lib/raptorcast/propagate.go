// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raptorcast

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/raptorcast/lib/broadcasttree"
	"github.com/bureau-foundation/raptorcast/lib/distribution"
	"github.com/bureau-foundation/raptorcast/lib/encoder"
	"github.com/bureau-foundation/raptorcast/lib/propagation"
	"github.com/bureau-foundation/raptorcast/lib/provenance"
)

// Propagate encodes payload, distributes it over a tree of the online
// nodes, scores the result and records it for subject.
//
// A subject is propagated at most once: later calls, concurrent or
// not, return the first record unchanged whatever their payload. The
// returned record is a copy the caller may modify.
//
// Storage failures do not fail the call, and a slow store holds it up
// for at most StoreTimeout per wait. The record is kept in memory and
// its writes finish or are retried in the background.
func (e *Engine) Propagate(ctx context.Context, subject propagation.Artifact, payload []byte, opts *Options) (*propagation.Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := subject.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	options, err := e.resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	if record, ok := e.cachedSubject(subject.ID); ok {
		e.metrics.propagations.WithLabelValues("cached").Inc()
		return cloneRecord(record), nil
	}

	value, err, _ := e.flight.Do(subject.ID, func() (any, error) {
		return e.propagateOnce(ctx, subject, payload, options)
	})
	if err != nil {
		e.metrics.propagations.WithLabelValues("failed").Inc()
		return nil, err
	}
	return cloneRecord(value.(*propagation.Record)), nil
}

func (e *Engine) resolveOptions(opts *Options) (encoder.Options, error) {
	options := encoder.Options{
		RedundancyFactor: e.config.RedundancyFactor,
		ChunkSize:        e.config.ChunkSize,
	}
	if opts != nil {
		if opts.RedundancyFactor < 0 || opts.ChunkSize < 0 {
			return encoder.Options{}, fmt.Errorf("%w: negative redundancy factor %d or chunk size %d",
				ErrInvalidConfig, opts.RedundancyFactor, opts.ChunkSize)
		}
		if opts.RedundancyFactor != 0 {
			options.RedundancyFactor = opts.RedundancyFactor
		}
		if opts.ChunkSize != 0 {
			options.ChunkSize = opts.ChunkSize
		}
	}
	return options, nil
}

// propagateOnce runs inside the subject's singleflight call.
func (e *Engine) propagateOnce(ctx context.Context, subject propagation.Artifact, payload []byte, options encoder.Options) (*propagation.Record, error) {
	if record, ok := e.cachedSubject(subject.ID); ok {
		e.metrics.propagations.WithLabelValues("cached").Inc()
		return record, nil
	}
	if record := e.storedSubject(ctx, subject.ID); record != nil {
		e.metrics.propagations.WithLabelValues("cached").Inc()
		return e.remember(record, nil), nil
	}

	started := e.clock.Now()
	options.Subject = subject.ID
	encoded, err := encoder.Encode(payload, options)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %s: %w", ErrInvalidConfig, subject.ID, err)
	}

	tree, err := e.builder.Build(encoded.MessageID, encoded.EncodedChunkCount, e.registry.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("%w: building tree for %s: %w", ErrInvalidConfig, encoded.MessageID, err)
	}
	simulated, err := distribution.Simulate(tree, e.config.Probabilities)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	score := e.config.Scorer.Score(encoded.EncodedChunkCount, simulated.ChunksSent, e.random(encoded.MessageID))

	now := e.clock.Now()
	result := propagation.BroadcastResult{
		MessageID:       encoded.MessageID,
		Success:         simulated.ChunksSent > 0,
		ChunksGenerated: encoded.EncodedChunkCount,
		ChunksSent:      simulated.ChunksSent,
		RecipientCount:  tree.Len() - 1,
		Timestamp:       now,
		CommitmentRoot:  encoded.CommitmentRoot,
		SubjectID:       subject.ID,
		PayloadRef:      encoded.PayloadRef,
	}
	record := e.remember(propagation.NewRecord(result, subject, tree, score), tree)
	if record.MessageID != encoded.MessageID {
		// Another path recorded this subject first.
		e.metrics.propagations.WithLabelValues("cached").Inc()
		return record, nil
	}

	e.metrics.propagations.WithLabelValues("created").Inc()
	e.metrics.chunksGenerated.Add(float64(result.ChunksGenerated))
	e.metrics.chunksSent.Add(float64(result.ChunksSent))
	e.metrics.replication.Observe(score.ReplicationFactor)
	e.metrics.propagateDuration.Observe(now.Sub(started).Seconds())

	e.persister.persist(ctx, recordWrites(record, tree))

	attrs := []any{
		"message_id", record.MessageID,
		"subject_id", subject.ID,
		"chunks_generated", result.ChunksGenerated,
		"chunks_sent", result.ChunksSent,
		"recipients", result.RecipientCount,
		"replication_factor", score.ReplicationFactor,
	}
	if score.EvolutionFactor != nil {
		attrs = append(attrs, "evolution_factor", *score.EvolutionFactor)
	}
	e.logger.InfoContext(ctx, "propagation recorded", attrs...)
	return record, nil
}

// recordWrites lists the store writes for a new record. The
// propagation-by-subject entry goes last. A batch stops at its first
// failed write, so once that entry is stored every other entry of the
// record is too.
func recordWrites(record *propagation.Record, tree *broadcasttree.Tree) []write {
	messageID := record.MessageID
	return []write{
		{provenance.NamespaceTrees, messageID, tree},
		{provenance.NamespaceBroadcasts, messageID, record.BroadcastResult},
		{provenance.NamespacePropagations, messageID, record},
		{provenance.NamespaceArtifacts, record.Subject.ID, record.Subject},
		{provenance.NamespaceHistoryByTime, provenance.HistoryKey(record.Timestamp, messageID), record.BroadcastResult},
		{provenance.NamespacePropagationBySubject, record.Subject.ID, record},
	}
}

func (e *Engine) random(messageID string) propagation.RandomSource {
	if e.config.Random != nil {
		return e.config.Random(messageID)
	}
	return propagation.NewRandomSource(e.config.Seed, messageID)
}

func (e *Engine) cachedSubject(subjectID string) (*propagation.Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	record, ok := e.bySubject[subjectID]
	return record, ok
}

// storedSubject returns the record a previous process stored for
// subjectID, or nil. A store that cannot be read within StoreTimeout
// counts as empty.
func (e *Engine) storedSubject(ctx context.Context, subjectID string) *propagation.Record {
	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	type lookup struct {
		entry *provenance.Entry
		err   error
	}
	done := make(chan lookup, 1)
	go func() {
		entry, err := e.store.Get(ctx, provenance.NamespacePropagationBySubject, subjectID)
		done <- lookup{entry, err}
	}()

	var entry *provenance.Entry
	var err error
	select {
	case result := <-done:
		entry, err = result.entry, result.err
	case <-ctx.Done():
		err = context.Cause(ctx)
	}
	if err != nil {
		if !errors.Is(err, provenance.ErrNotFound) {
			e.logger.WarnContext(ctx, "reading stored propagation failed", "subject_id", subjectID, "error", err)
		}
		return nil
	}
	var record propagation.Record
	if err := entry.Decode(&record); err != nil {
		e.logger.WarnContext(ctx, "decoding stored propagation failed", "subject_id", subjectID, "error", err)
		return nil
	}
	return &record
}

// remember caches record unless its subject already has one, and
// returns the record that is cached for the subject afterward.
func (e *Engine) remember(record *propagation.Record, tree *broadcasttree.Tree) *propagation.Record {
	e.mu.Lock()
	if existing, ok := e.bySubject[record.Subject.ID]; ok {
		e.mu.Unlock()
		return existing
	}
	e.bySubject[record.Subject.ID] = record
	e.byMessage[record.MessageID] = record
	e.mu.Unlock()

	if tree != nil {
		e.trees.Add(record.MessageID, tree)
	}
	return record
}

// cloneRecord copies the slices and maps of record.
func cloneRecord(record *propagation.Record) *propagation.Record {
	clone := *record
	clone.ReceivingNodes = slices.Clone(record.ReceivingNodes)
	clone.PropagationPath = slices.Clone(record.PropagationPath)
	if record.EvolutionFactor != nil {
		factor := *record.EvolutionFactor
		clone.EvolutionFactor = &factor
	}
	clone.Subject.Attributes = maps.Clone(record.Subject.Attributes)
	return &clone
}
