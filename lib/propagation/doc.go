// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package propagation scores a completed broadcast and applies the
// score to the artifact that was propagated.
//
// A [Scorer] turns chunk counts into a [Score]. The replication factor
// is the delivered fraction of generated chunks, capped at 1. The
// propagation speed and the optional evolution factor are drawn from a
// caller-supplied [RandomSource]; [NewRandomSource] seeds one per
// message so scores are reproducible.
//
// [Evolve] derives a new [Artifact] whose quality rises by
// floor(quality * evolutionFactor), capped at [MaxQuality]. A score
// without an evolution factor produces no artifact.
//
// [Record] is the persisted form of a propagation. Its node lists use
// fixed orders: ReceivingNodes is breadth-first over the broadcast
// tree and PropagationPath follows the first child.
package propagation
