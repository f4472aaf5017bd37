// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package broadcasttree builds the two-level fan-out tree that carries
// an encoded message from its originator to the online participants.
//
// A [Tree] is an arena: a flat slice of [Node] values where Nodes[0] is
// the originator and parent/child relationships are integer indices.
// The arena is built once per propagation and never mutated afterwards,
// which makes it safe to share between goroutines and trivial to
// serialize (see [Marshal] and [Unmarshal]).
//
// Chunk ranges are inclusive. The originator covers [0, chunkCount-1];
// level-1 ranges partition that interval by weight, and the level-2
// children of each level-1 node partition their parent's range by
// count. [Tree.Validate] checks both partitions.
//
// Traversal order is fixed so that derived values are reproducible:
// [Tree.Walk] is breadth-first with children in assignment order, and
// [Tree.Path] follows the first child at every level.
package broadcasttree
