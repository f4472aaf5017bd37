// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package encoder splits a broadcast payload into fixed-size chunks and
// commits to the ordered chunk set with a single root hash.
//
// The encoding is systematic: the first k chunks (k = ceil(len/chunkSize))
// carry literal slices of the payload, so those k chunks alone always
// reconstruct it. The remaining chunks are repair chunks. The package
// does not implement a Raptor code; repair chunk r is the XOR of
// systematic chunks (r mod k) and ((r+1) mod k), zero padded to the
// chunk size. That is enough for [Reconstruct] to recover a missing
// systematic chunk when a repair chunk pairs it with one that arrived.
//
// Hashing uses BLAKE3 in keyed mode with domain separation, following
// the same scheme as content-addressed artifact storage:
//
//   - chunk domain: per-chunk hashes and Merkle interior nodes
//   - message domain: derivation of message identifiers
//   - payload domain: the short payload reference
//
// The commitment root is a binary Merkle tree over the chunk hashes in
// chunk order. When a level has an odd number of nodes the last node is
// promoted unchanged.
package encoder
