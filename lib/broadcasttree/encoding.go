// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broadcasttree

import (
	"fmt"

	"github.com/bureau-foundation/raptorcast/lib/codec"
)

// Marshal encodes the tree as deterministic CBOR.
func Marshal(tree *Tree) ([]byte, error) {
	return codec.Marshal(tree)
}

// Unmarshal decodes a tree and validates its structure, so a corrupted
// stored tree is rejected rather than handed to the simulator.
func Unmarshal(data []byte) (*Tree, error) {
	tree, err := codec.Decode[Tree](data)
	if err != nil {
		return nil, fmt.Errorf("decoding broadcast tree: %w", err)
	}
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("decoded broadcast tree for %s: %w", tree.MessageID, err)
	}
	return &tree, nil
}
