// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package encoder

import (
	"strings"
	"testing"
)

func TestDomainKeysAreDistinct(t *testing.T) {
	input := []byte("the same bytes in every domain")

	chunk := keyedHash(chunkDomainKey, input)
	message := keyedHash(messageDomainKey, input)
	payload := keyedHash(payloadDomainKey, input)

	if chunk == message || chunk == payload || message == payload {
		t.Error("two domains produced the same hash for identical input")
	}

	for _, key := range []domainKey{chunkDomainKey, messageDomainKey, payloadDomainKey} {
		if !strings.HasPrefix(string(key[:]), "raptorcast.") {
			t.Errorf("domain key %q does not start with raptorcast.", strings.TrimRight(string(key[:]), "\x00"))
		}
	}
}

func TestMerkleRootSingleLeafIsLeaf(t *testing.T) {
	leaf := HashChunk([]byte("only"))
	if MerkleRoot([]Hash{leaf}) != leaf {
		t.Error("single-leaf root should be the leaf itself")
	}
}

func TestMerkleRootPromotesOddNode(t *testing.T) {
	a := HashChunk([]byte("a"))
	b := HashChunk([]byte("b"))
	c := HashChunk([]byte("c"))

	want := hashPair(hashPair(a, b), c)
	if got := MerkleRoot([]Hash{a, b, c}); got != want {
		t.Errorf("MerkleRoot(a,b,c) = %s, want %s", got, want)
	}

	// Duplicating the odd node instead of promoting it would make
	// [a b c] and [a b c c] collide.
	if MerkleRoot([]Hash{a, b, c}) == MerkleRoot([]Hash{a, b, c, c}) {
		t.Error("[a b c] and [a b c c] share a root")
	}
}

func TestMerkleRootDoesNotMutateInput(t *testing.T) {
	hashes := []Hash{HashChunk([]byte("x")), HashChunk([]byte("y"))}
	saved := hashes[0]
	MerkleRoot(hashes)
	if hashes[0] != saved {
		t.Error("MerkleRoot modified the caller's slice")
	}
}

func TestMerkleRootPanicsOnEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MerkleRoot(nil) did not panic")
		}
	}()
	MerkleRoot(nil)
}

func TestHashTextRoundTrip(t *testing.T) {
	original := HashChunk([]byte("round trip"))
	text, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if len(text) != 64 {
		t.Fatalf("MarshalText length = %d, want 64", len(text))
	}

	var decoded Hash
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if decoded != original {
		t.Error("text round trip changed the hash")
	}

	if _, err := ParseHash("abcd"); err == nil {
		t.Error("ParseHash accepted a 2-byte hash")
	}
	if _, err := ParseHash(strings.Repeat("zz", 32)); err == nil {
		t.Error("ParseHash accepted non-hex input")
	}
}
