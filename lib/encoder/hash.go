// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package encoder

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// domainKey is a 32-byte BLAKE3 key. The byte values are the ASCII
// domain name, zero-padded, so keys are readable in hex dumps.
type domainKey [32]byte

// Domain separation keys. Changing any of these changes every hash,
// commitment root and message id derived in that domain.
var (
	chunkDomainKey = domainKey{
		'r', 'a', 'p', 't', 'o', 'r', 'c', 'a', 's', 't', '.', 'c', 'h', 'u', 'n', 'k',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	messageDomainKey = domainKey{
		'r', 'a', 'p', 't', 'o', 'r', 'c', 'a', 's', 't', '.', 'm', 'e', 's', 's', 'a',
		'g', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	payloadDomainKey = domainKey{
		'r', 'a', 'p', 't', 'o', 'r', 'c', 'a', 's', 't', '.', 'p', 'a', 'y', 'l', 'o',
		'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashChunk computes the chunk-domain hash of data.
func HashChunk(data []byte) Hash {
	return keyedHash(chunkDomainKey, data)
}

// HashPayload computes the payload-domain hash of a whole payload.
func HashPayload(payload []byte) Hash {
	return keyedHash(payloadDomainKey, payload)
}

// MerkleRoot computes the commitment root over the given chunk hashes.
// Adjacent pairs are concatenated and hashed in the chunk domain. An odd
// node at the end of a level is promoted without hashing; duplicating it
// would let two different chunk lists share a root.
//
// Panics if hashes is empty. An encoded message always has at least one
// chunk.
func MerkleRoot(hashes []Hash) Hash {
	if len(hashes) == 0 {
		panic("encoder.MerkleRoot: empty hash list")
	}

	level := make([]Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		next := make([]Hash, (len(level)+1)/2)
		for i := 0; i < len(level)-1; i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}
		if len(level)%2 == 1 {
			next[len(next)-1] = level[len(level)-1]
		}
		level = next
	}

	return level[0]
}

// MessageID derives the identifier of a broadcast from the subject it
// propagates and the commitment root of its chunks. The same subject
// and chunk set always produce the same id.
func MessageID(subjectID string, root Hash) string {
	input := make([]byte, 0, len(subjectID)+1+len(root))
	input = append(input, subjectID...)
	input = append(input, 0)
	input = append(input, root[:]...)
	hash := keyedHash(messageDomainKey, input)
	return "msg-" + hex.EncodeToString(hash[:8])
}

// FormatPayloadRef returns the short reference for a payload hash: the
// "pay-" prefix followed by 12 hex characters.
func FormatPayloadRef(payloadHash Hash) string {
	return "pay-" + hex.EncodeToString(payloadHash[:6])
}

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is all zero bytes.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText encodes the hash as lowercase hex. With lib/codec this
// also makes hashes CBOR text strings.
func (h Hash) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(out, h[:])
	return out, nil
}

// UnmarshalText parses a 64-character hex string.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("hash is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

func keyedHash(key domainKey, data []byte) Hash {
	// NewKeyed only fails for a key that is not 32 bytes, which
	// domainKey rules out.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("encoder: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

func hashPair(left, right Hash) Hash {
	var combined [64]byte
	copy(combined[:32], left[:])
	copy(combined[32:], right[:])
	return keyedHash(chunkDomainKey, combined[:])
}
