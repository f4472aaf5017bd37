// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/raptorcast/lib/codec"
	"github.com/bureau-foundation/raptorcast/lib/encoder"
)

// Namespaces written by the engine.
const (
	NamespaceBroadcasts           = "broadcasts"
	NamespacePropagations         = "propagations"
	NamespacePropagationBySubject = "propagation-by-subject"
	NamespaceHistoryByTime        = "history-by-time"
	NamespaceTrees                = "trees"
	NamespaceArtifacts            = "artifacts"
)

// Namespaces returns every engine namespace.
func Namespaces() []string {
	return []string{
		NamespaceBroadcasts,
		NamespacePropagations,
		NamespacePropagationBySubject,
		NamespaceHistoryByTime,
		NamespaceTrees,
		NamespaceArtifacts,
	}
}

// Status is the lifecycle state of a stored entry.
type Status uint8

const (
	// StatusPending is the state of every newly written entry.
	StatusPending Status = iota
	// StatusConfirmed means the background confirmation succeeded.
	StatusConfirmed
	// StatusFailed means confirmation errored or timed out.
	StatusFailed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	if s > StatusFailed {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = StatusPending
	case "confirmed":
		*s = StatusConfirmed
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Entry is a stored value with its provenance metadata. Value holds the
// plaintext CBOR encoding; use Decode to read it.
type Entry struct {
	Namespace string       `json:"namespace"`
	Key       string       `json:"key"`
	Value     []byte       `json:"-"`
	Root      encoder.Hash `json:"root"`
	Sequence  uint64       `json:"sequence"`
	Status    Status       `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Decode unmarshals the entry's value into v.
func (e *Entry) Decode(v any) error {
	if err := codec.Unmarshal(e.Value, v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", e.Namespace, e.Key, err)
	}
	return nil
}

// StatusChange is delivered to subscribers when an entry is written or
// its status moves.
type StatusChange struct {
	Namespace string       `json:"namespace"`
	Key       string       `json:"key"`
	Root      encoder.Hash `json:"root"`
	Status    Status       `json:"status"`
	At        time.Time    `json:"at"`
}

// HistoryKey returns the history-by-time key for a broadcast: the
// zero-padded Unix nanosecond timestamp, a slash, and the message id.
// Lexicographic key order is chronological order.
func HistoryKey(at time.Time, messageID string) string {
	return fmt.Sprintf("%020d/%s", at.UnixNano(), messageID)
}

// TimeKey returns the history-by-time key prefix for at. Use it as a
// Range bound.
func TimeKey(at time.Time) string {
	return fmt.Sprintf("%020d", at.UnixNano())
}

// provenanceDomainKey is the BLAKE3 key for entry commitment roots.
var provenanceDomainKey = [32]byte{
	'r', 'a', 'p', 't', 'o', 'r', 'c', 'a', 's', 't', '.', 'p', 'r', 'o', 'v', 'e',
	'n', 'a', 'n', 'c', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// CommitmentRoot returns the root of an entry: a provenance-domain
// BLAKE3 hash over the length-prefixed namespace, key and plaintext
// value. Identical writes produce identical roots.
func CommitmentRoot(namespace, key string, value []byte) encoder.Hash {
	hasher, err := blake3.NewKeyed(provenanceDomainKey[:])
	if err != nil {
		panic("provenance: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var length [binary.MaxVarintLen64]byte
	for _, part := range [][]byte{[]byte(namespace), []byte(key), value} {
		n := binary.PutUvarint(length[:], uint64(len(part)))
		hasher.Write(length[:n])
		hasher.Write(part)
	}
	var root encoder.Hash
	copy(root[:], hasher.Sum(nil))
	return root
}
