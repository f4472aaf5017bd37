// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package encoder

import (
	"errors"
	"fmt"
	"strconv"
)

// Defaults applied by [Options.withDefaults] when a field is zero.
const (
	DefaultChunkSize        = 1024
	DefaultRedundancyFactor = 3
)

// ErrInvalidOptions is returned (wrapped) for a non-positive chunk
// size, a redundancy factor below one, or an empty payload.
var ErrInvalidOptions = errors.New("invalid encoder options")

// Options configures a single [Encode] call.
type Options struct {
	// RedundancyFactor multiplies the source chunk count to give the
	// encoded chunk count. Must be at least 1; 1 means no repair
	// chunks. Zero selects DefaultRedundancyFactor.
	RedundancyFactor int

	// ChunkSize is the size in bytes of every systematic chunk except
	// possibly the last, and of every repair chunk. Zero selects
	// DefaultChunkSize; negative is rejected.
	ChunkSize int

	// Subject is mixed into the message id so that identical payloads
	// propagated for different subjects get distinct ids.
	Subject string
}

func (o Options) withDefaults() Options {
	if o.RedundancyFactor == 0 {
		o.RedundancyFactor = DefaultRedundancyFactor
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

// ChunkKind distinguishes literal payload slices from repair data.
type ChunkKind uint8

const (
	// Systematic chunks carry a literal slice of the payload.
	Systematic ChunkKind = iota
	// Repair chunks carry parity over two systematic chunks.
	Repair
)

// String returns the lowercase kind name.
func (k ChunkKind) String() string {
	switch k {
	case Systematic:
		return "systematic"
	case Repair:
		return "repair"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Chunk is one unit of encoded data.
type Chunk struct {
	Index int       `json:"index"`
	Kind  ChunkKind `json:"kind"`
	Data  []byte    `json:"data"`
	Hash  Hash      `json:"hash"`
}

// EncodedMessage is the output of [Encode]. It lives for the duration
// of one propagation and is not persisted.
type EncodedMessage struct {
	MessageID         string
	Chunks            []Chunk
	CommitmentRoot    Hash
	SourceChunkCount  int
	EncodedChunkCount int
	ChunkSize         int
	PayloadLength     int

	// PayloadRef is the short payload reference (see FormatPayloadRef).
	PayloadRef string

	// Metadata records the encoding parameters as strings, suitable
	// for logging and for attaching to stored records.
	Metadata map[string]string
}

// Encode splits payload into chunks and computes the commitment root.
//
// The first SourceChunkCount chunks are systematic. The following
// SourceChunkCount*(RedundancyFactor-1) chunks are repair chunks. The
// payload is copied, so the caller may reuse its buffer.
func Encode(payload []byte, options Options) (*EncodedMessage, error) {
	options = options.withDefaults()
	if options.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidOptions, options.ChunkSize)
	}
	if options.RedundancyFactor < 1 {
		return nil, fmt.Errorf("%w: redundancy factor %d must be at least 1", ErrInvalidOptions, options.RedundancyFactor)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: payload is empty", ErrInvalidOptions)
	}

	data := make([]byte, len(payload))
	copy(data, payload)

	sourceCount := (len(data) + options.ChunkSize - 1) / options.ChunkSize
	encodedCount := sourceCount * options.RedundancyFactor

	chunks := make([]Chunk, 0, encodedCount)
	for i := 0; i < sourceCount; i++ {
		start := i * options.ChunkSize
		end := min(start+options.ChunkSize, len(data))
		chunks = append(chunks, Chunk{
			Index: i,
			Kind:  Systematic,
			Data:  data[start:end],
			Hash:  HashChunk(data[start:end]),
		})
	}

	for r := 0; r < encodedCount-sourceCount; r++ {
		first, second := repairPair(r, sourceCount)
		parity := xorPadded(chunks[first].Data, chunks[second].Data, options.ChunkSize, first == second)
		chunks = append(chunks, Chunk{
			Index: sourceCount + r,
			Kind:  Repair,
			Data:  parity,
			Hash:  HashChunk(parity),
		})
	}

	hashes := make([]Hash, len(chunks))
	for i := range chunks {
		hashes[i] = chunks[i].Hash
	}
	root := MerkleRoot(hashes)
	payloadRef := FormatPayloadRef(HashPayload(data))

	return &EncodedMessage{
		MessageID:         MessageID(options.Subject, root),
		Chunks:            chunks,
		CommitmentRoot:    root,
		SourceChunkCount:  sourceCount,
		EncodedChunkCount: encodedCount,
		ChunkSize:         options.ChunkSize,
		PayloadLength:     len(data),
		PayloadRef:        payloadRef,
		Metadata: map[string]string{
			"payload_bytes":     strconv.Itoa(len(data)),
			"chunk_size":        strconv.Itoa(options.ChunkSize),
			"redundancy_factor": strconv.Itoa(options.RedundancyFactor),
			"payload_ref":       payloadRef,
		},
	}, nil
}

// SystematicChunks returns the chunks that carry literal payload data.
func (m *EncodedMessage) SystematicChunks() []Chunk {
	return m.Chunks[:m.SourceChunkCount]
}

// VerifyRoot recomputes the commitment root from the chunk data and
// reports whether it matches CommitmentRoot. A false result means a
// chunk was modified after encoding.
func (m *EncodedMessage) VerifyRoot() bool {
	if len(m.Chunks) == 0 {
		return false
	}
	hashes := make([]Hash, len(m.Chunks))
	for i := range m.Chunks {
		hashes[i] = HashChunk(m.Chunks[i].Data)
	}
	return MerkleRoot(hashes) == m.CommitmentRoot
}

// repairPair returns the two systematic chunk indices that repair
// chunk r covers.
func repairPair(r, sourceCount int) (int, int) {
	return r % sourceCount, (r + 1) % sourceCount
}

// xorPadded XORs a and b into a new chunkSize buffer. Shorter inputs are
// treated as zero padded. When same is true the pair degenerates to a
// single chunk (one-chunk payloads) and a padded copy is returned.
func xorPadded(a, b []byte, chunkSize int, same bool) []byte {
	out := make([]byte, chunkSize)
	copy(out, a)
	if same {
		return out
	}
	for i := range b {
		out[i] ^= b[i]
	}
	return out
}
