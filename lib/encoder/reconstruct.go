// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package encoder

import (
	"errors"
	"fmt"
)

// ErrIncomplete is returned by [Reconstruct] when the received chunks
// do not cover every systematic chunk, even after repair.
var ErrIncomplete = errors.New("not enough chunks to reconstruct payload")

// Layout is the shape of an encoded payload: everything a receiver
// needs besides the chunks themselves.
type Layout struct {
	SourceChunkCount int `json:"source_chunk_count"`
	ChunkSize        int `json:"chunk_size"`
	PayloadLength    int `json:"payload_length"`
}

// Layout returns the message's layout.
func (m *EncodedMessage) Layout() Layout {
	return Layout{
		SourceChunkCount: m.SourceChunkCount,
		ChunkSize:        m.ChunkSize,
		PayloadLength:    m.PayloadLength,
	}
}

// chunkLength returns the byte length of systematic chunk i. Every
// chunk is full size except possibly the last.
func (l Layout) chunkLength(i int) int {
	if i == l.SourceChunkCount-1 {
		return l.PayloadLength - (l.SourceChunkCount-1)*l.ChunkSize
	}
	return l.ChunkSize
}

// Reconstruct rebuilds the payload from received chunks. Chunks whose
// data does not match their hash are ignored. Systematic chunks are
// used directly; a missing systematic chunk is recovered from a repair
// chunk whose partner is present. Recovery repeats until no further
// progress is possible, so a chain of repairs can fill several gaps.
func Reconstruct(chunks []Chunk, layout Layout) ([]byte, error) {
	if layout.SourceChunkCount <= 0 || layout.ChunkSize <= 0 || layout.PayloadLength <= 0 {
		return nil, fmt.Errorf("%w: layout %+v", ErrInvalidOptions, layout)
	}

	source := make([][]byte, layout.SourceChunkCount)
	var repairs []Chunk
	for _, chunk := range chunks {
		if HashChunk(chunk.Data) != chunk.Hash {
			continue
		}
		if chunk.Index < layout.SourceChunkCount {
			if len(chunk.Data) == layout.chunkLength(chunk.Index) {
				source[chunk.Index] = chunk.Data
			}
			continue
		}
		if len(chunk.Data) == layout.ChunkSize {
			repairs = append(repairs, chunk)
		}
	}

	for progress := true; progress; {
		progress = false
		for _, repair := range repairs {
			first, second := repairPair(repair.Index-layout.SourceChunkCount, layout.SourceChunkCount)
			switch {
			case first == second && source[first] == nil:
				source[first] = recoverChunk(repair.Data, nil, layout.chunkLength(first))
				progress = true
			case source[first] != nil && source[second] == nil:
				source[second] = recoverChunk(repair.Data, source[first], layout.chunkLength(second))
				progress = true
			case source[second] != nil && source[first] == nil:
				source[first] = recoverChunk(repair.Data, source[second], layout.chunkLength(first))
				progress = true
			}
		}
	}

	var missing []int
	for i, data := range source {
		if data == nil {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing systematic chunks %v", ErrIncomplete, missing)
	}

	payload := make([]byte, 0, layout.PayloadLength)
	for _, data := range source {
		payload = append(payload, data...)
	}
	return payload, nil
}

// recoverChunk XORs the repair data with the known partner and returns
// the first length bytes.
func recoverChunk(repair, partner []byte, length int) []byte {
	out := make([]byte, length)
	copy(out, repair[:length])
	for i := 0; i < length && i < len(partner); i++ {
		out[i] ^= partner[i]
	}
	return out
}
