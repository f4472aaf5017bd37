// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package encoder

import (
	"bytes"
	"errors"
	"testing"
)

// without returns the message's chunks minus the given indices.
func without(message *EncodedMessage, drop ...int) []Chunk {
	dropped := make(map[int]bool, len(drop))
	for _, index := range drop {
		dropped[index] = true
	}
	var kept []Chunk
	for _, chunk := range message.Chunks {
		if !dropped[chunk.Index] {
			kept = append(kept, chunk)
		}
	}
	return kept
}

func TestReconstructFromSystematicChunksOnly(t *testing.T) {
	payload := testPayload(950)
	message, err := Encode(payload, Options{RedundancyFactor: 3, ChunkSize: 100})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	rebuilt, err := Reconstruct(message.SystematicChunks(), message.Layout())
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(rebuilt, payload) {
		t.Fatal("reconstructed payload differs")
	}
}

func TestReconstructRecoversMissingChunks(t *testing.T) {
	payload := testPayload(950)
	message, err := Encode(payload, Options{RedundancyFactor: 2, ChunkSize: 100})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Chunks 3 and 9 (the short last chunk) are lost. Repair chunk
	// 10+2 covers (2,3) and repair 10+9 covers (9,0).
	rebuilt, err := Reconstruct(without(message, 3, 9), message.Layout())
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(rebuilt, payload) {
		t.Fatal("reconstructed payload differs")
	}
}

func TestReconstructSingleChunkPayload(t *testing.T) {
	payload := []byte("tiny")
	message, err := Encode(payload, Options{RedundancyFactor: 2, ChunkSize: 16})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	rebuilt, err := Reconstruct(without(message, 0), message.Layout())
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(rebuilt, payload) {
		t.Fatalf("rebuilt %q, want %q", rebuilt, payload)
	}
}

func TestReconstructIgnoresCorruptChunks(t *testing.T) {
	message, err := Encode(testPayload(300), Options{RedundancyFactor: 1, ChunkSize: 100})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	chunks := message.SystematicChunks()
	corrupted := make([]Chunk, len(chunks))
	copy(corrupted, chunks)
	corrupted[1].Data = append([]byte(nil), corrupted[1].Data...)
	corrupted[1].Data[0] ^= 0x80

	_, err = Reconstruct(corrupted, message.Layout())
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Reconstruct error = %v, want ErrIncomplete", err)
	}
}

func TestReconstructRejectsBadLayout(t *testing.T) {
	_, err := Reconstruct(nil, Layout{})
	if !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("Reconstruct error = %v, want ErrInvalidOptions", err)
	}
}
