// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestConfirmationRate(t *testing.T) {
	tests := []struct {
		name   string
		counts Counts
		want   float64
	}{
		{"fixture", Counts{ChunksGenerated: 45, ChunksSent: 63, TreeSize: 21}, 63.0 / 945.0},
		{"nothing sent", Counts{ChunksGenerated: 45, ChunksSent: 0, TreeSize: 21}, 0},
		{"originator only", Counts{ChunksGenerated: 10, ChunksSent: 0, TreeSize: 1}, 0},
		{"empty tree", Counts{ChunksGenerated: 10, ChunksSent: 5, TreeSize: 0}, 0},
		{"clamped", Counts{ChunksGenerated: 2, ChunksSent: 50, TreeSize: 2}, 1},
		{"exactly full", Counts{ChunksGenerated: 4, ChunksSent: 12, TreeSize: 3}, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := test.counts.ConfirmationRate()
			if math.Abs(got-test.want) > 1e-12 {
				t.Errorf("ConfirmationRate = %v, want %v", got, test.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("ConfirmationRate %v outside [0, 1]", got)
			}
		})
	}
}

func TestVerifyThreshold(t *testing.T) {
	verifier, err := NewVerifier(0)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if verifier.MinConfirmations() != DefaultMinConfirmations {
		t.Fatalf("MinConfirmations = %v, want default", verifier.MinConfirmations())
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fixture := verifier.Verify("msg-a", Counts{ChunksGenerated: 45, ChunksSent: 63, TreeSize: 21}, now)
	if fixture.Success {
		t.Errorf("fixture verification succeeded with rate %v", fixture.ConfirmationRate)
	}
	if fixture.MessageID != "msg-a" || !fixture.Timestamp.Equal(now) {
		t.Errorf("verification = %+v", fixture)
	}

	// 67 of 100 is exactly the threshold.
	boundary := verifier.Verify("msg-b", Counts{ChunksGenerated: 100, ChunksSent: 67, TreeSize: 1}, now)
	if !boundary.Success {
		t.Errorf("rate %v at the threshold did not succeed", boundary.ConfirmationRate)
	}
	below := verifier.Verify("msg-c", Counts{ChunksGenerated: 100, ChunksSent: 66, TreeSize: 1}, now)
	if below.Success {
		t.Errorf("rate %v below the threshold succeeded", below.ConfirmationRate)
	}
}

func TestNewVerifierRejectsBadThreshold(t *testing.T) {
	for _, threshold := range []float64{-0.1, 1.5, math.NaN()} {
		if _, err := NewVerifier(threshold); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("NewVerifier(%v) error = %v, want ErrInvalidThreshold", threshold, err)
		}
	}
}
