// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery decides whether a broadcast reached enough of its
// tree. The confirmation rate compares the chunks actually sent with
// the chunks that would have been sent had every tree node, the
// originator included, received the full encoded message.
package delivery

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMinConfirmations is the confirmation rate at or above which a
// delivery counts as successful.
const DefaultMinConfirmations = 0.67

// ErrInvalidThreshold is returned (wrapped) by [NewVerifier] for a
// threshold outside [0, 1].
var ErrInvalidThreshold = errors.New("invalid confirmation threshold")

// Verification is the outcome of checking one broadcast.
type Verification struct {
	MessageID        string    `json:"message_id"`
	Success          bool      `json:"success"`
	ConfirmationRate float64   `json:"confirmation_rate"`
	Timestamp        time.Time `json:"timestamp"`
}

// Counts are the stored facts about a broadcast that verification
// reads.
type Counts struct {
	ChunksGenerated int
	ChunksSent      int

	// TreeSize is the number of nodes in the broadcast tree, the
	// originator included.
	TreeSize int
}

// ConfirmationRate returns ChunksSent / (ChunksGenerated * TreeSize),
// clamped to [0, 1]. A zero denominator yields 0.
func (c Counts) ConfirmationRate() float64 {
	denominator := float64(c.ChunksGenerated) * float64(c.TreeSize)
	if denominator <= 0 || c.ChunksSent <= 0 {
		return 0
	}
	return min(1, float64(c.ChunksSent)/denominator)
}

// Verifier applies a confirmation threshold.
type Verifier struct {
	minConfirmations float64
}

// NewVerifier returns a verifier with the given threshold. Zero selects
// DefaultMinConfirmations.
func NewVerifier(minConfirmations float64) (*Verifier, error) {
	if minConfirmations == 0 {
		minConfirmations = DefaultMinConfirmations
	}
	if !(minConfirmations > 0 && minConfirmations <= 1) {
		return nil, fmt.Errorf("%w: %v must be in (0, 1]", ErrInvalidThreshold, minConfirmations)
	}
	return &Verifier{minConfirmations: minConfirmations}, nil
}

// MinConfirmations returns the verifier's threshold.
func (v *Verifier) MinConfirmations() float64 {
	return v.minConfirmations
}

// Verify computes the confirmation rate for counts and compares it with
// the threshold. It has no side effects.
func (v *Verifier) Verify(messageID string, counts Counts, now time.Time) Verification {
	rate := counts.ConfirmationRate()
	return Verification{
		MessageID:        messageID,
		Success:          rate >= v.minConfirmations,
		ConfirmationRate: rate,
		Timestamp:        now,
	}
}
