// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propagation

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/zeebo/blake3"
)

// Scoring defaults.
const (
	DefaultEvolutionThreshold = 0.8

	DefaultSpeedMin  = 100.0
	DefaultSpeedSpan = 500.0

	DefaultEvolutionMin  = 0.1
	DefaultEvolutionSpan = 0.2
)

// ErrInvalidScorer is returned (wrapped) by [Scorer.Validate].
var ErrInvalidScorer = errors.New("invalid scorer configuration")

// RandomSource supplies values in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// NewRandomSource returns a PCG source whose stream is fixed by seed
// and messageID, so the same engine seed scores a given message the
// same way every time.
func NewRandomSource(seed uint64, messageID string) *rand.Rand {
	digest := blake3.Sum256([]byte(messageID))
	return rand.New(rand.NewPCG(seed, binary.LittleEndian.Uint64(digest[:8])))
}

// Score is the propagation quality derived from a broadcast result.
type Score struct {
	PropagationSpeed  float64  `json:"propagation_speed"`
	ReplicationFactor float64  `json:"replication_factor"`
	EvolutionFactor   *float64 `json:"evolution_factor,omitempty"`
}

// Scorer derives scores. The zero value uses the defaults.
type Scorer struct {
	// EvolutionThreshold is the replication factor that must be
	// strictly exceeded for an evolution factor to be drawn.
	EvolutionThreshold float64 `json:"evolution_threshold" yaml:"evolution_threshold"`

	SpeedMin      float64 `json:"speed_min" yaml:"speed_min"`
	SpeedSpan     float64 `json:"speed_span" yaml:"speed_span"`
	EvolutionMin  float64 `json:"evolution_min" yaml:"evolution_min"`
	EvolutionSpan float64 `json:"evolution_span" yaml:"evolution_span"`
}

func (s Scorer) withDefaults() Scorer {
	if s.EvolutionThreshold == 0 {
		s.EvolutionThreshold = DefaultEvolutionThreshold
	}
	if s.SpeedMin == 0 && s.SpeedSpan == 0 {
		s.SpeedMin, s.SpeedSpan = DefaultSpeedMin, DefaultSpeedSpan
	}
	if s.EvolutionMin == 0 && s.EvolutionSpan == 0 {
		s.EvolutionMin, s.EvolutionSpan = DefaultEvolutionMin, DefaultEvolutionSpan
	}
	return s
}

// Validate rejects thresholds outside [0, 1] and negative ranges.
func (s Scorer) Validate() error {
	s = s.withDefaults()
	if !(s.EvolutionThreshold >= 0 && s.EvolutionThreshold <= 1) {
		return fmt.Errorf("%w: evolution threshold %v", ErrInvalidScorer, s.EvolutionThreshold)
	}
	if s.SpeedMin < 0 || s.SpeedSpan < 0 || s.EvolutionMin < 0 || s.EvolutionSpan < 0 {
		return fmt.Errorf("%w: negative speed or evolution range", ErrInvalidScorer)
	}
	return nil
}

// Score computes replicationFactor = min(1, sent/generated), draws the
// propagation speed, and draws an evolution factor only when the
// replication factor exceeds the threshold. Draw order is fixed (speed
// first) so results are reproducible for a given source.
func (s Scorer) Score(chunksGenerated, chunksSent int, random RandomSource) Score {
	s = s.withDefaults()

	var replication float64
	if chunksGenerated > 0 && chunksSent > 0 {
		replication = min(1, float64(chunksSent)/float64(chunksGenerated))
	}

	score := Score{
		PropagationSpeed:  s.SpeedMin + random.Float64()*s.SpeedSpan,
		ReplicationFactor: replication,
	}
	if replication > s.EvolutionThreshold {
		factor := s.EvolutionMin + random.Float64()*s.EvolutionSpan
		score.EvolutionFactor = &factor
	}
	return score
}
