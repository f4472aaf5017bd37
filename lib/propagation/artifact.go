// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propagation

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// MaxQuality is the upper bound of Artifact.Quality.
const MaxQuality = 100

// ErrInvalidArtifact is returned (wrapped) by [Artifact.Validate].
var ErrInvalidArtifact = errors.New("invalid artifact")

// Attribute keys set on evolved artifacts.
const (
	AttributePropagationSpeed  = "propagation_speed"
	AttributeReplicationFactor = "replication_factor"
	AttributeEvolutionFactor   = "evolution_factor"
	AttributeSourceMessage     = "source_message_id"
)

// Artifact is the subject of a propagation: a record with a quality
// rating that a well-propagated broadcast can raise.
type Artifact struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Quality    int               `json:"quality"`
	Generation int               `json:"generation"`
	ParentID   string            `json:"parent_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Validate checks the id and the quality bounds.
func (a Artifact) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidArtifact)
	}
	if a.Quality < 0 || a.Quality > MaxQuality {
		return fmt.Errorf("%w: %s has quality %d, must be in [0, %d]", ErrInvalidArtifact, a.ID, a.Quality, MaxQuality)
	}
	return nil
}

// EvolvedQuality returns min(100, q + floor(q*factor)).
func EvolvedQuality(quality int, factor float64) int {
	increase := int(math.Floor(float64(quality) * factor))
	return min(MaxQuality, quality+increase)
}

// Evolve derives a new artifact from original using the score of the
// broadcast identified by messageID. It returns nil when the score
// has no evolution factor. The derived artifact references the
// original as its parent, advances the generation, and records the
// score as attributes. The derived id is a function of the original id
// and the message id, so evolving twice yields the same artifact.
func Evolve(original Artifact, score Score, messageID string) *Artifact {
	if score.EvolutionFactor == nil {
		return nil
	}
	factor := *score.EvolutionFactor

	attributes := make(map[string]string, len(original.Attributes)+4)
	maps.Copy(attributes, original.Attributes)
	attributes[AttributePropagationSpeed] = strconv.FormatFloat(score.PropagationSpeed, 'f', 2, 64)
	attributes[AttributeReplicationFactor] = strconv.FormatFloat(score.ReplicationFactor, 'f', 4, 64)
	attributes[AttributeEvolutionFactor] = strconv.FormatFloat(factor, 'f', 4, 64)
	attributes[AttributeSourceMessage] = messageID

	return &Artifact{
		ID:         EvolvedID(original.ID, messageID),
		Name:       original.Name,
		Quality:    EvolvedQuality(original.Quality, factor),
		Generation: original.Generation + 1,
		ParentID:   original.ID,
		Attributes: attributes,
	}
}

// EvolvedID returns the id of the artifact derived from originalID by
// the broadcast messageID.
func EvolvedID(originalID, messageID string) string {
	short := strings.TrimPrefix(messageID, "msg-")
	if len(short) > 8 {
		short = short[:8]
	}
	return originalID + "-evolved-" + short
}
