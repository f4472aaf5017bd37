// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package distribution estimates how many chunks a broadcast tree
// delivers. It does not move data: each hop is modelled as a
// memoryless loss stage whose success count is
// floor(rangeSize * p), with one probability per tree level.
package distribution

import (
	"errors"
	"fmt"
	"math"

	"github.com/bureau-foundation/raptorcast/lib/broadcasttree"
)

// Default per-hop delivery probabilities.
const (
	DefaultLevelOne = 0.9
	DefaultLevelTwo = 0.8
)

// ErrInvalidProbability is returned (wrapped) for a probability outside
// [0, 1].
var ErrInvalidProbability = errors.New("invalid delivery probability")

// Probabilities are the per-hop success probabilities by tree level.
type Probabilities struct {
	LevelOne float64 `json:"level_one" yaml:"level_one"`
	LevelTwo float64 `json:"level_two" yaml:"level_two"`
}

// DefaultProbabilities returns the 0.9/0.8 defaults.
func DefaultProbabilities() Probabilities {
	return Probabilities{LevelOne: DefaultLevelOne, LevelTwo: DefaultLevelTwo}
}

// Validate checks that both probabilities lie in [0, 1].
func (p Probabilities) Validate() error {
	for _, value := range []struct {
		name string
		p    float64
	}{{"level_one", p.LevelOne}, {"level_two", p.LevelTwo}} {
		if !(value.p >= 0 && value.p <= 1) {
			return fmt.Errorf("%w: %s = %v, must be in [0, 1]", ErrInvalidProbability, value.name, value.p)
		}
	}
	return nil
}

// Delivery is the simulated outcome for one tree node.
type Delivery struct {
	NodeID    string `json:"node_id"`
	Level     int    `json:"level"`
	RangeSize int    `json:"range_size"`
	Delivered int    `json:"delivered"`
}

// Result is the simulated outcome for a whole tree.
type Result struct {
	// ChunksSent is the sum of Delivered over every non-root node.
	ChunksSent int `json:"chunks_sent"`

	// Deliveries lists every non-root node in breadth-first order.
	Deliveries []Delivery `json:"deliveries"`
}

// Simulate applies the per-level probabilities to every node of the
// tree. Level-2 nodes use their own range size; their count does not
// depend on what the level-1 parent received. A childless tree sends
// nothing.
func Simulate(tree *broadcasttree.Tree, probabilities Probabilities) (Result, error) {
	if err := probabilities.Validate(); err != nil {
		return Result{}, err
	}

	var result Result
	tree.Walk(func(_ int, node *broadcasttree.Node) bool {
		var p float64
		switch node.Level {
		case 0:
			return true
		case 1:
			p = probabilities.LevelOne
		default:
			p = probabilities.LevelTwo
		}
		delivered := Successes(node.Len(), p)
		result.ChunksSent += delivered
		result.Deliveries = append(result.Deliveries, Delivery{
			NodeID:    node.ID,
			Level:     node.Level,
			RangeSize: node.Len(),
			Delivered: delivered,
		})
		return true
	})
	return result, nil
}

// Successes returns floor(rangeSize * p). The float product is floored
// as is, so Successes(100, 0.29) is 28.
func Successes(rangeSize int, p float64) int {
	if rangeSize <= 0 {
		return 0
	}
	return int(math.Floor(float64(rangeSize) * p))
}
