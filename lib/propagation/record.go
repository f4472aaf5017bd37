// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propagation

import (
	"time"

	"github.com/bureau-foundation/raptorcast/lib/broadcasttree"
	"github.com/bureau-foundation/raptorcast/lib/encoder"
)

// BroadcastResult is the stored outcome of distributing one encoded
// message.
type BroadcastResult struct {
	MessageID string `json:"message_id"`

	// Success is true when at least one recipient received at least
	// one chunk. Whether enough was delivered is a separate question
	// answered by delivery verification.
	Success bool `json:"success"`

	ChunksGenerated int          `json:"chunks_generated"`
	ChunksSent      int          `json:"chunks_sent"`
	RecipientCount  int          `json:"recipient_count"`
	Timestamp       time.Time    `json:"timestamp"`
	CommitmentRoot  encoder.Hash `json:"commitment_root"`
	SubjectID       string       `json:"subject_id,omitempty"`
	PayloadRef      string       `json:"payload_ref,omitempty"`
}

// Record is the stored outcome of propagating an artifact: the
// broadcast result plus its score and the nodes that took part.
type Record struct {
	BroadcastResult

	Subject           Artifact `json:"subject"`
	PropagationSpeed  float64  `json:"propagation_speed"`
	ReplicationFactor float64  `json:"replication_factor"`
	EvolutionFactor   *float64 `json:"evolution_factor,omitempty"`

	// ReceivingNodes lists every non-originator node in breadth-first
	// order.
	ReceivingNodes []string `json:"receiving_nodes"`

	// PropagationPath is the originator followed by the first child at
	// each level down to a leaf.
	PropagationPath []string `json:"propagation_path"`
}

// Score returns the score fields of the record.
func (r *Record) Score() Score {
	return Score{
		PropagationSpeed:  r.PropagationSpeed,
		ReplicationFactor: r.ReplicationFactor,
		EvolutionFactor:   r.EvolutionFactor,
	}
}

// NewRecord assembles a record from a broadcast result, its tree and
// its score.
func NewRecord(result BroadcastResult, subject Artifact, tree *broadcasttree.Tree, score Score) *Record {
	return &Record{
		BroadcastResult:   result,
		Subject:           subject,
		PropagationSpeed:  score.PropagationSpeed,
		ReplicationFactor: score.ReplicationFactor,
		EvolutionFactor:   score.EvolutionFactor,
		ReceivingNodes:    ReceivingNodes(tree),
		PropagationPath:   tree.Path(),
	}
}

// ReceivingNodes returns the ids of every node except the originator,
// breadth-first.
func ReceivingNodes(tree *broadcasttree.Tree) []string {
	nodes := make([]string, 0, max(tree.Len()-1, 0))
	tree.Walk(func(index int, node *broadcasttree.Node) bool {
		if index != 0 {
			nodes = append(nodes, node.ID)
		}
		return true
	})
	return nodes
}
