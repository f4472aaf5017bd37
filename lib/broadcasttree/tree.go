// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broadcasttree

import (
	"errors"
	"fmt"
	"math"

	"github.com/bureau-foundation/raptorcast/lib/participant"
)

// DefaultFanout is the maximum number of level-1 children.
const DefaultFanout = 5

// OriginatorID is the id of the root node of every tree.
const OriginatorID = "originator"

// NoParent is the Parent index of the root.
const NoParent = -1

// ErrInvalidInput is returned (wrapped) for a non-positive chunk count,
// a non-positive fanout, or online nodes whose weights are not all
// positive.
var ErrInvalidInput = errors.New("invalid broadcast tree input")

// Node is one entry of the tree arena. Start and End are inclusive
// chunk indices; an empty range has End == Start-1.
type Node struct {
	ID       string  `json:"id"`
	Weight   float64 `json:"weight"`
	Start    int     `json:"start"`
	End      int     `json:"end"`
	Level    int     `json:"level"`
	Parent   int     `json:"parent"`
	Children []int   `json:"children,omitempty"`
}

// Len returns the number of chunks in the node's range.
func (n *Node) Len() int {
	return n.End - n.Start + 1
}

// Tree is an immutable broadcast tree stored as an arena. Nodes[0] is
// the originator; parent and child links are indices into Nodes.
type Tree struct {
	MessageID  string `json:"message_id"`
	ChunkCount int    `json:"chunk_count"`
	Nodes      []Node `json:"nodes"`
}

// Builder builds trees with a configurable level-1 fanout. The zero
// value uses DefaultFanout.
type Builder struct {
	Fanout int
}

// Build builds a tree with the default fanout.
func Build(messageID string, chunkCount int, nodes []participant.Node) (*Tree, error) {
	return Builder{}.Build(messageID, chunkCount, nodes)
}

// Build assigns chunk ranges of [0, chunkCount) to the online nodes.
//
// Online nodes are ordered by weight descending, ties in registration
// order. The first Fanout become level-1 children of the originator.
// Each gets floor(weight/totalWeight*chunkCount) chunks, where
// totalWeight is the summed weight of every online node, and the
// rounding remainder goes to the last level-1 node. The remaining
// nodes become level-2 children, dealt round-robin to the level-1
// parents in weight order. Each parent's range is split evenly among
// its children with the remainder on the last child.
//
// With no online nodes the result is a childless originator.
func (b Builder) Build(messageID string, chunkCount int, nodes []participant.Node) (*Tree, error) {
	fanout := b.Fanout
	if fanout == 0 {
		fanout = DefaultFanout
	}
	if fanout < 0 {
		return nil, fmt.Errorf("%w: fanout %d", ErrInvalidInput, fanout)
	}
	if chunkCount <= 0 {
		return nil, fmt.Errorf("%w: chunk count %d must be positive", ErrInvalidInput, chunkCount)
	}

	online := make([]participant.Node, 0, len(nodes))
	for _, node := range nodes {
		if !node.Online {
			continue
		}
		if !(node.Weight > 0) {
			return nil, fmt.Errorf("%w: node %q has weight %v", ErrInvalidInput, node.ID, node.Weight)
		}
		online = append(online, node)
	}
	participant.ByWeight(online)

	tree := &Tree{
		MessageID:  messageID,
		ChunkCount: chunkCount,
		Nodes: []Node{{
			ID:     OriginatorID,
			Start:  0,
			End:    chunkCount - 1,
			Level:  0,
			Parent: NoParent,
		}},
	}
	if len(online) == 0 {
		return tree, nil
	}

	levelOne := online[:min(fanout, len(online))]
	levelTwo := online[len(levelOne):]

	totalWeight := participant.TotalWeight(online)
	if math.IsInf(totalWeight, 0) {
		return nil, fmt.Errorf("%w: total weight %v", ErrInvalidInput, totalWeight)
	}

	// Plain floor of the float product: 29/100*100 gives 28 chunks.
	cursor := 0
	for i, node := range levelOne {
		size := int(math.Floor(node.Weight / totalWeight * float64(chunkCount)))
		size = min(size, chunkCount-cursor)
		if i == len(levelOne)-1 {
			size = chunkCount - cursor
		}
		tree.add(0, node, cursor, size, 1)
		cursor += size
	}

	// Deal level-2 nodes round-robin. Level-1 nodes occupy arena
	// indices 1..len(levelOne).
	assigned := make([][]participant.Node, len(levelOne))
	for i, node := range levelTwo {
		assigned[i%len(levelOne)] = append(assigned[i%len(levelOne)], node)
	}
	for i, children := range assigned {
		if len(children) == 0 {
			continue
		}
		parentIndex := i + 1
		parent := tree.Nodes[parentIndex]
		base := parent.Len() / len(children)
		start := parent.Start
		for j, child := range children {
			size := base
			if j == len(children)-1 {
				size = parent.End - start + 1
			}
			tree.add(parentIndex, child, start, size, 2)
			start += size
		}
	}

	return tree, nil
}

// add appends a node covering [start, start+size) to the arena and
// links it to parent.
func (t *Tree) add(parent int, node participant.Node, start, size, level int) {
	index := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		ID:     node.ID,
		Weight: node.Weight,
		Start:  start,
		End:    start + size - 1,
		Level:  level,
		Parent: parent,
	})
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, index)
}

// Root returns the originator.
func (t *Tree) Root() *Node {
	return &t.Nodes[0]
}

// Len returns the number of nodes in the tree, originator included.
func (t *Tree) Len() int {
	return len(t.Nodes)
}

// Walk visits nodes breadth-first starting at the originator, children
// in assignment order. It stops early when visit returns false.
func (t *Tree) Walk(visit func(index int, node *Node) bool) {
	if len(t.Nodes) == 0 {
		return
	}
	queue := []int{0}
	for len(queue) > 0 {
		index := queue[0]
		queue = queue[1:]
		if !visit(index, &t.Nodes[index]) {
			return
		}
		queue = append(queue, t.Nodes[index].Children...)
	}
}

// Path returns the node ids from the originator to a leaf, always
// following the first child.
func (t *Tree) Path() []string {
	if len(t.Nodes) == 0 {
		return nil
	}
	path := []string{t.Nodes[0].ID}
	for index := 0; len(t.Nodes[index].Children) > 0; {
		index = t.Nodes[index].Children[0]
		path = append(path, t.Nodes[index].ID)
	}
	return path
}

// Level returns the nodes at the given depth in breadth-first order.
func (t *Tree) Level(level int) []*Node {
	var nodes []*Node
	t.Walk(func(_ int, node *Node) bool {
		if node.Level == level {
			nodes = append(nodes, node)
		}
		return true
	})
	return nodes
}

// Find returns the node with the given id.
func (t *Tree) Find(id string) (*Node, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].ID == id {
			return &t.Nodes[i], true
		}
	}
	return nil, false
}

// Validate checks the arena links and that every node's children
// partition its range exactly, in order, with no gap or overlap.
func (t *Tree) Validate() error {
	if len(t.Nodes) == 0 {
		return errors.New("tree has no originator")
	}
	root := t.Nodes[0]
	if root.Parent != NoParent || root.Level != 0 {
		return fmt.Errorf("originator has parent %d level %d", root.Parent, root.Level)
	}
	if root.Start != 0 || root.End != t.ChunkCount-1 {
		return fmt.Errorf("originator range [%d, %d], want [0, %d]", root.Start, root.End, t.ChunkCount-1)
	}

	for index, node := range t.Nodes {
		if node.Len() < 0 {
			return fmt.Errorf("node %q has range [%d, %d]", node.ID, node.Start, node.End)
		}
		if len(node.Children) == 0 {
			continue
		}
		next := node.Start
		for _, childIndex := range node.Children {
			if childIndex <= 0 || childIndex >= len(t.Nodes) {
				return fmt.Errorf("node %q links to child index %d", node.ID, childIndex)
			}
			child := t.Nodes[childIndex]
			if child.Parent != index {
				return fmt.Errorf("node %q lists %q as child but its parent is %d", node.ID, child.ID, child.Parent)
			}
			if child.Level != node.Level+1 {
				return fmt.Errorf("node %q at level %d under level %d", child.ID, child.Level, node.Level)
			}
			if child.Start != next {
				return fmt.Errorf("node %q starts at %d, want %d", child.ID, child.Start, next)
			}
			next = child.End + 1
		}
		if next != node.End+1 {
			return fmt.Errorf("children of %q end at %d, want %d", node.ID, next-1, node.End)
		}
	}
	return nil
}
