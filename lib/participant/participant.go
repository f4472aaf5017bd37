// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package participant holds the set of nodes that can receive chunks
// in a broadcast. The [Registry] is owned by one engine instance and
// mutated only through [Registry.Register] and [Registry.SetOnline];
// readers take snapshots so that tree construction never observes a
// half-applied change.
package participant

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInvalidNode is returned (wrapped) when a node has an empty id or
// a non-positive weight.
var ErrInvalidNode = errors.New("invalid node")

// Node is one participant in the broadcast tree.
type Node struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
	Online bool    `json:"online"`

	// Order is the registration order, assigned by the registry. It
	// breaks weight ties when sorting so that trees are deterministic.
	Order int `json:"order"`
}

// Registry is a concurrency-safe node set. The zero value is ready to
// use.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	next  int
}

// Register adds a node, or updates the weight and online flag of an
// existing node without changing its registration order.
func (r *Registry) Register(id string, weight float64, online bool) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if !(weight > 0) {
		return fmt.Errorf("%w: node %q has weight %v, must be positive", ErrInvalidNode, id, weight)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nodes == nil {
		r.nodes = make(map[string]*Node)
	}
	if existing, ok := r.nodes[id]; ok {
		existing.Weight = weight
		existing.Online = online
		return nil
	}
	r.nodes[id] = &Node{ID: id, Weight: weight, Online: online, Order: r.next}
	r.next++
	return nil
}

// SetOnline toggles a node's online flag. Returns false if the node is
// not registered.
func (r *Registry) SetOnline(id string, online bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[id]
	if !ok {
		return false
	}
	node.Online = online
	return true
}

// Get returns a copy of the node with the given id.
func (r *Registry) Get(id string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *node, true
}

// Len returns the number of registered nodes, online or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Snapshot returns copies of every registered node in registration
// order.
func (r *Registry) Snapshot() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, *node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Order < nodes[j].Order })
	return nodes
}

// Online returns copies of the online nodes in registration order.
func (r *Registry) Online() []Node {
	all := r.Snapshot()
	online := all[:0]
	for _, node := range all {
		if node.Online {
			online = append(online, node)
		}
	}
	return online
}

// ByWeight sorts nodes in place by weight descending. Equal weights
// keep registration order.
func ByWeight(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Weight != nodes[j].Weight {
			return nodes[i].Weight > nodes[j].Weight
		}
		return nodes[i].Order < nodes[j].Order
	})
}

// TotalWeight sums the weights of nodes.
func TotalWeight(nodes []Node) float64 {
	var total float64
	for _, node := range nodes {
		total += node.Weight
	}
	return total
}
