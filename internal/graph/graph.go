// Package graph tracks producer → consumer edges between stored keys.
//
// An edge P → C means the reaction at C read P during its last evaluation,
// so a change at P must recompute C. Each producer keeps its consumers in
// first-insertion order; propagation walks them in that order. A reverse
// index (consumer → producers) makes key removal proportional to the number
// of edges touching the key.
package graph

import (
	"slices"

	"github.com/roach88/rxstore/internal/ir"
)

// Edge is one producer → consumer dependency.
type Edge struct {
	Producer ir.Key `json:"producer"`
	Consumer ir.Key `json:"consumer"`
}

type consumerSet struct {
	order  []ir.Key
	member map[ir.Key]struct{}
}

// Graph is the dependency graph. The zero value is not usable; use New.
type Graph struct {
	out map[ir.Key]*consumerSet
	in  map[ir.Key]map[ir.Key]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		out: make(map[ir.Key]*consumerSet),
		in:  make(map[ir.Key]map[ir.Key]struct{}),
	}
}

// AddEdge records producer → consumer. Adding an existing edge is a no-op
// and keeps its original position. Returns true if the edge is new.
func (g *Graph) AddEdge(producer, consumer ir.Key) bool {
	cs := g.out[producer]
	if cs == nil {
		cs = &consumerSet{member: make(map[ir.Key]struct{})}
		g.out[producer] = cs
	}
	if _, ok := cs.member[consumer]; ok {
		return false
	}
	cs.member[consumer] = struct{}{}
	cs.order = append(cs.order, consumer)

	producers := g.in[consumer]
	if producers == nil {
		producers = make(map[ir.Key]struct{})
		g.in[consumer] = producers
	}
	producers[producer] = struct{}{}
	return true
}

// RemoveEdge deletes producer → consumer. Returns false if absent.
func (g *Graph) RemoveEdge(producer, consumer ir.Key) bool {
	cs := g.out[producer]
	if cs == nil {
		return false
	}
	if _, ok := cs.member[consumer]; !ok {
		return false
	}
	delete(cs.member, consumer)
	cs.order = slices.DeleteFunc(cs.order, func(k ir.Key) bool { return k == consumer })
	if len(cs.order) == 0 {
		delete(g.out, producer)
	}

	if producers := g.in[consumer]; producers != nil {
		delete(producers, producer)
		if len(producers) == 0 {
			delete(g.in, consumer)
		}
	}
	return true
}

// HasEdge reports whether producer → consumer exists.
func (g *Graph) HasEdge(producer, consumer ir.Key) bool {
	cs := g.out[producer]
	if cs == nil {
		return false
	}
	_, ok := cs.member[consumer]
	return ok
}

// Dependents returns the consumers of producer in insertion order.
// The returned slice is a copy; mutating the graph while iterating it is safe.
func (g *Graph) Dependents(producer ir.Key) []ir.Key {
	cs := g.out[producer]
	if cs == nil {
		return nil
	}
	return slices.Clone(cs.order)
}

// Producers returns the keys consumer depends on, in key order.
func (g *Graph) Producers(consumer ir.Key) []ir.Key {
	producers := g.in[consumer]
	if len(producers) == 0 {
		return nil
	}
	keys := make([]ir.Key, 0, len(producers))
	for k := range producers {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, ir.CompareKeys)
	return keys
}

// RemoveNode deletes every edge that touches key, in either direction.
// Returns the number of edges removed.
func (g *Graph) RemoveNode(key ir.Key) int {
	removed := 0
	for _, consumer := range g.Dependents(key) {
		if g.RemoveEdge(key, consumer) {
			removed++
		}
	}
	for _, producer := range g.Producers(key) {
		if g.RemoveEdge(producer, key) {
			removed++
		}
	}
	return removed
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, cs := range g.out {
		n += len(cs.order)
	}
	return n
}

// Edges returns every edge ordered by producer key, then by consumer
// insertion order.
func (g *Graph) Edges() []Edge {
	producers := make([]ir.Key, 0, len(g.out))
	for p := range g.out {
		producers = append(producers, p)
	}
	slices.SortFunc(producers, ir.CompareKeys)

	edges := make([]Edge, 0, g.EdgeCount())
	for _, p := range producers {
		for _, c := range g.out[p].order {
			edges = append(edges, Edge{Producer: p, Consumer: c})
		}
	}
	return edges
}
