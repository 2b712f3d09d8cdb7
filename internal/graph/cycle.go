package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rxstore/internal/ir"
)

// CycleWarning reports a strongly connected component of the graph.
//
// A cycle means a change at any member would recompute the others forever.
// The runtime only catches this at propagation time when cycle detection
// is enabled; AnalyzeCycles finds it ahead of time.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "error"
}

// Labeler names a key in warnings. Nil means ir.Key.String.
type Labeler func(ir.Key) string

// AnalyzeCycles runs Tarjan's algorithm over the graph and returns one
// warning per cycle: every SCC with more than one member, plus self-loops.
//
// Nodes are visited in key order so output is stable across runs.
// An acyclic graph returns an empty slice.
func (g *Graph) AnalyzeCycles(label Labeler) []CycleWarning {
	if label == nil {
		label = ir.Key.String
	}
	adj := g.adjacency(label)
	return analyzeAdjacency(adj)
}

// AnalyzeAdjacency runs the same analysis over a graph given by name, for
// callers that have not built a Graph yet.
func AnalyzeAdjacency(adj map[string][]string) []CycleWarning {
	return analyzeAdjacency(adj)
}

func analyzeAdjacency(adj map[string][]string) []CycleWarning {
	warnings := []CycleWarning{}
	if len(adj) == 0 {
		return warnings
	}

	for _, scc := range tarjanSCC(adj) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], adj)) {
			warnings = append(warnings, sccToWarning(scc, adj))
		}
	}
	return warnings
}

func (g *Graph) adjacency(label Labeler) map[string][]string {
	adj := make(map[string][]string)
	for _, e := range g.Edges() {
		p, c := label(e.Producer), label(e.Consumer)
		adj[p] = append(adj[p], c)
		if _, ok := adj[c]; !ok {
			adj[c] = []string{}
		}
	}
	return adj
}

func hasSelfLoop(node string, adj map[string][]string) bool {
	return slices.Contains(adj[node], node)
}

// tarjanSCC returns the strongly connected components of adj.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(adj map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)

	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

func sccToWarning(scc []string, adj map[string][]string) CycleWarning {
	if len(scc) == 1 {
		n := scc[0]
		return CycleWarning{
			Path:    []string{n, n},
			Message: fmt.Sprintf("Self-dependent reaction detected: %s → %s", n, n),
			Level:   "warning",
		}
	}

	path := cyclePath(scc, adj)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Dependency cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// cyclePath walks edges inside the SCC from its first member until it
// returns to the start.
func cyclePath(scc []string, adj map[string][]string) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, w := range adj[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
