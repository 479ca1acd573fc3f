// Package depgraph builds the dependency DAG over plugin manifests and
// resolves it into a load order, detecting cycles by witnessing chain.
package depgraph

import (
	"sort"

	"github.com/sssolid/qorzen-sub001/pkg/plugin"
)

// Graph is a mapping from node name to node plus directed edges
// (dependent -> dependency).
type Graph struct {
	nodes map[string]*plugin.DependencyNode
	edges map[string][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*plugin.DependencyNode),
		edges: make(map[string][]string),
	}
}

// AddNode inserts or replaces a node. Safe to call again for the same name
// (re-resolution of an already-seeded node is a no-op in practice since
// callers check Get first).
func (g *Graph) AddNode(n *plugin.DependencyNode) {
	g.nodes[n.Name] = n
}

// Get returns the node by name, if present.
func (g *Graph) Get(name string) (*plugin.DependencyNode, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// AddEdge records that `from` depends on `to`. Both must already be nodes
// (or `to` will simply have no outgoing edges of its own, which is fine for
// the synthetic "core" node).
func (g *Graph) AddEdge(from, to string) {
	g.edges[from] = append(g.edges[from], to)
}

// Resolve topologically sorts the graph by depth-first search: a node is
// appended to the order only after all of its dependencies have been
// appended, so every node's index exceeds the indices of all its
// dependencies. A back edge found during the DFS raises CircularDependency
// naming the witnessing cycle.
func (g *Graph) Resolve() ([]string, error) {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully resolved
	)

	color := make(map[string]int, len(g.nodes))
	var order []string
	var path []string

	// Deterministic iteration order makes cycle-witness and order output
	// reproducible across runs for the same input.
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			cycleStart := 0
			for i, n := range path {
				if n == name {
					cycleStart = i
					break
				}
			}
			cycle := append(append([]string{}, path[cycleStart:]...), name)
			return &plugin.CircularDependencyError{Cycle: cycle}
		}

		color[name] = gray
		path = append(path, name)

		deps := append([]string{}, g.edges[name]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := g.nodes[dep]; !ok {
				continue // edges may point at nodes not yet materialized by the caller
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}
