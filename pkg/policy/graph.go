package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Graph records which rule consults which other rule. A rule set is only
// usable when its graph is acyclic: a cycle means evaluating one rule can
// re-enter itself through another.
type Graph struct {
	edges map[Kind][]Kind
}

// NewGraph returns an empty rule graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[Kind][]Kind)}
}

// Add declares that rule from consults rule to.
func (g *Graph) Add(from Kind, to ...Kind) {
	if _, ok := g.edges[from]; !ok {
		g.edges[from] = nil
	}
	for _, t := range to {
		g.edges[from] = append(g.edges[from], t)
		if _, ok := g.edges[t]; !ok {
			g.edges[t] = nil
		}
	}
}

// Validate returns an error naming the first cycle found, or nil.
func (g *Graph) Validate() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[Kind]int, len(g.edges))

	nodes := make([]Kind, 0, len(g.edges))
	for k := range g.edges {
		nodes = append(nodes, k)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	var path []Kind
	var visit func(k Kind) error
	visit = func(k Kind) error {
		switch state[k] {
		case visiting:
			start := 0
			for i, p := range path {
				if p == k {
					start = i
					break
				}
			}
			cycle := append(append([]Kind{}, path[start:]...), k)
			names := make([]string, len(cycle))
			for i, c := range cycle {
				names[i] = string(c)
			}
			return fmt.Errorf("policy cycle: %s", strings.Join(names, " -> "))
		case done:
			return nil
		}
		state[k] = visiting
		path = append(path, k)
		for _, next := range g.edges[k] {
			if err := visit(next); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[k] = done
		return nil
	}

	for _, k := range nodes {
		if err := visit(k); err != nil {
			return err
		}
	}
	return nil
}
