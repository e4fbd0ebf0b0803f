// Package taskgraph compiles a validated taskmodel.Model tree into the
// TaskThreads the scheduler actually runs: flattened prerequisites, a
// transitively-reduced dependency graph, a stable topological order, and
// maximal sequential chains grouped into threads.
package taskgraph

import (
	"fmt"
	"sort"
)

// graph is a directed dependency graph over task names: edges point from a
// task to the tasks it depends on. Adapted from the teacher's
// internal/selector/graph.go, generalized with transitive reduction for the
// thread-grouping step.
type graph struct {
	nodes        map[string]bool
	edges        map[string][]string // task -> its prerequisites
	reverseEdges map[string][]string // task -> tasks that depend on it
}

func buildGraph(names []string, prereqsByName map[string][]string) (*graph, error) {
	g := &graph{
		nodes:        make(map[string]bool, len(names)),
		edges:        make(map[string][]string),
		reverseEdges: make(map[string][]string),
	}
	for _, n := range names {
		g.nodes[n] = true
	}
	for _, n := range names {
		for _, dep := range prereqsByName[n] {
			if !g.nodes[dep] {
				return nil, fmt.Errorf("The prerequisite '%s' could not be found.", dep)
			}
			g.edges[n] = append(g.edges[n], dep)
			g.reverseEdges[dep] = append(g.reverseEdges[dep], n)
		}
	}
	return g, nil
}

func (g *graph) sortedNodes() []string {
	result := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// detectCycle runs DFS with white/gray/black coloring and returns one
// offending cycle as a slice of task names, or nil if the graph is acyclic.
func (g *graph) detectCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int)
	var path []string

	var dfs func(node string) []string
	dfs = func(node string) []string {
		color[node] = gray
		path = append(path, node)

		for _, dep := range g.edges[node] {
			if color[dep] == gray {
				cycle := []string{dep}
				for i := len(path) - 1; i >= 0; i-- {
					cycle = append(cycle, path[i])
					if path[i] == dep {
						break
					}
				}
				return cycle
			}
			if color[dep] == white {
				if cyclePath := dfs(dep); cyclePath != nil {
					return cyclePath
				}
			}
		}

		color[node] = black
		path = path[:len(path)-1]
		return nil
	}

	for _, node := range g.sortedNodes() {
		if color[node] == white {
			if cyclePath := dfs(node); cyclePath != nil {
				return cyclePath
			}
		}
	}
	return nil
}

// transitiveReduction drops every edge n -> dep for which dep is also
// reachable from n through some other prerequisite, so each node is left
// listing only its immediate prerequisites (spec step 4).
func (g *graph) transitiveReduction() {
	reachable := make(map[string]map[string]bool, len(g.nodes))
	for _, n := range g.sortedNodes() {
		reachable[n] = g.reachableFrom(n)
	}

	for n, deps := range g.edges {
		kept := deps[:0:0]
		for _, dep := range deps {
			redundant := false
			for _, other := range deps {
				if other != dep && reachable[other][dep] {
					redundant = true
					break
				}
			}
			if !redundant {
				kept = append(kept, dep)
			}
		}
		g.edges[n] = kept
	}

	g.reverseEdges = make(map[string][]string)
	for n, deps := range g.edges {
		for _, dep := range deps {
			g.reverseEdges[dep] = append(g.reverseEdges[dep], n)
		}
	}
}

func (g *graph) reachableFrom(start string) map[string]bool {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		for _, dep := range g.edges[n] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(start)
	return seen
}

// stableTopologicalSort orders nodes so every prerequisite precedes its
// dependents, preferring the task with the smallest docOrder among those
// currently ready (spec step 5's stability rule).
func (g *graph) stableTopologicalSort(docOrder map[string]int) ([]string, error) {
	if cycle := g.detectCycle(); cycle != nil {
		return nil, fmt.Errorf("The task graph contains at least one cycle. For example: %s.", formatCycle(cycle))
	}

	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.edges[id])
	}

	ready := make([]string, 0)
	for id := range g.nodes {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sortByDocOrder(ready, docOrder)

	result := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sortByDocOrder(ready, docOrder)
		node := ready[0]
		ready = ready[1:]
		result = append(result, node)

		for _, dependent := range g.reverseEdges[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	return result, nil
}

func sortByDocOrder(names []string, docOrder map[string]int) {
	sort.Slice(names, func(i, j int) bool {
		return docOrder[names[i]] < docOrder[names[j]]
	})
}

func formatCycle(cycle []string) string {
	s := ""
	for i := len(cycle) - 1; i >= 0; i-- {
		s += cycle[i]
		if i > 0 {
			s += " -> "
		}
	}
	return s
}
