package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// CycleWarning reports definitions whose parents lead back to themselves.
// A taxonomy must be acyclic, so a loaded cycle shows up as a subsumption
// walk that never ends.
type CycleWarning struct {
	Path    []string `json:"path"` // e.g. ["A", "B", "A"]
	Message string   `json:"message"`
}

// AnalyzeCycles finds parent cycles among defs with Tarjan's strongly
// connected components. Parents outside defs cannot close a cycle and are
// ignored. An acyclic set returns no warnings.
func AnalyzeCycles(defs []Definition) []CycleWarning {
	graph := make(parentGraph, len(defs))
	for _, d := range defs {
		graph[d.Name] = nil
	}
	for _, d := range defs {
		for _, p := range d.Parents {
			if _, ok := graph[p]; ok {
				graph[d.Name] = append(graph[d.Name], p)
			}
		}
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || slices.Contains(graph[scc[0]], scc[0]) {
			warnings = append(warnings, cycleWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int { return strings.Compare(a.Path[0], b.Path[0]) })
	return warnings
}

// parentGraph maps a concept name to its parents' names.
type parentGraph map[string][]string

// tarjanSCC returns the strongly connected components of graph. Nodes are
// visited in name order so results are stable.
func tarjanSCC(graph parentGraph) [][]string {
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

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

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

	nodes := make([]string, 0, len(graph))
	for n := range graph {
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

func cycleWarning(scc []string, graph parentGraph) CycleWarning {
	if len(scc) == 1 {
		return CycleWarning{
			Path:    []string{scc[0], scc[0]},
			Message: fmt.Sprintf("%s is its own parent", scc[0]),
		}
	}
	path := cyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("parent cycle: %s", strings.Join(path, " -> ")),
	}
}

// cyclePath walks parent edges inside scc from its first member until it
// returns to the start.
func cyclePath(scc []string, graph parentGraph) []string {
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
		next := ""
		for _, p := range graph[current] {
			if members[p] && (!visited[p] || p == start) {
				next = p
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		current = next
	}
}
