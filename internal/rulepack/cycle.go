package rulepack

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports a dependency cycle among the pack's rules.
// Formula dependencies must form a DAG; a cyclic pack is rejected at
// compile time, before any rule reaches the store.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("rule dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// checkCycles runs strongly-connected-component analysis over the
// pack's depends_on edges. Edges to rules outside the pack are ignored
// here; the store re-checks them against its own graph on insert.
func (p *Pack) checkCycles() error {
	inPack := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		inPack[r.ID] = true
	}

	graph := make(map[string][]string, len(p.Rules))
	for _, r := range p.Rules {
		graph[r.ID] = []string{}
		for _, dep := range r.DependsOn {
			if inPack[dep] {
				graph[r.ID] = append(graph[r.ID], dep)
			}
		}
	}

	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			sort.Strings(scc)
			return &CycleError{Path: append(scc, scc[0])}
		}
	}
	return nil
}

func hasSelfLoop(node string, graph map[string][]string) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Single-node SCCs
// without self-loops are not cycles.
func tarjanSCC(graph map[string][]string) [][]string {
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
			sccs = append(sccs, scc)
		}
	}

	// Deterministic visit order keeps reported cycles stable.
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}
