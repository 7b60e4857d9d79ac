// Package wfplot builds and schedules the per-plot step dependency graph
// and drives plot execution end to end (spec §4.F).
package wfplot

import (
	"fmt"
	"sort"

	"github.com/warpforge/engine/internal/wftypes"
)

// BuildGraph derives the PlotGraph from a Plot's step inputs: an edge from
// S to T exists whenever T has a `pipe:S:...` input (spec §3 "PlotGraph").
// Pipes with an empty step name bind to a plot-level input and contribute
// no edge.
func BuildGraph(plot *wftypes.Plot) *wftypes.PlotGraph {
	g := &wftypes.PlotGraph{
		Nodes: append([]string(nil), plot.StepOrder...),
		Edges: make(map[string][]string, len(plot.Steps)),
	}
	for _, name := range plot.StepOrder {
		step := plot.Steps[name]
		var deps []string
		seen := map[string]bool{}
		for _, port := range sortedInputPorts(step.Inputs) {
			val := step.Inputs[port]
			if val.Kind == wftypes.InputPipe && val.PipeStep != "" && !seen[val.PipeStep] {
				seen[val.PipeStep] = true
				deps = append(deps, val.PipeStep)
			}
		}
		g.Edges[name] = deps
	}
	return g
}

// ValidateDependenciesExist checks that every pipe's referenced step is a
// node of the graph (spec §4.F step 2).
func ValidateDependenciesExist(g *wftypes.PlotGraph) error {
	nodeSet := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeSet[n] = true
	}
	for step, deps := range g.Edges {
		for _, dep := range deps {
			if !nodeSet[dep] {
				return fmt.Errorf("step %q depends on undeclared step %q", step, dep)
			}
		}
	}
	return nil
}

// TopoSort runs Kahn's algorithm over g, breaking ties between
// simultaneously-ready nodes by document order (spec §4.F step 3,
// "Tie-breaking"). It returns the emitted order, or an error naming the
// nodes left over when a cycle prevents full emission.
func TopoSort(g *wftypes.PlotGraph) ([]string, error) {
	indexOf := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		indexOf[n] = i
	}

	// remaining[T] is T's Kahn indegree: the number of distinct steps T
	// depends on, len(Edges[T]). children[D] is the set of nodes that name
	// D in their own Edges list, i.e. the nodes unblocked as D is emitted.
	remaining := make(map[string]int, len(g.Nodes))
	children := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		remaining[n] = len(g.Edges[n])
	}
	for n, deps := range g.Edges {
		for _, d := range deps {
			children[d] = append(children[d], n)
		}
	}

	var ready []string
	for _, n := range g.Nodes {
		if remaining[n] == 0 {
			ready = append(ready, n)
		}
	}

	var order []string
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return indexOf[ready[i]] < indexOf[ready[j]] })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, child := range children[next] {
			remaining[child]--
			if remaining[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		emitted := make(map[string]bool, len(order))
		for _, n := range order {
			emitted[n] = true
		}
		var stuck []string
		for _, n := range g.Nodes {
			if !emitted[n] {
				stuck = append(stuck, n)
			}
		}
		return nil, fmt.Errorf("cycle detected among steps: %v", stuck)
	}
	return order, nil
}

func sortedInputPorts(inputs map[string]wftypes.InputValue) []string {
	ports := make([]string, 0, len(inputs))
	for p := range inputs {
		ports = append(ports, p)
	}
	sort.Strings(ports)
	return ports
}
