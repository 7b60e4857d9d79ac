package wftypes

// Plot is a multi-step document whose steps are wired together by pipe
// inputs (spec §3 "Plot"). StepOrder preserves the document order of the
// "steps" object as parsed, which the scheduler uses to break ties between
// otherwise-independent steps (spec §3 "PlotGraph").
type Plot struct {
	Image     string
	Inputs    map[string]InputValue // plot-level inputs; Pipe values are not valid here
	Steps     map[string]Protoformula
	StepOrder []string
	Outputs   map[string]InputValue // label -> Pipe value naming a step's output
}

// PlotGraph is the dependency graph derived from a Plot's pipe inputs: an
// edge from A to B means step B reads one of step A's outputs and so must
// run after it (spec §3 "PlotGraph", §4.F scheduling invariants).
type PlotGraph struct {
	Nodes []string            // step names, in Plot.StepOrder
	Edges map[string][]string // step -> steps it depends on
}
