package wftypes

// OutputDecl is one entry of a protoformula's "outputs" map: which mount
// port to collect from, and how to serialize it (spec §3 "outputs").
type OutputDecl struct {
	From     string
	Packtype Packtype
}

// Protoformula is the lowered, single-step unit of execution (spec §3
// "Protoformula"). Image is optional on a plot step (falls back to the
// plot's default image); it is mandatory, and must carry a digest, on a
// top-level Formula.
type Protoformula struct {
	Image   string
	Inputs  map[string]InputValue // port -> value
	Action  Action
	Outputs map[string]OutputDecl // name -> decl
}

// Formula is a top-level, directly-submitted Protoformula. The only
// additional constraint the validator enforces over a plot step is that
// Image is non-empty and digest-pinned (spec §3, §4.H).
type Formula = Protoformula
