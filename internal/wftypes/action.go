package wftypes

// ActionKind selects which variant of Action is populated (spec §3
// "Action"). Only one of the corresponding fields on Action is meaningful
// for a given Kind.
type ActionKind string

const (
	ActionEcho   ActionKind = "echo"
	ActionExec   ActionKind = "exec"
	ActionScript ActionKind = "script"
)

// Action is the tagged union of ways a protoformula step can run (spec §3,
// §5 "echo" open question resolved as a reserved no-op).
type Action struct {
	Kind ActionKind

	Exec *ExecAction

	Script *ScriptAction
}

// ExecAction runs a literal argv with no shell interpretation.
type ExecAction struct {
	Command []string
}

// ScriptAction runs Contents under Interpreter: each line becomes its own
// entry file, dot-sourced in order by a generated run file (spec §4.C
// "script-injection").
type ScriptAction struct {
	Interpreter string
	Contents    []string
}
