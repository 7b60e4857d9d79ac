// Package wfvalidate implements validate_formula and validate_plot (spec
// §4.H): syntax recovery, structural and semantic checks over the parsed
// JSON tree, span resolution, and final typed deserialization.
package wfvalidate

import "github.com/warpforge/engine/internal/wfjson"

// ErrorKind mirrors spec §3 "ValidationError" kinds.
type ErrorKind string

const (
	KindSyntax        ErrorKind = "syntax"
	KindTrailingComma ErrorKind = "trailing_comma"
	KindCustom        ErrorKind = "custom"
)

// TargetHint tells a diagnostic renderer whether to highlight a JSON
// object's key, its value, or both (spec §4.I).
type TargetHint int

const (
	TargetValue TargetHint = iota
	TargetKey
	TargetKeyAndValue
)

// Error is one diagnostic produced by validation. Error satisfies the
// error interface so a single diagnostic can still be handled like a
// normal Go error at call sites that don't need the full list.
type Error struct {
	Kind    ErrorKind
	Span    wfjson.Span
	Message string
	Note    string
	Label   string
}

func (e *Error) Error() string {
	if e.Note != "" {
		return e.Span.String() + ": " + e.Message + " (" + e.Note + ")"
	}
	return e.Span.String() + ": " + e.Message
}

// pathStep is one segment of a JSON path: a string object key or an int
// array index, matching wfjson.Value.Path's variadic step type.
type pathStep = any
