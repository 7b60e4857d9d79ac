// Package wfjson is a hand-rolled, position-tracking JSON reader. No pack
// library exposes JSON-specific (not YAML, not generic-token) line/column/
// byte-offset spans with the trailing-comma recovery semantics the
// validator needs (see DESIGN.md); this mirrors the bespoke nature of the
// original json-with-position crate it replaces.
package wfjson

import "fmt"

// Pos is a single point in the source text.
type Pos struct {
	Line   int // 1-based
	Column int // 1-based, counted in runes
	Offset int // 0-based byte offset
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// Span is a half-open [Start, End) byte range with endpoints resolved to
// line/column. Whitespace and the separators (',', ':') that surround a
// value are never included in that value's own Span.
type Span struct {
	Start Pos
	End   Pos
}

func (s Span) String() string { return fmt.Sprintf("%s-%s", s.Start, s.End) }
