package wfvalidate

import (
	"github.com/warpforge/engine/internal/wfjson"
	"github.com/warpforge/engine/internal/wftypes"
)

// formulaEnvelopeKey is the versioned top-level key a formula document is
// wrapped in (spec §4.H "formula.formula.v1.{inputs,action,outputs}").
const formulaEnvelopeKey = "formula.formula.v1"

// ValidateFormula runs the full validate_formula pipeline (spec §4.H):
// syntax recovery, structural/semantic checks, span resolution, and final
// typed deserialization. On any error the returned Formula is nil and the
// error slice is non-empty; callers should report every entry, not just
// the first.
func ValidateFormula(source []byte) (*wftypes.Formula, []*Error) {
	root, trailingCommas, err := wfjson.ParseLenient(source)
	if err != nil {
		return nil, []*Error{syntaxError(err)}
	}

	c := &checker{root: root}
	for _, span := range trailingCommas {
		c.errors = append(c.errors, &Error{Kind: KindTrailingComma, Span: span, Message: "trailing comma recovered during parsing"})
	}

	if root.Kind != wfjson.KindObject {
		c.fail(nil, TargetValue, "document must be a JSON object")
		return nil, c.errors
	}
	body := c.object(root, nil, formulaEnvelopeKey)
	if body == nil {
		return nil, c.errors
	}
	path := []pathStep{formulaEnvelopeKey}

	formula := &wftypes.Protoformula{}
	if img, ok := c.optionalString(body, path, "image"); ok {
		c.checkImageRef(img, withKey(path, "image"), true)
		formula.Image = img
	} else if len(c.errors) == 0 {
		c.fail(path, TargetKey, "top-level formula requires a digest-pinned \"image\"")
	}
	formula.Inputs = c.checkInputs(body, path, false)
	formula.Action = c.checkAction(body, path)
	formula.Outputs = c.checkOutputs(body, path)

	if len(c.errors) > 0 {
		return nil, c.errors
	}
	return formula, nil
}

func syntaxError(err error) *Error {
	var perr *wfjson.ParseError
	if p, ok := err.(*wfjson.ParseError); ok {
		perr = p
	}
	if perr != nil {
		return &Error{Kind: KindSyntax, Span: perr.Span, Message: perr.Message}
	}
	return &Error{Kind: KindSyntax, Message: err.Error()}
}
