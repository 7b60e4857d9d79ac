package wfjson

import "errors"

// maxTrailingCommaRecoveries bounds the patch-and-retry loop so a
// pathological input (or a bug in the patcher) cannot spin forever (spec
// §4.H "trailing-comma recovery loop").
const maxTrailingCommaRecoveries = 20

// ParseLenient parses data, transparently patching out trailing commas
// (replacing the comma byte with a space, which preserves every other
// byte's offset and line/column) and retrying, up to
// maxTrailingCommaRecoveries times. It returns the final parsed Value, the
// patched byte offsets of every trailing comma found (for the validator to
// surface as TrailingComma diagnostics), and an error if parsing still
// fails for a non-trailing-comma reason or the recovery bound is exceeded.
func ParseLenient(data []byte) (*Value, []Span, error) {
	buf := append([]byte(nil), data...)
	var patched []Span
	for i := 0; i < maxTrailingCommaRecoveries; i++ {
		val, err := Parse(buf)
		if err == nil {
			return val, patched, nil
		}
		var perr *ParseError
		if !errors.As(err, &perr) || perr.Kind != ErrTrailingComma {
			return nil, patched, err
		}
		buf[perr.Span.Start.Offset] = ' '
		patched = append(patched, perr.Span)
	}
	return nil, patched, errors.New("exceeded trailing-comma recovery limit")
}
