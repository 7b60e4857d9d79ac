package wfvalidate

import (
	"fmt"

	"github.com/warpforge/engine/internal/wfjson"
)

// checker accumulates Errors while walking a wfjson.Value tree. Each check
// helper returns the value it extracted on success, or nil plus an
// appended Error on failure, so callers can keep walking further siblings
// even after one part of the document is malformed (spec §4.H wants every
// structural violation reported, not just the first).
type checker struct {
	root   *wfjson.Value
	errors []*Error
}

func (c *checker) fail(path []pathStep, hint TargetHint, format string, args ...any) {
	c.errors = append(c.errors, &Error{
		Kind:    KindCustom,
		Span:    c.span(path, hint),
		Message: fmt.Sprintf(format, args...),
	})
}

func (c *checker) failNote(path []pathStep, hint TargetHint, note string, format string, args ...any) {
	c.errors = append(c.errors, &Error{
		Kind:    KindCustom,
		Span:    c.span(path, hint),
		Message: fmt.Sprintf(format, args...),
		Note:    note,
	})
}

// span resolves a JSON path to a byte span, honoring the Key/Value/
// KeyAndValue hint for the final step when it names an object key (spec
// §4.I find_span).
func (c *checker) span(path []pathStep, hint TargetHint) wfjson.Span {
	if len(path) == 0 || hint == TargetValue {
		return c.root.Path(path...)
	}
	parent := c.root.Path(path[:len(path)-1]...)
	key, ok := path[len(path)-1].(string)
	if !ok {
		return c.root.Path(path...)
	}
	parentVal := c.valueAt(path[:len(path)-1])
	if parentVal == nil {
		return parent
	}
	entry := parentVal.Entry(key)
	if entry == nil {
		return parent
	}
	switch hint {
	case TargetKey:
		return entry.KeySpan
	case TargetKeyAndValue:
		return wfjson.Span{Start: entry.KeySpan.Start, End: entry.Value.Span.End}
	default:
		return entry.Value.Span
	}
}

func (c *checker) valueAt(path []pathStep) *wfjson.Value {
	cur := c.root
	for _, step := range path {
		if cur == nil {
			return nil
		}
		switch s := step.(type) {
		case string:
			cur = cur.Get(s)
		case int:
			if cur.Kind == wfjson.KindArray && s >= 0 && s < len(cur.Array) {
				cur = cur.Array[s]
			} else {
				cur = nil
			}
		}
	}
	return cur
}

func withKey(path []pathStep, key string) []pathStep {
	next := make([]pathStep, len(path), len(path)+1)
	copy(next, path)
	return append(next, key)
}

func withIndex(path []pathStep, idx int) []pathStep {
	next := make([]pathStep, len(path), len(path)+1)
	copy(next, path)
	return append(next, idx)
}

// object requires v to be an object-kind child of parent at key, reporting
// a Custom error targeting the parent's key if missing, or targeting the
// value if it is the wrong kind.
func (c *checker) object(parent *wfjson.Value, path []pathStep, key string) *wfjson.Value {
	v := parent.Get(key)
	if v == nil {
		c.fail(path, TargetKey, "missing required field %q", key)
		return nil
	}
	if v.Kind != wfjson.KindObject {
		c.fail(withKey(path, key), TargetValue, "field %q must be an object", key)
		return nil
	}
	return v
}

func (c *checker) optionalObject(parent *wfjson.Value, path []pathStep, key string) *wfjson.Value {
	v := parent.Get(key)
	if v == nil {
		return nil
	}
	if v.Kind != wfjson.KindObject {
		c.fail(withKey(path, key), TargetValue, "field %q must be an object", key)
		return nil
	}
	return v
}

func (c *checker) string(parent *wfjson.Value, path []pathStep, key string) (string, bool) {
	v := parent.Get(key)
	if v == nil {
		c.fail(path, TargetKey, "missing required field %q", key)
		return "", false
	}
	if v.Kind != wfjson.KindString {
		c.fail(withKey(path, key), TargetValue, "field %q must be a string", key)
		return "", false
	}
	return v.Str, true
}

func (c *checker) optionalString(parent *wfjson.Value, path []pathStep, key string) (string, bool) {
	v := parent.Get(key)
	if v == nil {
		return "", false
	}
	if v.Kind != wfjson.KindString {
		c.fail(withKey(path, key), TargetValue, "field %q must be a string", key)
		return "", false
	}
	return v.Str, true
}

func (c *checker) array(parent *wfjson.Value, path []pathStep, key string) (*wfjson.Value, bool) {
	v := parent.Get(key)
	if v == nil {
		c.fail(path, TargetKey, "missing required field %q", key)
		return nil, false
	}
	if v.Kind != wfjson.KindArray {
		c.fail(withKey(path, key), TargetValue, "field %q must be an array", key)
		return nil, false
	}
	return v, true
}

func (c *checker) stringArray(parent *wfjson.Value, path []pathStep, key string) ([]string, bool) {
	arr, ok := c.array(parent, path, key)
	if !ok {
		return nil, false
	}
	itemPath := withKey(path, key)
	out := make([]string, 0, len(arr.Array))
	allOK := true
	for i, item := range arr.Array {
		if item.Kind != wfjson.KindString {
			c.fail(withIndex(itemPath, i), TargetValue, "element %d of %q must be a string", i, key)
			allOK = false
			continue
		}
		out = append(out, item.Str)
	}
	return out, allOK
}
