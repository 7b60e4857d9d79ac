package wfjson

// Kind identifies which field of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Entry is one key/value pair of an Object-kind Value, in document order.
type Entry struct {
	Key      string
	KeySpan  Span
	Value    *Value
}

// Value is a parsed JSON value together with its source Span. Object keys
// keep document order and their own Span, separate from the value's Span,
// so the validator can point a diagnostic at the key or the value
// independently (spec §4.H "position-tracked diagnostics").
type Value struct {
	Kind Kind
	Span Span

	Bool   bool
	Number string // raw literal text, preserved verbatim
	Str    string // decoded string contents (String kind only)

	Array  []*Value
	Object []Entry
}

// Get returns the value for key in an Object-kind Value, or nil.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != KindObject {
		return nil
	}
	for _, e := range v.Object {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// Entry returns the Entry for key in an Object-kind Value, or nil.
func (v *Value) Entry(key string) *Entry {
	if v == nil || v.Kind != KindObject {
		return nil
	}
	for i := range v.Object {
		if v.Object[i].Key == key {
			return &v.Object[i]
		}
	}
	return nil
}

// Path finds the Span of the value reached by walking a sequence of object
// keys / array indices from v. An empty path yields the root's Span; a path
// that cannot be fully resolved yields the Span of the deepest value it
// does reach. This backs the validator's
// "find_span(path, target_hint)" requirement (spec §4.H).
func (v *Value) Path(steps ...any) Span {
	cur := v
	last := v.Span
	for _, step := range steps {
		if cur == nil {
			return last
		}
		last = cur.Span
		switch s := step.(type) {
		case string:
			cur = cur.Get(s)
		case int:
			if cur.Kind == KindArray && s >= 0 && s < len(cur.Array) {
				cur = cur.Array[s]
			} else {
				cur = nil
			}
		}
	}
	if cur != nil {
		return cur.Span
	}
	return last
}
