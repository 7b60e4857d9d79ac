package wfjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectOrderAndSpans(t *testing.T) {
	src := []byte(`{"a": 1, "b": [true, null], "c": "x\ny"}`)
	v, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind)
	require.Len(t, v.Object, 3)
	assert.Equal(t, "a", v.Object[0].Key)
	assert.Equal(t, "b", v.Object[1].Key)
	assert.Equal(t, "c", v.Object[2].Key)

	b := v.Get("b")
	require.NotNil(t, b)
	require.Equal(t, KindArray, b.Kind)
	require.Len(t, b.Array, 2)
	assert.True(t, b.Array[0].Bool)
	assert.Equal(t, KindNull, b.Array[1].Kind)

	c := v.Get("c")
	require.NotNil(t, c)
	assert.Equal(t, "x\ny", c.Str)

	// The whole document spans from the opening brace to just after the
	// closing brace.
	assert.Equal(t, Pos{Line: 1, Column: 1, Offset: 0}, v.Span.Start)
	assert.Equal(t, len(src), v.Span.End.Offset)
}

func TestParseMultilinePositions(t *testing.T) {
	src := []byte("{\n  \"a\": 1\n}")
	v, err := Parse(src)
	require.NoError(t, err)
	a := v.Entry("a")
	require.NotNil(t, a)
	assert.Equal(t, 2, a.KeySpan.Start.Line)
}

func TestParseTrailingCommaIsDistinguished(t *testing.T) {
	_, err := Parse([]byte(`{"a": 1,}`))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrTrailingComma, perr.Kind)
}

func TestParseLenientRecoversNestedTrailingCommas(t *testing.T) {
	src := []byte(`{"a": [1, 2,], "b": {"x": 1,},}`)
	v, patched, err := ParseLenient(src)
	require.NoError(t, err)
	assert.Len(t, patched, 3)
	assert.Equal(t, KindObject, v.Kind)
	a := v.Get("a")
	require.NotNil(t, a)
	assert.Len(t, a.Array, 2)
}

func TestParseLenientNonTrailingCommaErrorPropagates(t *testing.T) {
	_, _, err := ParseLenient([]byte(`{"a": }`))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrSyntax, perr.Kind)
}

func TestPathResolution(t *testing.T) {
	v, err := Parse([]byte(`{"steps": {"build": {"outputs": {"out": 1}}}}`))
	require.NoError(t, err)
	span := v.Path("steps", "build", "outputs", "out")
	assert.Equal(t, v.Get("steps").Get("build").Get("outputs").Get("out").Span, span)
}
