package wfplot

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpforge/engine/internal/wftypes"
)

func step(pipes ...string) wftypes.Protoformula {
	inputs := map[string]wftypes.InputValue{}
	for i, p := range pipes {
		val, err := wftypes.ParseInputValue(p)
		if err != nil {
			panic(err)
		}
		inputs[fmt.Sprintf("/in%d", i)] = val
	}
	return wftypes.Protoformula{Inputs: inputs}
}

func TestTopoSortDocumentOrderTieBreak(t *testing.T) {
	plot := &wftypes.Plot{
		StepOrder: []string{"c", "b", "a"},
		Steps: map[string]wftypes.Protoformula{
			"a": step(),
			"b": step(),
			"c": step(),
		},
	}
	g := BuildGraph(plot)
	require.NoError(t, ValidateDependenciesExist(g))
	order, err := TopoSort(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestTopoSortRespectsDependencies(t *testing.T) {
	plot := &wftypes.Plot{
		StepOrder: []string{"build", "test", "package"},
		Steps: map[string]wftypes.Protoformula{
			"build":   step(),
			"test":    step("pipe:build:out"),
			"package": step("pipe:build:out", "pipe:test:out"),
		},
	}
	g := BuildGraph(plot)
	order, err := TopoSort(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "test", "package"}, order)
}

func TestTopoSortDetectsCycle(t *testing.T) {
	plot := &wftypes.Plot{
		StepOrder: []string{"a", "b"},
		Steps: map[string]wftypes.Protoformula{
			"a": step("pipe:b:out"),
			"b": step("pipe:a:out"),
		},
	}
	g := BuildGraph(plot)
	_, err := TopoSort(g)
	assert.Error(t, err)
}

func TestValidateDependenciesExistCatchesUnknownStep(t *testing.T) {
	plot := &wftypes.Plot{
		StepOrder: []string{"a"},
		Steps: map[string]wftypes.Protoformula{
			"a": step("pipe:missing:out"),
		},
	}
	g := BuildGraph(plot)
	assert.Error(t, ValidateDependenciesExist(g))
}
