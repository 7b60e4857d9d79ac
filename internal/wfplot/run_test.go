package wfplot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpforge/engine/internal/wfrunner"
	"github.com/warpforge/engine/internal/wftypes"
)

// echoStep is an echo-action protoformula: RunPlot never spawns a container
// for it, so these tests exercise graph ordering, pipe wiring, and output
// packing without needing a real OCI runtime or registry.
func echoStep(inputs map[string]wftypes.InputValue, outputs map[string]wftypes.OutputDecl) wftypes.Protoformula {
	return wftypes.Protoformula{
		Inputs:  inputs,
		Action:  wftypes.Action{Kind: wftypes.ActionEcho},
		Outputs: outputs,
	}
}

func TestRunPlotWiresStepOutputsThroughPipesAndPacksPlotOutputs(t *testing.T) {
	plot := &wftypes.Plot{
		Inputs: map[string]wftypes.InputValue{
			"$GREETING": {Kind: wftypes.InputLiteral, Literal: "hi"},
		},
		Steps: map[string]wftypes.Protoformula{
			"build": echoStep(
				map[string]wftypes.InputValue{
					"$GREETING": {Kind: wftypes.InputPipe, PipeStep: "", PipeOutput: "$GREETING"},
				},
				map[string]wftypes.OutputDecl{"out": {From: "/out", Packtype: wftypes.PacktypeTar}},
			),
			"package": echoStep(
				map[string]wftypes.InputValue{
					"/in": {Kind: wftypes.InputPipe, PipeStep: "build", PipeOutput: "out"},
				},
				map[string]wftypes.OutputDecl{"final": {From: "/final", Packtype: wftypes.PacktypeNone}},
			),
		},
		StepOrder: []string{"build", "package"},
		Outputs: map[string]wftypes.InputValue{
			"result": {Kind: wftypes.InputPipe, PipeStep: "package", PipeOutput: "final"},
		},
	}

	runCtx := Context{WorkspaceBase: t.TempDir(), OutputDir: filepath.Join(t.TempDir(), "out")}
	events := make(chan wfrunner.Event, 16)

	outputs, err := RunPlot(context.Background(), plot, runCtx, events)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "result", outputs[0].Name)

	_, statErr := os.Stat(filepath.Join(runCtx.OutputDir, "result"))
	assert.NoError(t, statErr)
}

func TestRunPlotRejectsUndeclaredStepDependency(t *testing.T) {
	plot := &wftypes.Plot{
		Steps: map[string]wftypes.Protoformula{
			"a": echoStep(map[string]wftypes.InputValue{
				"/in": {Kind: wftypes.InputPipe, PipeStep: "ghost", PipeOutput: "x"},
			}, nil),
		},
		StepOrder: []string{"a"},
	}

	runCtx := Context{WorkspaceBase: t.TempDir(), OutputDir: t.TempDir()}
	events := make(chan wfrunner.Event, 4)

	_, err := RunPlot(context.Background(), plot, runCtx, events)
	require.Error(t, err)
}

func TestRunPlotRejectsCycle(t *testing.T) {
	plot := &wftypes.Plot{
		Steps: map[string]wftypes.Protoformula{
			"a": echoStep(map[string]wftypes.InputValue{
				"/in": {Kind: wftypes.InputPipe, PipeStep: "b", PipeOutput: "x"},
			}, nil),
			"b": echoStep(map[string]wftypes.InputValue{
				"/in": {Kind: wftypes.InputPipe, PipeStep: "a", PipeOutput: "x"},
			}, nil),
		},
		StepOrder: []string{"a", "b"},
	}

	runCtx := Context{WorkspaceBase: t.TempDir(), OutputDir: t.TempDir()}
	events := make(chan wfrunner.Event, 4)

	_, err := RunPlot(context.Background(), plot, runCtx, events)
	require.Error(t, err)
}
