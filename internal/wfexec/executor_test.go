package wfexec

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

func TestRunEchoActionSkipsContainerAndStagesOutputDir(t *testing.T) {
	stepDir := filepath.Join(t.TempDir(), "step")
	execCtx := Context{}
	outputDir := filepath.Join(t.TempDir(), "out")

	formula := wftypes.Protoformula{
		Action: wftypes.Action{Kind: wftypes.ActionEcho},
		Outputs: map[string]wftypes.OutputDecl{
			"result": {From: "/out", Packtype: wftypes.PacktypeTar},
		},
	}

	events := make(chan wfrunner.Event, 4)
	staged, err := Run(context.Background(), execCtx, "ident-1", stepDir, formula, events)
	require.NoError(t, err)
	require.Contains(t, staged, "result")

	_, statErr := os.Stat(staged["result"])
	require.NoError(t, statErr)

	outputs, err := PackOutputs(context.Background(), formula.Outputs, staged, outputDir)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "result", outputs[0].Name)

	_, statErr = os.Stat(filepath.Join(outputDir, "result"))
	assert.NoError(t, statErr)
}

func TestRunExecActionRequiresNonEmptyCommand(t *testing.T) {
	stepDir := filepath.Join(t.TempDir(), "step")
	execCtx := Context{}
	formula := wftypes.Protoformula{
		Action: wftypes.Action{Kind: wftypes.ActionExec, Exec: &wftypes.ExecAction{}},
	}

	events := make(chan wfrunner.Event, 4)
	_, err := Run(context.Background(), execCtx, "ident-2", stepDir, formula, events)
	require.Error(t, err)
}

func TestRunExecActionRequiresImageReference(t *testing.T) {
	stepDir := filepath.Join(t.TempDir(), "step")
	execCtx := Context{}
	formula := wftypes.Protoformula{
		Action: wftypes.Action{Kind: wftypes.ActionExec, Exec: &wftypes.ExecAction{Command: []string{"/bin/true"}}},
	}

	events := make(chan wfrunner.Event, 4)
	_, err := Run(context.Background(), execCtx, "ident-3", stepDir, formula, events)
	require.Error(t, err)
}
