package wfmount

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpforge/engine/internal/wftypes"
)

func input(t *testing.T, raw string) wftypes.InputValue {
	t.Helper()
	v, err := wftypes.ParseInputValue(raw)
	require.NoError(t, err)
	return v
}

func TestPlanBindAndEnvAndOutput(t *testing.T) {
	workspace := t.TempDir()
	stepDir := filepath.Join(workspace, "build")

	inputs := map[string]wftypes.InputValue{
		"/src":    input(t, "mount:ro:/host/src"),
		"$GOARCH": input(t, "literal:amd64"),
	}
	outputs := map[string]wftypes.OutputDecl{
		"bin": {From: "/out", Packtype: wftypes.PacktypeTar},
	}

	plan, err := Plan(inputs, outputs, Context{Workspace: workspace}, stepDir)
	require.NoError(t, err)

	assert.Equal(t, "amd64", plan.Environment["GOARCH"])
	require.Contains(t, plan.Mounts, "/src")
	assert.Equal(t, "/host/src", plan.Mounts["/src"].Source)
	assert.Contains(t, plan.Mounts["/src"].Options, "ro")

	require.Contains(t, plan.Mounts, "/out")
	assert.Equal(t, filepath.Join(stepDir, "outputs", "bin"), plan.Mounts["/out"].Source)
}

func TestPlanOverlayFailsOnExistingDir(t *testing.T) {
	workspace := t.TempDir()
	stepDir := filepath.Join(workspace, "build")
	inputs := map[string]wftypes.InputValue{"/merged": input(t, "mount:overlay:/host/base")}

	_, err := Plan(inputs, nil, Context{Workspace: workspace}, stepDir)
	require.NoError(t, err)

	_, err = Plan(inputs, nil, Context{Workspace: workspace}, stepDir)
	require.Error(t, err)
}

func TestPlanRejectsRelativeHostPathWithoutBase(t *testing.T) {
	workspace := t.TempDir()
	inputs := map[string]wftypes.InputValue{"/src": input(t, "mount:ro:relative/path")}
	_, err := Plan(inputs, nil, Context{Workspace: workspace}, filepath.Join(workspace, "s"))
	require.Error(t, err)
}

func TestPlanRejectsLiteralOnPathPort(t *testing.T) {
	workspace := t.TempDir()
	inputs := map[string]wftypes.InputValue{"/src": input(t, "literal:hello")}
	_, err := Plan(inputs, nil, Context{Workspace: workspace}, filepath.Join(workspace, "s"))
	require.Error(t, err)
}
