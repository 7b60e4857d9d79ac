package wfspec

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rspec "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/warpforge/engine/internal/wftypes"
)

func TestBuildWritesConfigWithPatches(t *testing.T) {
	bundleDir := filepath.Join(t.TempDir(), "bundle")
	params := wftypes.ContainerParams{
		Ident:       "run-1",
		RuntimePath: "/usr/bin/runc",
		Command:     []string{"/bin/echo", "hi"},
		RootPath:    filepath.Join(bundleDir, "rootfs"),
		Environment: map[string]string{"GOARCH": "amd64"},
		Mounts: map[string]wftypes.MountSpec{
			"/src": {Destination: "/src", Kind: wftypes.MountBind, Source: "/host/src", Options: []string{"rbind", "ro"}},
		},
	}

	require.NoError(t, Build(params, bundleDir))

	raw, err := os.ReadFile(filepath.Join(bundleDir, "config.json"))
	require.NoError(t, err)

	var spec rspec.Spec
	require.NoError(t, json.Unmarshal(raw, &spec))

	assert.Equal(t, []string{"/bin/echo", "hi"}, spec.Process.Args)
	assert.Contains(t, spec.Process.Env, "GOARCH=amd64")
	assert.Equal(t, params.RootPath, spec.Root.Path)

	require.Len(t, spec.Mounts, 1)
	assert.Equal(t, "/src", spec.Mounts[0].Destination)
	assert.Equal(t, "/host/src", spec.Mounts[0].Source)

	require.Len(t, spec.Linux.UIDMappings, 1)
	assert.Equal(t, uint32(0), spec.Linux.UIDMappings[0].ContainerID)
	assert.Equal(t, uint32(os.Getuid()), spec.Linux.UIDMappings[0].HostID)

	var hasUser, hasPID bool
	for _, ns := range spec.Linux.Namespaces {
		if ns.Type == rspec.UserNamespace {
			hasUser = true
		}
		if ns.Type == rspec.PIDNamespace {
			hasPID = true
		}
	}
	assert.True(t, hasUser, "expected a user namespace entry")
	assert.True(t, hasPID, "expected the baseline pid namespace")
}

func TestGenerateScriptInjectionWritesEntriesAndRun(t *testing.T) {
	hostDir := filepath.Join(t.TempDir(), "inject")
	script := wftypes.ScriptAction{Interpreter: "/bin/sh", Contents: []string{"echo one", "echo two"}}

	command, err := GenerateScriptInjection(hostDir, "/script-inject", script)
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/sh", "/script-inject/run"}, command)

	entry0, err := os.ReadFile(filepath.Join(hostDir, "entry-0"))
	require.NoError(t, err)
	assert.Equal(t, "echo one\n", string(entry0))

	run, err := os.ReadFile(filepath.Join(hostDir, "run"))
	require.NoError(t, err)
	assert.Contains(t, string(run), "/script-inject/entry-0")
	assert.Contains(t, string(run), "/script-inject/entry-1")
}
