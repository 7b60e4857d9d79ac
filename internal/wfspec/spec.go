// Package wfspec builds an OCI runtime spec (config.json) from a
// ContainerParams record (spec §4.C).
package wfspec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	rspec "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/internal/wftypes"
)

// baselineCapabilities is the minimal capability set granted to every
// container (spec §4.C "Default capabilities are a minimal set").
var baselineCapabilities = []string{
	"CAP_AUDIT_WRITE",
	"CAP_KILL",
	"CAP_NET_BIND_SERVICE",
}

// baselineNamespaces is added to before the user namespace entry (spec §4.C
// "Baseline namespaces: pid, ipc, uts, mount").
var baselineNamespaces = []rspec.LinuxNamespaceType{
	rspec.PIDNamespace,
	rspec.IPCNamespace,
	rspec.UTSNamespace,
	rspec.MountNamespace,
}

// Build composes an OCI runtime spec for params and writes it to
// <bundleDir>/config.json (spec §4.C). The bundle directory is created if
// absent; permission failures creating it or writing config.json are
// SystemSetupError, other I/O failures SystemRuntimeError.
func Build(params wftypes.ContainerParams, bundleDir string) error {
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		if os.IsPermission(err) {
			return wferr.NewSetupError("create bundle directory", err)
		}
		return wferr.NewRuntimeError("create bundle directory", err)
	}

	spec := baseline()
	patchProcess(spec, params.Command, params.Environment)
	spec.Root = &rspec.Root{Path: params.RootPath, Readonly: false}
	patchMounts(spec, params.Mounts)
	patchIdentityMappings(spec)
	addUserNamespace(spec)

	path := filepath.Join(bundleDir, "config.json")
	raw, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return wferr.NewRuntimeError("marshal container spec", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		if os.IsPermission(err) {
			return wferr.NewSetupError("write config.json", err)
		}
		return wferr.NewRuntimeError("write config.json", err)
	}
	return nil
}

// baseline returns a minimal runtime spec template: a Linux container with
// the baseline namespaces and capability set, no network namespace (spec
// §4.C "no network namespace entry implies host-network-style default").
func baseline() *rspec.Spec {
	namespaces := make([]rspec.LinuxNamespace, 0, len(baselineNamespaces))
	for _, t := range baselineNamespaces {
		namespaces = append(namespaces, rspec.LinuxNamespace{Type: t})
	}

	caps := append([]string(nil), baselineCapabilities...)

	return &rspec.Spec{
		Version: "1.0.2",
		Process: &rspec.Process{
			Terminal: false,
			Cwd:      "/",
			User:     rspec.User{UID: 0, GID: 0},
			Capabilities: &rspec.LinuxCapabilities{
				Bounding:    caps,
				Effective:   caps,
				Permitted:   caps,
				Inheritable: caps,
			},
		},
		Linux: &rspec.Linux{
			Namespaces: namespaces,
		},
	}
}

// patchProcess sets /process/args and appends each NAME=VALUE to
// /process/env (spec §4.C).
func patchProcess(spec *rspec.Spec, command []string, environment map[string]string) {
	spec.Process.Args = command
	for _, name := range sortedKeys(environment) {
		spec.Process.Env = append(spec.Process.Env, fmt.Sprintf("%s=%s", name, environment[name]))
	}
}

// patchMounts appends a Mount entry per MountSpec (spec §4.C "/mounts/- ←
// each MountSpec translated to {destination, type, source, options}").
// Iteration is in destination order for reproducible output.
func patchMounts(spec *rspec.Spec, mounts map[string]wftypes.MountSpec) {
	for _, dest := range sortedMountKeys(mounts) {
		m := mounts[dest]
		spec.Mounts = append(spec.Mounts, rspec.Mount{
			Destination: m.Destination,
			Type:        mountType(m.Kind),
			Source:      m.Source,
			Options:     m.Options,
		})
	}
}

func mountType(kind wftypes.MountKind) string {
	switch kind {
	case wftypes.MountOverlay:
		return "overlay"
	default:
		return "none"
	}
}

// patchIdentityMappings maps container root to the invoking user, per spec
// §4.C "/linux/uidMappings and /linux/gidMappings ←
// [{containerID:0, hostID:<current uid/gid>, size:1}]".
func patchIdentityMappings(spec *rspec.Spec) {
	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())
	spec.Linux.UIDMappings = []rspec.LinuxIDMapping{{ContainerID: 0, HostID: uid, Size: 1}}
	spec.Linux.GIDMappings = []rspec.LinuxIDMapping{{ContainerID: 0, HostID: gid, Size: 1}}
}

// addUserNamespace appends a user namespace entry (spec §4.C
// "/linux/namespaces/- ← add a user namespace entry").
func addUserNamespace(spec *rspec.Spec) {
	spec.Linux.Namespaces = append(spec.Linux.Namespaces, rspec.LinuxNamespace{Type: rspec.UserNamespace})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMountKeys(m map[string]wftypes.MountSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
