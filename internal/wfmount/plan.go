// Package wfmount translates a protoformula's logical input/output ports
// into concrete bind/overlay mounts and an environment map (spec §4.B).
package wfmount

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/internal/wftypes"
)

// Context carries the run-scoped paths the planner needs: a base for
// resolving relative host mount paths, and the directory under which
// overlay upper/work directories are allocated (spec §3 "Lifecycle",
// §4.B).
type Context struct {
	MountBase string // "" means no base configured
	Workspace string // overlays are allocated under <Workspace>/overlays
}

// Plan is the planner's output: the mount map and environment map to hand
// to the container spec builder, plus the resolved rootfs image reference
// when a step's "/" port names an oci: input.
type Plan struct {
	Mounts      map[string]wftypes.MountSpec
	Environment map[string]string
	RootImage   string // non-empty if an "oci:" input supplied the rootfs
}

// Plan lowers inputs and outputs into concrete mounts (spec §4.B).
// stepDir is this step's own run directory (<workspace>/<step>), used to
// allocate output staging directories; overlay directories are allocated
// under ctx.Workspace.
func Plan(inputs map[string]wftypes.InputValue, outputs map[string]wftypes.OutputDecl, ctx Context, stepDir string) (*Plan, error) {
	p := &Plan{
		Mounts:      map[string]wftypes.MountSpec{},
		Environment: map[string]string{},
	}
	usedPaths := map[string]bool{}

	for port, val := range inputs {
		switch wftypes.ClassifyPort(port) {
		case wftypes.PortEnv:
			if err := planEnvInput(p, port, val); err != nil {
				return nil, err
			}
		case wftypes.PortPath:
			if err := planPathInput(p, port, val, ctx, stepDir, usedPaths); err != nil {
				return nil, err
			}
		default:
			return nil, wferr.NewSetupCauselessError(fmt.Sprintf("input port %q must start with '/' or '$'", port))
		}
	}

	for name, decl := range outputs {
		if usedPaths[decl.From] {
			return nil, wferr.NewSetupCauselessError(fmt.Sprintf("output %q destination %q collides with an existing mount", name, decl.From))
		}
		stagingDir := filepath.Join(stepDir, "outputs", name)
		if err := os.MkdirAll(stagingDir, 0o755); err != nil {
			return nil, wferr.NewSetupError("create output staging dir", err)
		}
		usedPaths[decl.From] = true
		p.Mounts[decl.From] = wftypes.MountSpec{
			Destination: decl.From,
			Kind:        wftypes.MountBind,
			Source:      stagingDir,
			Options:     []string{"rbind"},
		}
	}

	return p, nil
}

func planEnvInput(p *Plan, port string, val wftypes.InputValue) error {
	if val.Kind != wftypes.InputLiteral {
		return wferr.NewSetupCauselessError(fmt.Sprintf("port %q only accepts literal: values", port))
	}
	p.Environment[wftypes.EnvName(port)] = val.Literal
	return nil
}

func planPathInput(p *Plan, port string, val wftypes.InputValue, ctx Context, stepDir string, usedPaths map[string]bool) error {
	if usedPaths[port] {
		return wferr.NewSetupCauselessError(fmt.Sprintf("duplicate mount destination %q", port))
	}

	switch val.Kind {
	case wftypes.InputMountRO, wftypes.InputMountRW:
		host, err := resolveHostPath(val.MountHost, ctx)
		if err != nil {
			return err
		}
		options := []string{"rbind"}
		if val.Kind == wftypes.InputMountRO {
			options = append(options, "ro")
		}
		usedPaths[port] = true
		p.Mounts[port] = wftypes.MountSpec{Destination: port, Kind: wftypes.MountBind, Source: host, Options: options}
		return nil

	case wftypes.InputMountOverlay:
		host, err := resolveHostPath(val.MountHost, ctx)
		if err != nil {
			return err
		}
		upper, work, err := allocateOverlayDirs(ctx.Workspace, port)
		if err != nil {
			return err
		}
		usedPaths[port] = true
		p.Mounts[port] = wftypes.MountSpec{
			Destination: port,
			Kind:        wftypes.MountOverlay,
			Options: []string{
				"lowerdir=" + host,
				"upperdir=" + upper,
				"workdir=" + work,
			},
		}
		return nil

	case wftypes.InputOCI:
		if port != "/" {
			return wferr.NewSetupCauselessError("oci: values are only valid for the \"/\" port")
		}
		p.RootImage = val.OCIRef
		return nil

	case wftypes.InputWare:
		// Contract-only per spec §4.B: resolve to a local depot directory
		// and bind it read-only. No depot implementation ships with this
		// engine (spec §1 "Out of scope: the catalog data-access broker").
		return wferr.ErrUnsupportedFeature

	case wftypes.InputPipe:
		return wferr.NewSetupCauselessError("pipe: inputs must be resolved by the scheduler before planning")

	default:
		return wferr.NewSetupCauselessError(fmt.Sprintf("value for port %q has an unsupported kind", port))
	}
}

func resolveHostPath(host string, ctx Context) (string, error) {
	if filepath.IsAbs(host) {
		return host, nil
	}
	if ctx.MountBase == "" {
		return "", wferr.NewSetupCauselessError(fmt.Sprintf("relative mount path %q with no configured mount base", host))
	}
	return filepath.Join(ctx.MountBase, host), nil
}

// allocateOverlayDirs creates a fresh upper/work directory pair for an
// overlay mount at destPort, failing SystemSetupCauseless if the path
// already exists (spec §4.B "fails SystemSetupCauseless if that path
// already exists").
func allocateOverlayDirs(workspace, destPort string) (upper, work string, err error) {
	mountID := overlayMountID(destPort)
	base := filepath.Join(workspace, "overlays", mountID)
	if _, statErr := os.Stat(base); statErr == nil {
		return "", "", wferr.NewSetupCauselessError(fmt.Sprintf("overlay dir %s already exists", base))
	}
	upper = filepath.Join(base, "upper")
	work = filepath.Join(base, "work")
	if err := os.MkdirAll(upper, 0o755); err != nil {
		return "", "", wferr.NewSetupError("create overlay upper dir", err)
	}
	if err := os.MkdirAll(work, 0o755); err != nil {
		return "", "", wferr.NewSetupError("create overlay work dir", err)
	}
	return upper, work, nil
}

// overlayMountID derives a filesystem-safe directory name from a
// container-side destination path.
func overlayMountID(destPort string) string {
	id := make([]byte, 0, len(destPort))
	for _, r := range destPort {
		if r == '/' {
			if len(id) == 0 {
				continue
			}
			id = append(id, '_')
			continue
		}
		id = append(id, byte(r))
	}
	if len(id) == 0 {
		return "root"
	}
	return string(id)
}
