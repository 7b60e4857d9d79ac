// Package wfexec sequences image resolution, mount planning, container
// spec construction, and process execution for a single protoformula, then
// packs its declared outputs (spec §4.E).
package wfexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/internal/wfimage"
	"github.com/warpforge/engine/internal/wfmount"
	"github.com/warpforge/engine/internal/wfpack"
	"github.com/warpforge/engine/internal/wfrunner"
	"github.com/warpforge/engine/internal/wfspec"
	"github.com/warpforge/engine/internal/wftypes"
)

const scriptInjectContainerPath = "/.wf-script-inject"

// Context carries the run-wide configuration a formula executor needs: the
// OCI runtime binary, the optional base for resolving relative host mount
// paths, and the optional image cache (spec §3 "Lifecycle", §6).
type Context struct {
	RuntimePath string
	MountBase   string
	Cache       *wfimage.Cache
}

// Run executes one protoformula's setup-through-container-exit steps (spec
// §4.E steps 1-8): plans mounts, resolves and unpacks the rootfs image,
// builds the container spec, and runs it. It returns the staged output
// directory for each declared output (already located at
// <stepDir>/outputs/<name>, the same layout the plot scheduler's pipes
// expect — spec §4.F step 5), leaving packing (step 9) to the caller via
// PackOutputs: a standalone top-level formula submission packs immediately,
// while the plot scheduler defers packing to its own final step so
// intermediate directories stay available for downstream pipes.
// stepDir is this step's run-scoped directory (<workspace>/<step>); ident
// is the run-unique container ident. events receives every wfrunner.Event
// emitted while the container runs; it is never closed by Run.
func Run(ctx context.Context, execCtx Context, ident, stepDir string, formula wftypes.Protoformula, events chan<- wfrunner.Event) (map[string]string, error) {
	if err := os.MkdirAll(stepDir, 0o755); err != nil {
		return nil, wferr.NewSetupError("create step run directory", err)
	}

	mountCtx := wfmount.Context{MountBase: execCtx.MountBase, Workspace: stepDir}
	plan, err := wfmount.Plan(formula.Inputs, formula.Outputs, mountCtx, stepDir)
	if err != nil {
		return nil, err
	}

	command, err := resolveCommand(formula.Action, stepDir, plan)
	if err != nil {
		return nil, err
	}

	if formula.Action.Kind != wftypes.ActionEcho {
		if err := runContainer(ctx, execCtx, ident, stepDir, formula, plan, command, events); err != nil {
			return nil, err
		}
	}

	return stagedOutputDirs(formula.Outputs, stepDir), nil
}

// PackOutputs packs every declared output's staged directory (as returned
// by Run) into outputDir (spec §4.E step 9, §4.G).
func PackOutputs(ctx context.Context, outputs map[string]wftypes.OutputDecl, stagedDirs map[string]string, outputDir string) ([]wftypes.Output, error) {
	return packOutputs(ctx, outputs, stagedDirs, outputDir)
}

// resolveCommand derives the argv to run from the protoformula's action,
// synthesizing the script-injection directory and mounting it read-only
// when the action is a script (spec §4.C "Script actions", §4.E step 3).
func resolveCommand(action wftypes.Action, stepDir string, plan *wfmount.Plan) ([]string, error) {
	switch action.Kind {
	case wftypes.ActionEcho:
		// Reserved/diagnostic no-op: the executor never spawns a container
		// for this action (spec §4.E "Action variants").
		return nil, nil
	case wftypes.ActionExec:
		if action.Exec == nil || len(action.Exec.Command) == 0 {
			return nil, wferr.NewSetupCauselessError("exec action requires a non-empty command")
		}
		return action.Exec.Command, nil
	case wftypes.ActionScript:
		if action.Script == nil || !filepath.IsAbs(action.Script.Interpreter) {
			return nil, wferr.NewSetupCauselessError("script action requires an absolute interpreter path")
		}
		hostDir := filepath.Join(stepDir, "script-inject")
		command, err := wfspec.GenerateScriptInjection(hostDir, scriptInjectContainerPath, *action.Script)
		if err != nil {
			return nil, err
		}
		plan.Mounts[scriptInjectContainerPath] = wftypes.MountSpec{
			Destination: scriptInjectContainerPath,
			Kind:        wftypes.MountBind,
			Source:      hostDir,
			Options:     []string{"rbind", "ro"},
		}
		return command, nil
	default:
		return nil, wferr.NewSetupCauselessError(fmt.Sprintf("unknown action kind %q", action.Kind))
	}
}

// runContainer resolves the rootfs image, builds the container spec, and
// runs it, failing with an exit-code-carrying RuntimeError on a nonzero or
// absent exit (spec §4.E steps 4, 6-8).
func runContainer(ctx context.Context, execCtx Context, ident, stepDir string, formula wftypes.Protoformula, plan *wfmount.Plan, command []string, events chan<- wfrunner.Event) error {
	imageRef := formula.Image
	if imageRef == "" {
		imageRef = plan.RootImage
	}
	if imageRef == "" {
		return wferr.NewSetupCauselessError("step has no image: neither protoformula image nor a \"/\" oci: input is set")
	}
	ref, err := wftypes.ParseReference(imageRef)
	if err != nil {
		return wferr.NewSetupCauselessError(fmt.Sprintf("invalid image reference %q: %v", imageRef, err))
	}

	data, err := wfimage.Resolve(ctx, ref, execCtx.Cache)
	if err != nil {
		return err
	}

	bundleDir := filepath.Join(stepDir, ident)
	rootfsDir, _, err := wfimage.Unpack(data, bundleDir)
	if err != nil {
		return err
	}

	params := wftypes.ContainerParams{
		Ident:       ident,
		RuntimePath: execCtx.RuntimePath,
		Command:     command,
		Mounts:      plan.Mounts,
		Environment: plan.Environment,
		RootPath:    rootfsDir,
	}
	if err := wfspec.Build(params, bundleDir); err != nil {
		return err
	}

	logFile := filepath.Join(stepDir, "runtime.log")
	return wfrunner.Run(ctx, params, bundleDir, logFile, events)
}

func stagedOutputDirs(outputs map[string]wftypes.OutputDecl, stepDir string) map[string]string {
	dirs := make(map[string]string, len(outputs))
	for name := range outputs {
		dirs[name] = filepath.Join(stepDir, "outputs", name)
	}
	return dirs
}

// packOutputs packs every declared output's staged directory into
// outputDir (spec §4.E step 9, §4.G).
func packOutputs(ctx context.Context, outputs map[string]wftypes.OutputDecl, stagedDirs map[string]string, outputDir string) ([]wftypes.Output, error) {
	if len(outputs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, wferr.NewSetupError("create output directory", err)
	}
	results := make([]wftypes.Output, 0, len(outputs))
	for name, decl := range outputs {
		out, err := wfpack.PackOutput(ctx, name, stagedDirs[name], outputDir, decl.Packtype)
		if err != nil {
			return nil, wferr.NewRuntimeError(fmt.Sprintf("pack output %q", name), err)
		}
		results = append(results, out)
	}
	return results, nil
}
