package wfplot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"sort"

	"github.com/google/uuid"

	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/internal/wfexec"
	"github.com/warpforge/engine/internal/wfimage"
	"github.com/warpforge/engine/internal/wfpack"
	"github.com/warpforge/engine/internal/wfrunner"
	"github.com/warpforge/engine/internal/wftypes"
)

// Context carries the run-wide configuration the scheduler hands down to
// each step's formula executor (spec §3 "Lifecycle", §4.F, §6).
type Context struct {
	RuntimePath   string
	MountBase     string
	OutputDir     string
	WorkspaceBase string
	Cache         *wfimage.Cache
}

// stepOutputs records, per step, the absolute path of each declared
// output's staged directory, <workspace>/<step>/outputs/<name>, where the
// step's container wrote it; the directory is not moved (spec §4.F step 5).
type stepOutputs map[string]map[string]string

// RunPlot builds the plot's dependency graph, validates it, and runs every
// step in topological order, finally packing plot-level outputs (spec §4.F
// "run_plot"). events receives every wfrunner.Event from every step's
// container; it is never closed by RunPlot.
func RunPlot(ctx context.Context, plot *wftypes.Plot, runCtx Context, events chan<- wfrunner.Event) ([]wftypes.Output, error) {
	g := BuildGraph(plot)
	if err := ValidateDependenciesExist(g); err != nil {
		return nil, wferr.NewSetupCauselessError(err.Error())
	}
	order, err := TopoSort(g)
	if err != nil {
		return nil, wferr.NewSetupCauselessError(err.Error())
	}

	workspace, err := initWorkspace(runCtx.WorkspaceBase)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workspace)

	produced := stepOutputs{}
	for _, name := range order {
		step := plot.Steps[name]
		resolved, err := resolveStepInputs(step, plot, workspace, produced)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", name, err)
		}
		step.Inputs = resolved
		if step.Image == "" {
			step.Image = plot.Image
		}

		stepDir := filepath.Join(workspace, name)
		execCtx := wfexec.Context{
			RuntimePath: runCtx.RuntimePath,
			MountBase:   runCtx.MountBase,
			Cache:       runCtx.Cache,
		}
		staged, err := wfexec.Run(ctx, execCtx, stepIdent(name), stepDir, step, events)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", name, err)
		}

		produced[name] = staged
	}

	return packPlotOutputs(ctx, plot, produced, runCtx.OutputDir)
}

// initWorkspace creates a fresh run-scoped temporary root (spec §3
// "Lifecycle" - "removed on completion").
func initWorkspace(base string) (string, error) {
	root := base
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "wf-run-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", wferr.NewSetupError("create run workspace", err)
	}
	return dir, nil
}

// stepIdent derives a run-unique container ident from the step name (spec
// §3 "ContainerParams.ident").
func stepIdent(stepName string) string {
	return "wf-" + stepName + "-" + uuid.NewString()
}

// resolveStepInputs substitutes each pipe input with the plot-level input
// it names (`pipe::<name>`) or a read-only bind of a prior step's output
// directory (`pipe:S:O`) (spec §4.F step 5).
func resolveStepInputs(step wftypes.Protoformula, plot *wftypes.Plot, workspace string, produced stepOutputs) (map[string]wftypes.InputValue, error) {
	resolved := make(map[string]wftypes.InputValue, len(step.Inputs))
	for port, val := range step.Inputs {
		if val.Kind != wftypes.InputPipe {
			resolved[port] = val
			continue
		}
		if val.PipeStep == "" {
			plotVal, ok := plot.Inputs[val.PipeOutput]
			if !ok {
				return nil, fmt.Errorf("pipe ::%s references undeclared plot input %q", val.PipeOutput, val.PipeOutput)
			}
			resolved[port] = plotVal
			continue
		}
		dirs, ok := produced[val.PipeStep]
		if !ok {
			return nil, fmt.Errorf("pipe %s:%s references a step that has not run", val.PipeStep, val.PipeOutput)
		}
		dir, ok := dirs[val.PipeOutput]
		if !ok {
			return nil, fmt.Errorf("pipe %s:%s references an undeclared output", val.PipeStep, val.PipeOutput)
		}
		resolved[port] = wftypes.InputValue{Kind: wftypes.InputMountRO, MountHost: dir}
	}
	return resolved, nil
}

// packPlotOutputs packs every plot-level output (each a pipe:step:out
// reference) into outputDir (spec §4.F step 6).
func packPlotOutputs(ctx context.Context, plot *wftypes.Plot, produced stepOutputs, outputDir string) ([]wftypes.Output, error) {
	if len(plot.Outputs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, wferr.NewSetupError("create plot output directory", err)
	}
	results := make([]wftypes.Output, 0, len(plot.Outputs))
	for _, label := range sortedKeys(plot.Outputs) {
		val := plot.Outputs[label]
		if val.Kind != wftypes.InputPipe || val.PipeStep == "" {
			return nil, fmt.Errorf("plot output %q must be a pipe:step:out reference", label)
		}
		dirs, ok := produced[val.PipeStep]
		if !ok {
			return nil, fmt.Errorf("plot output %q references a step that did not run", label)
		}
		dir, ok := dirs[val.PipeOutput]
		if !ok {
			return nil, fmt.Errorf("plot output %q references an undeclared output", label)
		}
		sourceStep, ok := plot.Steps[val.PipeStep]
		if !ok {
			return nil, fmt.Errorf("plot output %q references undeclared step %q", label, val.PipeStep)
		}
		decl, ok := sourceStep.Outputs[val.PipeOutput]
		if !ok {
			return nil, fmt.Errorf("plot output %q: step %q never declared output %q", label, val.PipeStep, val.PipeOutput)
		}
		out, err := wfpack.PackOutput(ctx, label, dir, outputDir, decl.Packtype)
		if err != nil {
			return nil, wferr.NewRuntimeError(fmt.Sprintf("pack plot output %q", label), err)
		}
		results = append(results, out)
	}
	return results, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
