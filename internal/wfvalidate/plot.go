package wfvalidate

import (
	"sort"

	"github.com/warpforge/engine/internal/wfjson"
	"github.com/warpforge/engine/internal/wftypes"
)

// plotEnvelopeKey is the versioned top-level key a plot document is
// wrapped in, parallel to formulaEnvelopeKey (spec §4.H "plot variant").
const plotEnvelopeKey = "plot.plot.v1"

// ValidatePlot runs the full validate_plot pipeline (spec §4.H), including
// the plot-specific pipe-validity checks of §4.F/§4.B.
func ValidatePlot(source []byte) (*wftypes.Plot, []*Error) {
	root, trailingCommas, err := wfjson.ParseLenient(source)
	if err != nil {
		return nil, []*Error{syntaxError(err)}
	}

	c := &checker{root: root}
	for _, span := range trailingCommas {
		c.errors = append(c.errors, &Error{Kind: KindTrailingComma, Span: span, Message: "trailing comma recovered during parsing"})
	}

	if root.Kind != wfjson.KindObject {
		c.fail(nil, TargetValue, "document must be a JSON object")
		return nil, c.errors
	}
	body := c.object(root, nil, plotEnvelopeKey)
	if body == nil {
		return nil, c.errors
	}
	path := []pathStep{plotEnvelopeKey}

	plot := &wftypes.Plot{}
	if img, ok := c.optionalString(body, path, "image"); ok {
		c.checkImageRef(img, withKey(path, "image"), true)
		plot.Image = img
	}
	plot.Inputs = c.checkInputs(body, path, false)

	stepsVal := c.object(body, path, "steps")
	steps := map[string]wftypes.Protoformula{}
	var stepOrder []string
	if stepsVal != nil {
		stepsPath := withKey(path, "steps")
		for _, entry := range stepsVal.Object {
			name := entry.Key
			stepOrder = append(stepOrder, name)
			stepPath := withKey(stepsPath, name)
			if entry.Value.Kind != wfjson.KindObject {
				c.fail(stepPath, TargetValue, "step %q must be an object", name)
				continue
			}
			step := wftypes.Protoformula{}
			if img, ok := c.optionalString(entry.Value, stepPath, "image"); ok {
				c.checkImageRef(img, withKey(stepPath, "image"), false)
				step.Image = img
			}
			step.Inputs = c.checkInputs(entry.Value, stepPath, true)
			step.Action = c.checkAction(entry.Value, stepPath)
			step.Outputs = c.checkOutputs(entry.Value, stepPath)
			steps[name] = step
		}
	}
	plot.Steps = steps
	plot.StepOrder = stepOrder

	outputsVal := c.optionalObject(body, path, "outputs")
	outputs := map[string]wftypes.InputValue{}
	if outputsVal != nil {
		outputsPath := withKey(path, "outputs")
		for _, entry := range outputsVal.Object {
			label := entry.Key
			entryPath := withKey(outputsPath, label)
			if entry.Value.Kind != wfjson.KindString {
				c.fail(entryPath, TargetValue, "plot output %q must be a string", label)
				continue
			}
			val, err := wftypes.ParseInputValue(entry.Value.Str)
			if err != nil || val.Kind != wftypes.InputPipe {
				c.fail(entryPath, TargetValue, "plot output %q must be a \"pipe:step:output\" value", label)
				continue
			}
			outputs[label] = val
		}
	}
	plot.Outputs = outputs

	c.checkPipeValidity(plot)

	if len(c.errors) > 0 {
		return nil, c.errors
	}
	return plot, nil
}

// checkPipeValidity enforces spec §3 "PlotGraph" / §4.F invariants that
// are only checkable once every step and the plot-level inputs are known:
// every pipe's step resolves to a node (or, when empty, to a declared
// plot-level input), and every step-sourced pipe names an output that
// step actually declares.
func (c *checker) checkPipeValidity(plot *wftypes.Plot) {
	path := []pathStep{plotEnvelopeKey}
	stepsPath := withKey(path, "steps")

	checkOne := func(val wftypes.InputValue, errPath []pathStep) {
		if val.Kind != wftypes.InputPipe {
			return
		}
		if val.PipeStep == "" {
			if _, ok := plot.Inputs[val.PipeOutput]; !ok {
				c.fail(errPath, TargetValue, "pipe references plot-level input %q which does not exist", val.PipeOutput)
			}
			return
		}
		step, ok := plot.Steps[val.PipeStep]
		if !ok {
			c.fail(errPath, TargetValue, "pipe references step %q which does not exist", val.PipeStep)
			return
		}
		if _, ok := step.Outputs[val.PipeOutput]; !ok {
			c.fail(errPath, TargetValue, "pipe references output %q which step %q does not declare", val.PipeOutput, val.PipeStep)
		}
	}

	for _, name := range sortedKeys(plot.Steps) {
		step := plot.Steps[name]
		inputsPath := withKey(withKey(stepsPath, name), "inputs")
		for _, port := range sortedKeys(step.Inputs) {
			checkOne(step.Inputs[port], withKey(inputsPath, port))
		}
	}
	outputsPath := withKey(path, "outputs")
	for _, label := range sortedKeys(plot.Outputs) {
		checkOne(plot.Outputs[label], withKey(outputsPath, label))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
