package wfvalidate

import (
	"github.com/warpforge/engine/internal/wfjson"
	"github.com/warpforge/engine/internal/wftypes"
)

// allowedPacktypes is the packtype set an output declaration may name
// (spec §4.G).
var allowedPacktypes = map[string]wftypes.Packtype{
	"none": wftypes.PacktypeNone,
	"tar":  wftypes.PacktypeTar,
	"tgz":  wftypes.PacktypeTgz,
}

// checkImageRef validates an image reference string, optionally requiring
// a pinned digest (top-level plot/formula boundary, spec §3 "Reference").
func (c *checker) checkImageRef(raw string, path []pathStep, requireDigest bool) {
	var err error
	if requireDigest {
		_, err = wftypes.RequireDigest(raw)
	} else {
		_, err = wftypes.ParseReference(raw)
	}
	if err != nil {
		c.fail(path, TargetValue, "%v", err)
	}
}

// checkPort validates an input port key's shape (spec §4.B).
func (c *checker) checkPort(port string, path []pathStep) {
	if wftypes.ClassifyPort(port) == wftypes.PortUnknown {
		c.fail(path, TargetKey, "input port %q must start with '/' or '$'", port)
	}
}

// checkInputValue validates and parses one input-value string. allowPipe
// gates whether a `pipe:` tag is acceptable at this site (only plot steps
// may use pipes, spec §4.B/§4.F).
func (c *checker) checkInputValue(port, raw string, path []pathStep, allowPipe bool) (wftypes.InputValue, bool) {
	val, err := wftypes.ParseInputValue(raw)
	if err != nil {
		c.fail(path, TargetValue, "%v", err)
		return wftypes.InputValue{}, false
	}
	switch val.Kind {
	case wftypes.InputLiteral:
		if wftypes.ClassifyPort(port) != wftypes.PortEnv {
			c.fail(path, TargetValue, "literal values are only valid for \"$NAME\" ports")
			return val, false
		}
	case wftypes.InputOCI:
		if port != "/" {
			c.fail(path, TargetValue, "oci: values are only valid for the \"/\" port")
			return val, false
		}
		c.checkImageRef(val.OCIRef, path, false)
	case wftypes.InputPipe:
		if !allowPipe {
			c.fail(path, TargetValue, "pipe: values are not allowed here")
			return val, false
		}
	case wftypes.InputWare:
		// contract-only per spec §4.B; no further structural validation.
	}
	return val, true
}

// checkInputs walks an "inputs" object, validating each port/value pair.
func (c *checker) checkInputs(parent *wfjson.Value, path []pathStep, allowPipe bool) map[string]wftypes.InputValue {
	inputsPath := withKey(path, "inputs")
	inputsVal := parent.Get("inputs")
	if inputsVal == nil {
		return map[string]wftypes.InputValue{}
	}
	if inputsVal.Kind != wfjson.KindObject {
		c.fail(inputsPath, TargetValue, "field %q must be an object", "inputs")
		return nil
	}
	out := make(map[string]wftypes.InputValue, len(inputsVal.Object))
	for _, entry := range inputsVal.Object {
		port := entry.Key
		entryPath := withKey(inputsPath, port)
		c.checkPort(port, entryPath)
		if entry.Value.Kind != wfjson.KindString {
			c.fail(entryPath, TargetValue, "input value for port %q must be a string", port)
			continue
		}
		if val, ok := c.checkInputValue(port, entry.Value.Str, entryPath, allowPipe); ok {
			out[port] = val
		}
	}
	return out
}

// checkAction validates the "action" field: exactly one of echo/exec/script.
func (c *checker) checkAction(parent *wfjson.Value, path []pathStep) wftypes.Action {
	actionPath := withKey(path, "action")
	actionVal := parent.Get("action")
	if actionVal == nil {
		c.fail(path, TargetKey, "missing required field %q", "action")
		return wftypes.Action{}
	}
	if actionVal.Kind != wfjson.KindObject {
		c.fail(actionPath, TargetValue, "field %q must be an object", "action")
		return wftypes.Action{}
	}
	_, hasEcho := indexEntry(actionVal, "echo")
	_, hasExec := indexEntry(actionVal, "exec")
	_, hasScript := indexEntry(actionVal, "script")
	count := boolToInt(hasEcho) + boolToInt(hasExec) + boolToInt(hasScript)
	if count != 1 {
		c.fail(actionPath, TargetValue, "action must have exactly one of \"echo\", \"exec\", \"script\"")
		return wftypes.Action{}
	}
	switch {
	case hasEcho:
		return wftypes.Action{Kind: wftypes.ActionEcho}
	case hasExec:
		cmd, ok := c.stringArray(actionVal, actionPath, "exec")
		if !ok || len(cmd) == 0 {
			c.fail(withKey(actionPath, "exec"), TargetValue, "\"exec\" must be a non-empty array of strings")
			return wftypes.Action{Kind: wftypes.ActionExec}
		}
		return wftypes.Action{Kind: wftypes.ActionExec, Exec: &wftypes.ExecAction{Command: cmd}}
	default:
		scriptVal := actionVal.Get("script")
		scriptPath := withKey(actionPath, "script")
		if scriptVal.Kind != wfjson.KindObject {
			c.fail(scriptPath, TargetValue, "\"script\" must be an object")
			return wftypes.Action{Kind: wftypes.ActionScript}
		}
		interp, ok := c.string(scriptVal, scriptPath, "interpreter")
		if ok && len(interp) == 0 || (ok && interp[0] != '/') {
			c.fail(withKey(scriptPath, "interpreter"), TargetValue, "\"interpreter\" must be an absolute path")
		}
		contents, _ := c.stringArray(scriptVal, scriptPath, "contents")
		return wftypes.Action{Kind: wftypes.ActionScript, Script: &wftypes.ScriptAction{Interpreter: interp, Contents: contents}}
	}
}

func indexEntry(v *wfjson.Value, key string) (*wfjson.Entry, bool) {
	e := v.Entry(key)
	return e, e != nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// checkOutputs validates an "outputs" object: {name: {from, packtype}}.
func (c *checker) checkOutputs(parent *wfjson.Value, path []pathStep) map[string]wftypes.OutputDecl {
	outputsPath := withKey(path, "outputs")
	outputsVal := parent.Get("outputs")
	if outputsVal == nil {
		return map[string]wftypes.OutputDecl{}
	}
	if outputsVal.Kind != wfjson.KindObject {
		c.fail(outputsPath, TargetValue, "field %q must be an object", "outputs")
		return nil
	}
	out := make(map[string]wftypes.OutputDecl, len(outputsVal.Object))
	for _, entry := range outputsVal.Object {
		name := entry.Key
		entryPath := withKey(outputsPath, name)
		if entry.Value.Kind != wfjson.KindObject {
			c.fail(entryPath, TargetValue, "output %q must be an object", name)
			continue
		}
		from, ok := c.string(entry.Value, entryPath, "from")
		if ok && (len(from) == 0 || from[0] != '/') {
			c.fail(withKey(entryPath, "from"), TargetValue, "output %q \"from\" must be absolute", name)
		}
		packStr, ok := c.string(entry.Value, entryPath, "packtype")
		if !ok {
			continue
		}
		pack, known := allowedPacktypes[packStr]
		if !known {
			c.fail(withKey(entryPath, "packtype"), TargetValue, "output %q packtype %q is not supported", name, packStr)
			continue
		}
		out[name] = wftypes.OutputDecl{From: from, Packtype: pack}
	}
	return out
}
