package wftypes

import (
	"fmt"
	"strings"
)

// InputValueKind tags the leaf value of a protoformula/plot input (spec §9
// "Tagged strings as leaf types"). The string form (e.g. "mount:ro:/host",
// "pipe:step:out", "oci:ref") is the canonical wire encoding; this type is
// the typed, parsed representation kept alongside it.
type InputValueKind string

const (
	InputLiteral      InputValueKind = "literal"
	InputMountRO      InputValueKind = "mount_ro"
	InputMountRW      InputValueKind = "mount_rw"
	InputMountOverlay InputValueKind = "mount_overlay"
	InputWare         InputValueKind = "ware"
	InputOCI          InputValueKind = "oci"
	InputPipe         InputValueKind = "pipe"
)

// InputValue is the parsed form of one tagged-string input value.
type InputValue struct {
	Kind InputValueKind

	Literal string // literal:<text>

	MountHost string // mount:{ro,rw,overlay}:<host>

	WarePacktype string // ware:<packtype>:<hash>
	WareHash     string

	OCIRef string // oci:<reference>

	PipeStep   string // pipe:<step>:<output>; "" step = plot-level input
	PipeOutput string
}

// ParseInputValue splits the leading tag (before the first ":") from a raw
// input-value string and parses the remainder per spec §4.B / §9: split on
// ":" with a bounded max-parts count, kind-specific from there on.
func ParseInputValue(raw string) (InputValue, error) {
	tag, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return InputValue{}, fmt.Errorf("input value %q: missing tag", raw)
	}
	switch tag {
	case "literal":
		return InputValue{Kind: InputLiteral, Literal: rest}, nil
	case "mount":
		kindStr, host, ok := strings.Cut(rest, ":")
		if !ok || host == "" {
			return InputValue{}, fmt.Errorf("mount value %q: expected mount:<ro|rw|overlay>:<host>", raw)
		}
		switch kindStr {
		case "ro":
			return InputValue{Kind: InputMountRO, MountHost: host}, nil
		case "rw":
			return InputValue{Kind: InputMountRW, MountHost: host}, nil
		case "overlay":
			return InputValue{Kind: InputMountOverlay, MountHost: host}, nil
		default:
			return InputValue{}, fmt.Errorf("mount value %q: unknown mount kind %q", raw, kindStr)
		}
	case "ware":
		packtype, hash, ok := strings.Cut(rest, ":")
		if !ok || packtype == "" || hash == "" {
			return InputValue{}, fmt.Errorf("ware value %q: expected ware:<packtype>:<hash>", raw)
		}
		return InputValue{Kind: InputWare, WarePacktype: packtype, WareHash: hash}, nil
	case "oci":
		if rest == "" {
			return InputValue{}, fmt.Errorf("oci value %q: missing reference", raw)
		}
		return InputValue{Kind: InputOCI, OCIRef: rest}, nil
	case "pipe":
		step, output, ok := strings.Cut(rest, ":")
		if !ok || output == "" {
			return InputValue{}, fmt.Errorf("pipe value %q: expected pipe:<step>:<output>", raw)
		}
		return InputValue{Kind: InputPipe, PipeStep: step, PipeOutput: output}, nil
	default:
		return InputValue{}, fmt.Errorf("input value %q: unknown tag %q", raw, tag)
	}
}

// String reconstructs the canonical wire encoding.
func (v InputValue) String() string {
	switch v.Kind {
	case InputLiteral:
		return "literal:" + v.Literal
	case InputMountRO:
		return "mount:ro:" + v.MountHost
	case InputMountRW:
		return "mount:rw:" + v.MountHost
	case InputMountOverlay:
		return "mount:overlay:" + v.MountHost
	case InputWare:
		return "ware:" + v.WarePacktype + ":" + v.WareHash
	case InputOCI:
		return "oci:" + v.OCIRef
	case InputPipe:
		return "pipe:" + v.PipeStep + ":" + v.PipeOutput
	default:
		return ""
	}
}

// PortKind distinguishes the two input-port shapes (spec 4.B).
type PortKind int

const (
	PortUnknown PortKind = iota
	PortPath             // "/absolute/path"
	PortEnv              // "$NAME"
)

// ClassifyPort identifies the shape of an input port string.
func ClassifyPort(port string) PortKind {
	switch {
	case strings.HasPrefix(port, "/"):
		return PortPath
	case strings.HasPrefix(port, "$"):
		return PortEnv
	default:
		return PortUnknown
	}
}

// EnvName strips the leading "$" from an env port.
func EnvName(port string) string { return strings.TrimPrefix(port, "$") }
