package wftypes

import "github.com/warpforge/engine/internal/wfdigest"

// MountKind is the kind of a MountSpec (spec §3).
type MountKind string

const (
	MountBind    MountKind = "bind"
	MountOverlay MountKind = "overlay"
)

// MountSpec describes one mount to be wired into the container (spec §3).
// All paths are absolute by the time a MountSpec is constructed.
type MountSpec struct {
	Destination string
	Kind        MountKind
	Source      string
	Options     []string
}

// ContainerParams is the lowered, runtime-agnostic description of a single
// container invocation (spec §3). Ident is a run-unique opaque token used as
// the bundle directory name and the Runner's event topic.
type ContainerParams struct {
	Ident       string
	RuntimePath string
	Command     []string
	Mounts      map[string]MountSpec // keyed by Destination
	Environment map[string]string
	RootPath    string
}

// Output is one produced, packed artifact (spec §3).
type Output struct {
	Name   string
	Digest wfdigest.Digest
}

// Packtype is the serialization format for an output directory (spec
// GLOSSARY).
type Packtype string

const (
	PacktypeNone Packtype = "none"
	PacktypeTar  Packtype = "tar"
	PacktypeTgz  Packtype = "tgz"
)
