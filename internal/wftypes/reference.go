package wftypes

import (
	"fmt"

	"github.com/distribution/reference"

	"github.com/warpforge/engine/internal/wfdigest"
)

// Reference is an OCI image reference (registry/repo[:tag][@digest]).
// Grounded on kernel-hypeman's lib/images/reference.go normalization, backed
// by distribution/reference for structural parsing without any network
// access — used both by the validator (4.H, no I/O) and the image store
// (4.A, before a registry round-trip).
type Reference struct {
	raw    string
	digest string // "" if not a digest reference
}

// ParseReference parses and normalizes an image reference string. It does
// not contact a registry.
func ParseReference(s string) (Reference, error) {
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return Reference{}, fmt.Errorf("parse image reference %q: %w", s, err)
	}
	if canonical, ok := named.(reference.Canonical); ok {
		return Reference{raw: canonical.String(), digest: canonical.Digest().String()}, nil
	}
	return Reference{raw: reference.TagNameOnly(named).String()}, nil
}

// HasDigest reports whether the reference pins a manifest digest.
func (r Reference) HasDigest() bool { return r.digest != "" }

// Digest returns the pinned digest, or the zero Digest if none.
func (r Reference) Digest() wfdigest.Digest { return wfdigest.Digest(r.digest) }

func (r Reference) String() string { return r.raw }

// RequireDigest parses a reference and additionally enforces that a digest
// is present, as required at the top-level plot input boundary (spec §3).
func RequireDigest(s string) (Reference, error) {
	ref, err := ParseReference(s)
	if err != nil {
		return Reference{}, err
	}
	if !ref.HasDigest() {
		return Reference{}, fmt.Errorf("image reference %q must pin a digest", s)
	}
	return ref, nil
}
