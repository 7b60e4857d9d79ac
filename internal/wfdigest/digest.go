// Package wfdigest implements the content-addressed digest type shared by the
// image store (SHA-256, OCI blobs) and the packer (SHA-384, produced
// artifacts), plus the tee-while-hashing primitive used by both.
package wfdigest

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
)

func (a Algorithm) new() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, a)
	}
}

// ErrUnsupportedAlgorithm is returned for any algorithm other than the two
// supported here. The spec calls this out as DigestNotSupported in the cache
// path and UnsupportedFeature elsewhere; callers map it accordingly.
var ErrUnsupportedAlgorithm = fmt.Errorf("unsupported digest algorithm")

// Digest is an algorithm-tagged hex string, e.g. "sha256:abc123..." or
// "sha384:abc123...".
type Digest string

// New constructs a Digest from an algorithm and raw hex.
func New(algo Algorithm, hex string) Digest {
	return Digest(string(algo) + ":" + hex)
}

// Parse splits a digest string into algorithm and hex, validating the hex
// part is present and at least 4 characters (per the spec's blob_path
// requirement).
func Parse(s string) (Algorithm, string, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[1]) < 4 {
		return "", "", fmt.Errorf("malformed digest %q", s)
	}
	return Algorithm(parts[0]), parts[1], nil
}

// Algorithm returns the algorithm portion of the digest.
func (d Digest) Algorithm() Algorithm {
	algo, _, _ := Parse(string(d))
	return algo
}

// Hex returns the hex portion of the digest, stripping the algorithm prefix.
func (d Digest) Hex() string {
	_, hex, _ := Parse(string(d))
	return hex
}

func (d Digest) String() string { return string(d) }

// Verifier hashes bytes written to it and reports whether the accumulated
// digest matches an expected value.
type Verifier struct {
	algo Algorithm
	h    hash.Hash
}

// NewVerifier creates a Verifier for algo. Returns ErrUnsupportedAlgorithm for
// any algorithm other than SHA256/SHA384.
func NewVerifier(algo Algorithm) (*Verifier, error) {
	h, err := algo.new()
	if err != nil {
		return nil, err
	}
	return &Verifier{algo: algo, h: h}, nil
}

func (v *Verifier) Write(p []byte) (int, error) { return v.h.Write(p) }

// Digest returns the accumulated digest.
func (v *Verifier) Digest() Digest {
	return New(v.algo, fmt.Sprintf("%x", v.h.Sum(nil)))
}

// Matches reports whether the accumulated digest equals want.
func (v *Verifier) Matches(want Digest) bool {
	return v.Digest() == want
}

// TeeReader hashes every byte read from r with algo while also copying it to
// w (e.g. a tar extractor and a digester simultaneously, or a file and a
// digester). Call Digest after fully draining the returned reader.
type TeeReader struct {
	io.Reader
	v *Verifier
}

// NewTeeReader wraps r so reads are both hashed (algo) and copied to w.
func NewTeeReader(r io.Reader, w io.Writer, algo Algorithm) (*TeeReader, error) {
	v, err := NewVerifier(algo)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(w, v)
	return &TeeReader{Reader: io.TeeReader(r, mw), v: v}, nil
}

// Digest returns the digest accumulated so far. Only meaningful once the
// wrapped reader has been fully consumed.
func (t *TeeReader) Digest() Digest { return t.v.Digest() }

// TeeWriter hashes every byte written to it with algo while also forwarding
// it to the wrapped writer.
type TeeWriter struct {
	w io.Writer
	v *Verifier
}

// NewTeeWriter wraps w so writes are both hashed (algo) and forwarded.
func NewTeeWriter(w io.Writer, algo Algorithm) (*TeeWriter, error) {
	v, err := NewVerifier(algo)
	if err != nil {
		return nil, err
	}
	return &TeeWriter{w: w, v: v}, nil
}

func (t *TeeWriter) Write(p []byte) (int, error) {
	if _, err := t.v.Write(p); err != nil {
		return 0, err
	}
	return t.w.Write(p)
}

// Digest returns the digest accumulated from all bytes written so far.
func (t *TeeWriter) Digest() Digest { return t.v.Digest() }
