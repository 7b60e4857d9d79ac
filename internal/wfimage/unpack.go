package wfimage

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/warpforge/engine/internal/wfdigest"
	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/internal/wftypes"
)

// Unpack creates the target bundle directory and extracts every layer of
// data into a rootfs subdirectory, verifying each layer's hash against its
// declared diff_id (spec §4.A "Unpack").
func Unpack(data *wftypes.ImageData, bundleDir string) (rootfsDir string, layerDigests []wfdigest.Digest, err error) {
	if err := ensureEmptyBundleDir(bundleDir); err != nil {
		return "", nil, err
	}
	rootfsDir = filepath.Join(bundleDir, "rootfs")
	if err := os.Mkdir(rootfsDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create rootfs dir: %w", err)
	}

	for i, layer := range data.Layers {
		if layer.DiffID.Algorithm() != wfdigest.SHA256 {
			return "", nil, wferr.ErrUnsupportedFeature
		}
		digest, err := extractLayer(layer, rootfsDir)
		if err != nil {
			return "", nil, fmt.Errorf("extract layer %d: %w", i, err)
		}
		if digest != layer.DiffID {
			return "", nil, fmt.Errorf("%w: layer %d", wferr.ErrLayerDiffIDMismatch, i)
		}
		layerDigests = append(layerDigests, digest)
	}

	epoch := time.Unix(0, 0)
	if err := os.Chtimes(bundleDir, epoch, epoch); err != nil {
		return "", nil, fmt.Errorf("set bundle epoch time: %w", err)
	}
	return rootfsDir, layerDigests, nil
}

// ensureEmptyBundleDir creates bundleDir, refusing to proceed if it
// already exists and is non-empty (spec §4.A "refuse to proceed if
// non-empty").
func ensureEmptyBundleDir(bundleDir string) error {
	entries, err := os.ReadDir(bundleDir)
	switch {
	case err == nil:
		if len(entries) > 0 {
			return wferr.ErrTargetNotEmpty
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(bundleDir, 0o700); err != nil {
			return fmt.Errorf("create bundle dir: %w", err)
		}
	default:
		return fmt.Errorf("stat bundle dir: %w", err)
	}
	return os.Chmod(bundleDir, 0o700)
}

// extractLayer extracts layer.Bytes into rootfsDir, gzip-decoding first
// when the layer's media type requires it, and tees the uncompressed tar
// stream through a SHA-256 digester so the result is comparable with the
// layer's diff_id. Trailing bytes after the tar's logical end are drained
// so the digest accounts for the whole tar stream (spec §4.A "drain
// trailing bytes").
func extractLayer(layer wftypes.Layer, rootfsDir string) (wfdigest.Digest, error) {
	var src io.Reader = bytes.NewReader(layer.Bytes)
	if layer.MediaType.Gzipped() {
		gzr, err := gzip.NewReader(src)
		if err != nil {
			return "", fmt.Errorf("open gzip layer: %w", err)
		}
		defer gzr.Close()
		src = gzr
	}

	digester, err := wfdigest.NewVerifier(wfdigest.SHA256)
	if err != nil {
		return "", err
	}
	tee := io.TeeReader(src, digester)

	if err := extractTar(tee, rootfsDir); err != nil {
		return "", err
	}
	// Drain anything left in the uncompressed tar stream so every byte of
	// it feeds the digester.
	if _, err := io.Copy(io.Discard, tee); err != nil {
		return "", fmt.Errorf("drain layer stream: %w", err)
	}
	return digester.Digest(), nil
}

// extractTar extracts a tar stream into destDir, rejecting entries that
// would escape destDir via path traversal or a malicious symlink (spec
// §4.A; safety grounded on the path-sanitization approach of
// kernel-hypeman's volumes.ExtractTarGz, upgraded here to use
// filepath-securejoin for the join itself).
func extractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		target, err := securejoin.SecureJoin(destDir, hdr.Name)
		if err != nil {
			return fmt.Errorf("resolve tar entry %q: %w", hdr.Name, err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode&0o777)); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeReg, tar.TypeRegA:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkdir parent of %s: %w", target, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			_, copyErr := io.Copy(f, tr)
			closeErr := f.Close()
			if copyErr != nil {
				return fmt.Errorf("write %s: %w", target, copyErr)
			}
			if closeErr != nil {
				return fmt.Errorf("close %s: %w", target, closeErr)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkdir parent of %s: %w", target, err)
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("symlink %s: %w", target, err)
			}
		case tar.TypeLink:
			linkTarget, err := securejoin.SecureJoin(destDir, hdr.Linkname)
			if err != nil {
				return fmt.Errorf("resolve hardlink target %q: %w", hdr.Linkname, err)
			}
			_ = os.Remove(target)
			if err := os.Link(linkTarget, target); err != nil {
				return fmt.Errorf("hardlink %s: %w", target, err)
			}
		default:
			// Device nodes, fifos, etc. are not reproduced; images that
			// require them are out of scope.
		}
	}
}
