// Package wfpack produces deterministic tar (optionally gzipped) archives
// of an output directory while teeing the written bytes through a SHA-384
// digester (spec §4.G).
package wfpack

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	units "github.com/docker/go-units"
	"github.com/klauspost/compress/gzip"

	"github.com/projecteru2/core/log"

	"github.com/warpforge/engine/internal/wfdigest"
	"github.com/warpforge/engine/internal/wftypes"
)

// deterministic header fields, chosen once and held fixed so identical
// directory contents always produce an identical tar stream (spec §4.G
// "stable owner/group ids, stable timestamps").
const (
	deterministicUID  = 0
	deterministicGID  = 0
	deterministicUser = "root"
)

var epoch = time.Unix(0, 0).UTC()

// TarDir writes a deterministic tar of dir to w: entries sorted by path,
// owner/group pinned to root:root, and mtimes pinned to the Unix epoch.
func TarDir(w io.Writer, dir string) error {
	tw := tar.NewWriter(w)
	if err := writeTarEntries(tw, dir); err != nil {
		return err
	}
	return tw.Close()
}

func writeTarEntries(tw *tar.Writer, dir string) error {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk output dir: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("build header for %s: %w", path, err)
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = deterministicUID, deterministicGID
		hdr.Uname, hdr.Gname = deterministicUser, deterministicUser
		hdr.ModTime = epoch
		hdr.AccessTime = epoch
		hdr.ChangeTime = epoch
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header for %s: %w", path, err)
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			_, err = io.Copy(tw, f)
			f.Close()
			if err != nil {
				return fmt.Errorf("copy %s into archive: %w", path, err)
			}
		}
	}
	return nil
}

// TarDirHashOnly computes the SHA-384 digest of dir's deterministic tar
// serialization without retaining the bytes (spec §4.G).
func TarDirHashOnly(name, dir string) (wftypes.Output, error) {
	digester, err := wfdigest.NewVerifier(wfdigest.SHA384)
	if err != nil {
		return wftypes.Output{}, err
	}
	if err := TarDir(digester, dir); err != nil {
		return wftypes.Output{}, err
	}
	return wftypes.Output{Name: name, Digest: digester.Digest()}, nil
}

// TarDirToFile tars dir into dst while teeing the written bytes through a
// SHA-384 digester, returning the resulting Output (spec §4.G).
func TarDirToFile(name, dir, dst string) (wftypes.Output, error) {
	f, err := os.Create(dst)
	if err != nil {
		return wftypes.Output{}, fmt.Errorf("create output file %s: %w", dst, err)
	}
	defer f.Close()

	tee, err := wfdigest.NewTeeWriter(f, wfdigest.SHA384)
	if err != nil {
		return wftypes.Output{}, err
	}
	if err := TarDir(tee, dir); err != nil {
		return wftypes.Output{}, err
	}
	return wftypes.Output{Name: name, Digest: tee.Digest()}, nil
}

// TarGzDirToFile wraps TarDirToFile's tar stream in a gzip encoder before
// the tee, per the "tgz" packtype. The digest is computed over the
// compressed bytes actually written to dst — the implementer's documented
// choice for this packtype (spec §4.G note; recorded in DESIGN.md).
func TarGzDirToFile(name, dir, dst string) (wftypes.Output, error) {
	f, err := os.Create(dst)
	if err != nil {
		return wftypes.Output{}, fmt.Errorf("create output file %s: %w", dst, err)
	}
	defer f.Close()

	tee, err := wfdigest.NewTeeWriter(f, wfdigest.SHA384)
	if err != nil {
		return wftypes.Output{}, err
	}
	gw := gzip.NewWriter(tee)
	if err := TarDir(gw, dir); err != nil {
		gw.Close()
		return wftypes.Output{}, err
	}
	if err := gw.Close(); err != nil {
		return wftypes.Output{}, fmt.Errorf("close gzip writer: %w", err)
	}
	return wftypes.Output{Name: name, Digest: tee.Digest()}, nil
}

// PackOutput dispatches on packtype (spec §4.G). For PacktypeNone the
// staged directory is moved into place unchanged and the returned digest
// is still computed over the deterministic tar serialization, for
// identification purposes only — no archive file is written.
func PackOutput(ctx context.Context, name, stagedDir, outputDir string, packtype wftypes.Packtype) (wftypes.Output, error) {
	var (
		out wftypes.Output
		err error
	)
	switch packtype {
	case wftypes.PacktypeNone:
		dst := filepath.Join(outputDir, name)
		if err := os.Rename(stagedDir, dst); err != nil {
			return wftypes.Output{}, fmt.Errorf("move staged output %s into place: %w", stagedDir, err)
		}
		out, err = TarDirHashOnly(name, dst)
	case wftypes.PacktypeTar:
		out, err = TarDirToFile(name, stagedDir, filepath.Join(outputDir, name))
	case wftypes.PacktypeTgz:
		out, err = TarGzDirToFile(name, stagedDir, filepath.Join(outputDir, name))
	default:
		return wftypes.Output{}, fmt.Errorf("unsupported packtype %q", packtype)
	}
	if err != nil {
		return wftypes.Output{}, err
	}
	if packtype != wftypes.PacktypeNone {
		if info, statErr := os.Stat(filepath.Join(outputDir, name)); statErr == nil {
			log.WithFunc("wfpack.PackOutput").Infof(ctx, "packed output %q (%s): %s", name, packtype, units.HumanSize(float64(info.Size())))
		}
	}
	return out, nil
}
