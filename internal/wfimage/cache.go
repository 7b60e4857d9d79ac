// Package wfimage implements the content-addressed OCI image cache and
// layer unpacker (spec §4.A).
package wfimage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/warpforge/engine/internal/wfdigest"
	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/utils"
)

// indexEntry is the per-reference record in index.json (spec §3
// "ImageCache").
type indexEntry struct {
	ManifestDigest string `json:"manifest_digest"`
}

// cacheIndex is the top-level shape of index.json.
type cacheIndex struct {
	Images map[string]indexEntry `json:"images"`
}

func (idx *cacheIndex) Init() {
	if idx.Images == nil {
		idx.Images = map[string]indexEntry{}
	}
}

// Cache is an on-disk, content-addressed store of OCI manifests/layers
// rooted at Dir (spec §3 "ImageCache", §6 "On-disk cache").
type Cache struct {
	Dir          string
	LockDeadline time.Duration
}

func NewCache(dir string) *Cache { return &Cache{Dir: dir} }

func (c *Cache) indexPath() string { return filepath.Join(c.Dir, "index.json") }
func (c *Cache) lockPath() string  { return filepath.Join(c.Dir, "index.lock") }

// BlobPath returns the on-disk path for a digest, hashing the path into
// two levels of 2-hex-character directories (spec §3, §6 "blob_path").
// Only sha256 is supported; the hex part must be at least 4 characters.
func (c *Cache) BlobPath(d wfdigest.Digest) (string, error) {
	if d.Algorithm() != wfdigest.SHA256 {
		return "", wferr.ErrDigestNotSupported
	}
	hex := d.Hex()
	if len(hex) < 4 {
		return "", fmt.Errorf("blob_path: digest hex %q too short", hex)
	}
	return filepath.Join(c.Dir, "blobs", "sha256", hex[:2], hex[2:4], hex), nil
}

func (c *Cache) withIndex(ctx context.Context, fn func(*cacheIndex) error) error {
	lock := NewCacheLock(c.lockPath(), c.LockDeadline)
	return WithLock(ctx, lock, func() error {
		var idx cacheIndex
		raw, err := os.ReadFile(c.indexPath())
		switch {
		case err == nil:
			if jsonErr := json.Unmarshal(raw, &idx); jsonErr != nil {
				return fmt.Errorf("parse cache index: %w", jsonErr)
			}
		case os.IsNotExist(err):
			// zero-value idx, initialized below
		default:
			return fmt.Errorf("read cache index: %w", err)
		}
		idx.Init()
		return fn(&idx)
	})
}

// updateIndex performs a read-modify-write under the cache lock.
func (c *Cache) updateIndex(ctx context.Context, fn func(*cacheIndex) error) error {
	return c.withIndex(ctx, func(idx *cacheIndex) error {
		if err := fn(idx); err != nil {
			return err
		}
		if err := os.MkdirAll(c.Dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
		// index.json is rewritten via temp-file-then-rename-then-fsync-parent
		// so a crash never leaves a half-written index behind (spec §3
		// invariant "index is rewritten atomically").
		return utils.AtomicWriteJSON(c.indexPath(), idx)
	})
}

// verifyBlob re-hashes the blob on disk at path and fails CorruptCacheBlob
// if it doesn't match want (spec §3 invariant: "stored/cached blobs are
// re-hashed and verified against their claimed digest on read").
func verifyBlob(path string, want wfdigest.Digest) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open blob %s: %w", path, err)
	}
	defer f.Close()
	v, err := wfdigest.NewVerifier(want.Algorithm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(v, f); err != nil {
		return fmt.Errorf("hash blob %s: %w", path, err)
	}
	if !v.Matches(want) {
		return wferr.ErrCorruptCacheBlob
	}
	return nil
}
