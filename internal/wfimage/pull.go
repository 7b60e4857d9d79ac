package wfimage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	specsv1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/warpforge/engine/internal/wfdigest"
	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/internal/wftypes"
	"github.com/warpforge/engine/utils"
)

// Resolve returns the ImageData for ref, consulting cache (if non-nil)
// before contacting a registry (spec §4.A "unpack(reference, cache?)").
// A cache read that fails with CorruptCacheBlob is re-read once by resolve.
func Resolve(ctx context.Context, ref wftypes.Reference, cache *Cache) (*wftypes.ImageData, error) {
	return resolve(ctx, ref, cache, false)
}

func resolve(ctx context.Context, ref wftypes.Reference, cache *Cache, retried bool) (*wftypes.ImageData, error) {
	if cache != nil {
		data, ok, err := lookupCache(cache, ref)
		if err != nil {
			// A corrupt cache blob is retried exactly once: the caller may
			// have raced a concurrent writer finishing an install; a second
			// failure is fatal (spec §5, SPEC_FULL.md supplement).
			if !retried && errors.Is(err, wferr.ErrCorruptCacheBlob) {
				return resolve(ctx, ref, cache, true)
			}
			return nil, err
		}
		if ok {
			return data, nil
		}
	}
	return pull(ctx, ref, cache)
}

// lookupCache performs the lock-free cache-hit read path (spec §4.A "Cache
// lookup"). ok is false (with a nil error) on a plain miss; err is
// non-nil only for CorruptCacheBlob or an I/O failure.
func lookupCache(cache *Cache, ref wftypes.Reference) (*wftypes.ImageData, bool, error) {
	raw, err := os.ReadFile(cache.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache index: %w", err)
	}
	var idx cacheIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, false, fmt.Errorf("parse cache index: %w", err)
	}
	entry, ok := idx.Images[ref.String()]
	if !ok {
		return nil, false, nil
	}
	manifestDigest := wfdigest.Digest(entry.ManifestDigest)
	data, err := reconstructFromCache(cache, manifestDigest)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// reconstructFromCache rebuilds an ImageData from cached blobs,
// re-verifying every blob's SHA-256 against its own digest (spec §4.A,
// §3 ImageCache invariant 1).
func reconstructFromCache(cache *Cache, manifestDigest wfdigest.Digest) (*wftypes.ImageData, error) {
	manifestPath, err := cache.BlobPath(manifestDigest)
	if err != nil {
		return nil, err
	}
	if err := verifyBlob(manifestPath, manifestDigest); err != nil {
		return nil, err
	}
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read cached manifest: %w", err)
	}
	var manifest specsv1.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("parse cached manifest: %w", err)
	}

	configDigest := wfdigest.New(wfdigest.SHA256, manifest.Config.Digest.Encoded())
	configPath, err := cache.BlobPath(configDigest)
	if err != nil {
		return nil, err
	}
	if err := verifyBlob(configPath, configDigest); err != nil {
		return nil, err
	}
	configBytes, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read cached image config: %w", err)
	}
	var config specsv1.Image
	if err := json.Unmarshal(configBytes, &config); err != nil {
		return nil, fmt.Errorf("parse cached image config: %w", err)
	}

	if len(manifest.Layers) != len(config.RootFS.DiffIDs) {
		return nil, fmt.Errorf("manifest layers (%d) and config diff_ids (%d) count mismatch", len(manifest.Layers), len(config.RootFS.DiffIDs))
	}

	layers := make([]wftypes.Layer, len(manifest.Layers))
	for i, desc := range manifest.Layers {
		layerDigest := wfdigest.New(wfdigest.SHA256, desc.Digest.Encoded())
		layerPath, err := cache.BlobPath(layerDigest)
		if err != nil {
			return nil, err
		}
		if err := verifyBlob(layerPath, layerDigest); err != nil {
			return nil, err
		}
		bytes, err := os.ReadFile(layerPath)
		if err != nil {
			return nil, fmt.Errorf("read cached layer blob: %w", err)
		}
		layers[i] = wftypes.Layer{
			MediaType: wftypes.ClassifyLayerMediaType(desc.MediaType),
			DiffID:    wfdigest.Digest(config.RootFS.DiffIDs[i]),
			Digest:    layerDigest,
			Bytes:     bytes,
		}
	}

	return &wftypes.ImageData{
		Manifest:       manifest,
		ManifestDigest: manifestDigest,
		Layers:         layers,
		Config:         config,
	}, nil
}

// pull fetches an image from the registry, installs its blobs into the
// cache (if configured), and returns the resolved ImageData (spec §4.A
// "Cache miss").
func pull(ctx context.Context, ref wftypes.Reference, cache *Cache) (*wftypes.ImageData, error) {
	parsedRef, err := name.ParseReference(ref.String())
	if err != nil {
		return nil, fmt.Errorf("parse image reference %q: %w", ref, err)
	}

	img, err := remote.Image(parsedRef, remote.WithAuthFromKeychain(authn.DefaultKeychain), remote.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", ref, err)
	}

	manifestBytes, err := img.RawManifest()
	if err != nil {
		return nil, fmt.Errorf("fetch raw manifest: %w", err)
	}
	var manifest specsv1.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	manifestHash, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("compute manifest digest: %w", err)
	}
	manifestDigest := wfdigest.New(wfdigest.SHA256, manifestHash.Hex)

	configBytes, err := img.RawConfigFile()
	if err != nil {
		return nil, fmt.Errorf("fetch raw image config: %w", err)
	}
	var config specsv1.Image
	if err := json.Unmarshal(configBytes, &config); err != nil {
		return nil, fmt.Errorf("parse image config: %w", err)
	}

	ggrLayers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("get layers: %w", err)
	}
	if len(ggrLayers) != len(manifest.Layers) || len(ggrLayers) != len(config.RootFS.DiffIDs) {
		return nil, fmt.Errorf("image %s: layers/config diff_ids count mismatch", ref)
	}

	layers := make([]wftypes.Layer, len(ggrLayers))
	for i, l := range ggrLayers {
		digest, err := l.Digest()
		if err != nil {
			return nil, fmt.Errorf("layer %d digest: %w", i, err)
		}
		rc, err := l.Compressed()
		if err != nil {
			return nil, fmt.Errorf("layer %d open: %w", i, err)
		}
		bytes, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("layer %d read: %w", i, err)
		}
		layers[i] = wftypes.Layer{
			MediaType: wftypes.ClassifyLayerMediaType(manifest.Layers[i].MediaType),
			DiffID:    wfdigest.Digest(config.RootFS.DiffIDs[i]),
			Digest:    wfdigest.New(wfdigest.SHA256, digest.Hex),
			Bytes:     bytes,
		}
	}

	data := &wftypes.ImageData{Manifest: manifest, ManifestDigest: manifestDigest, Layers: layers, Config: config}

	if cache != nil {
		if err := install(ctx, cache, ref, manifestBytes, manifestDigest, configBytes, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// install writes the manifest, config, and layer blobs under the cache
// lock, then rewrites index.json (spec §4.A "Write blobs, then rewrite
// index.json, then release the lock by deleting the lock file").
func install(ctx context.Context, cache *Cache, ref wftypes.Reference, manifestBytes []byte, manifestDigest wfdigest.Digest, configBytes []byte, data *wftypes.ImageData) error {
	if err := os.MkdirAll(cache.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	lock := NewCacheLock(cache.lockPath(), cache.LockDeadline)
	return WithLock(ctx, lock, func() error {
		if err := writeBlob(cache, manifestDigest, manifestBytes); err != nil {
			return err
		}
		configDigest := wfdigest.New(wfdigest.SHA256, data.Manifest.Config.Digest.Encoded())
		if err := writeBlob(cache, configDigest, configBytes); err != nil {
			return err
		}
		for _, layer := range data.Layers {
			if err := writeBlob(cache, layer.Digest, layer.Bytes); err != nil {
				return err
			}
		}
		var idx cacheIndex
		raw, err := os.ReadFile(cache.indexPath())
		switch {
		case err == nil:
			if jsonErr := json.Unmarshal(raw, &idx); jsonErr != nil {
				return fmt.Errorf("parse cache index: %w", jsonErr)
			}
		case os.IsNotExist(err):
		default:
			return fmt.Errorf("read cache index: %w", err)
		}
		idx.Init()
		idx.Images[ref.String()] = indexEntry{ManifestDigest: manifestDigest.String()}
		return utils.AtomicWriteJSON(cache.indexPath(), &idx)
	})
}

func writeBlob(cache *Cache, digest wfdigest.Digest, bytes []byte) error {
	path, err := cache.BlobPath(digest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	return utils.AtomicWriteFile(path, bytes, 0o644)
}
