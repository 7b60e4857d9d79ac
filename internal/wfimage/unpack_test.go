package wfimage

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpforge/engine/internal/wfdigest"
	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/internal/wftypes"
)

func buildTar(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestUnpackVerifiesDiffIDAndExtracts(t *testing.T) {
	raw := buildTar(t, map[string]string{"hello.txt": "hi there"})
	sum := sha256.Sum256(raw)
	diffID := wfdigest.New(wfdigest.SHA256, fmt.Sprintf("%x", sum))

	data := &wftypes.ImageData{
		Layers: []wftypes.Layer{
			{MediaType: wftypes.LayerMediaTar, DiffID: diffID, Bytes: raw},
		},
	}

	bundleDir := filepath.Join(t.TempDir(), "bundle")
	rootfs, digests, err := Unpack(data, bundleDir)
	require.NoError(t, err)
	require.Len(t, digests, 1)
	assert.Equal(t, diffID, digests[0])

	contents, err := os.ReadFile(filepath.Join(rootfs, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(contents))
}

func TestUnpackRejectsDiffIDMismatch(t *testing.T) {
	raw := buildTar(t, map[string]string{"hello.txt": "hi there"})
	wrongDigest := wfdigest.New(wfdigest.SHA256, "0000000000000000000000000000000000000000000000000000000000000000")

	data := &wftypes.ImageData{
		Layers: []wftypes.Layer{
			{MediaType: wftypes.LayerMediaTar, DiffID: wrongDigest, Bytes: raw},
		},
	}

	bundleDir := filepath.Join(t.TempDir(), "bundle")
	_, _, err := Unpack(data, bundleDir)
	require.ErrorIs(t, err, wferr.ErrLayerDiffIDMismatch)
}

func TestUnpackRefusesNonEmptyBundleDir(t *testing.T) {
	bundleDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "preexisting"), []byte("x"), 0o644))

	_, _, err := Unpack(&wftypes.ImageData{}, bundleDir)
	require.ErrorIs(t, err, wferr.ErrTargetNotEmpty)
}

func TestCacheLockExcludesConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "index.lock")

	l1 := NewCacheLock(lockPath, time.Second)
	require.NoError(t, l1.Lock(context.Background()))

	l2 := NewCacheLock(lockPath, 200*time.Millisecond)
	err := l2.Lock(context.Background())
	require.ErrorIs(t, err, wferr.ErrCacheLockTimeout)

	require.NoError(t, l1.Unlock())
	require.NoError(t, l2.Lock(context.Background()))
	require.NoError(t, l2.Unlock())
}

func TestBlobPathLayout(t *testing.T) {
	c := NewCache(t.TempDir())
	d := wfdigest.New(wfdigest.SHA256, "abcdef0123456789")
	path, err := c.BlobPath(d)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Dir, "blobs", "sha256", "ab", "cd", "abcdef0123456789"), path)
}
