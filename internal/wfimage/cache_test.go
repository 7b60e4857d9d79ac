package wfimage

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateIndexPersistsAcrossReopen(t *testing.T) {
	cache := NewCache(t.TempDir())

	err := cache.updateIndex(context.Background(), func(idx *cacheIndex) error {
		idx.Images["docker.io/library/busybox:latest"] = indexEntry{ManifestDigest: "sha256:" + fortyHexChars}
		return nil
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(cache.indexPath())
	require.NoError(t, err)

	var idx cacheIndex
	require.NoError(t, json.Unmarshal(raw, &idx))
	assert.Equal(t, "sha256:"+fortyHexChars, idx.Images["docker.io/library/busybox:latest"].ManifestDigest)
}

func TestUpdateIndexLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)

	require.NoError(t, cache.updateIndex(context.Background(), func(idx *cacheIndex) error {
		idx.Images["x"] = indexEntry{ManifestDigest: "sha256:" + fortyHexChars}
		return nil
	}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "atomic write left a temp file behind")
	}
}

func TestWithIndexOnMissingFileStartsEmpty(t *testing.T) {
	cache := NewCache(t.TempDir())

	var seen *cacheIndex
	err := cache.withIndex(context.Background(), func(idx *cacheIndex) error {
		seen = idx
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Empty(t, seen.Images)
}

const fortyHexChars = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
