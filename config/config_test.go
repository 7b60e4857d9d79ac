package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigNonexistentFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverlaysJSONOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"root_dir": "/srv/warpforge",
		"runtime_path": "/usr/local/bin/runc",
		"pool_size": 4
	}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/warpforge", cfg.RootDir)
	assert.Equal(t, "/usr/local/bin/runc", cfg.RuntimePath)
	assert.Equal(t, 4, cfg.PoolSize)
}

func TestLoadConfigZeroPoolSizeFallsBackToNumCPU(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pool_size": 0}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().PoolSize, cfg.PoolSize)
}

func TestLoadConfigMalformedJSONReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestImageCacheAndWorkspaceDirsAreRootRelative(t *testing.T) {
	cfg := &Config{RootDir: "/var/lib/warpforge"}
	assert.Equal(t, "/var/lib/warpforge/images", cfg.ImageCacheDir())
	assert.Equal(t, "/var/lib/warpforge/runs", cfg.WorkspaceBaseDir())
}

func TestEnsureDirsCreatesAllConfiguredRoots(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{
		RootDir:   filepath.Join(root, "state"),
		OutputDir: filepath.Join(root, "out"),
	}

	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, cfg.ImageCacheDir())
	assert.DirExists(t, cfg.WorkspaceBaseDir())
	assert.DirExists(t, cfg.OutputDir)
}
