package wfpack

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpforge/engine/internal/wftypes"
)

func writeTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("world"), 0644))
}

func TestTarDirIsDeterministicAcrossRuns(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	writeTree(t, dir1)
	writeTree(t, dir2)

	var buf1, buf2 []byte
	f1 := filepath.Join(t.TempDir(), "out1.tar")
	f2 := filepath.Join(t.TempDir(), "out2.tar")

	out1, err := TarDirToFile("x", dir1, f1)
	require.NoError(t, err)
	out2, err := TarDirToFile("x", dir2, f2)
	require.NoError(t, err)

	buf1, err = os.ReadFile(f1)
	require.NoError(t, err)
	buf2, err = os.ReadFile(f2)
	require.NoError(t, err)

	assert.Equal(t, buf1, buf2)
	assert.Equal(t, out1.Digest, out2.Digest)
}

func TestTarDirHashOnlyMatchesTarDirToFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir)

	hashOnly, err := TarDirHashOnly("x", dir)
	require.NoError(t, err)

	toFile, err := TarDirToFile("x", dir, filepath.Join(t.TempDir(), "out.tar"))
	require.NoError(t, err)

	assert.Equal(t, hashOnly.Digest, toFile.Digest)
}

func TestPackOutputNoneMovesStagedDirInPlace(t *testing.T) {
	staged := filepath.Join(t.TempDir(), "staged")
	require.NoError(t, os.MkdirAll(staged, 0755))
	writeTree(t, staged)
	outputDir := t.TempDir()

	out, err := PackOutput(context.Background(), "result", staged, outputDir, wftypes.PacktypeNone)
	require.NoError(t, err)
	assert.Equal(t, "result", out.Name)

	_, statErr := os.Stat(staged)
	assert.True(t, os.IsNotExist(statErr))
	assert.DirExists(t, filepath.Join(outputDir, "result"))
}

func TestPackOutputTarWritesArchiveFile(t *testing.T) {
	staged := filepath.Join(t.TempDir(), "staged")
	require.NoError(t, os.MkdirAll(staged, 0755))
	writeTree(t, staged)
	outputDir := t.TempDir()

	out, err := PackOutput(context.Background(), "result", staged, outputDir, wftypes.PacktypeTar)
	require.NoError(t, err)
	assert.Equal(t, "result", out.Name)
	assert.FileExists(t, filepath.Join(outputDir, "result"))
	assert.DirExists(t, staged)
}
