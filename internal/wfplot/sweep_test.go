package wfplot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSweepStaleWorkspacesRemovesOldRunDirsOnly(t *testing.T) {
	base := t.TempDir()

	stale := filepath.Join(base, "wf-run-stale")
	fresh := filepath.Join(base, "wf-run-fresh")
	unrelated := filepath.Join(base, "not-a-run-dir")
	require.NoError(t, os.MkdirAll(stale, 0o700))
	require.NoError(t, os.MkdirAll(fresh, 0o700))
	require.NoError(t, os.MkdirAll(unrelated, 0o700))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	errs := SweepStaleWorkspaces(context.Background(), base)
	require.Empty(t, errs)

	_, err := os.Stat(stale)
	require.True(t, os.IsNotExist(err))
	require.DirExists(t, fresh)
	require.DirExists(t, unrelated)
}
