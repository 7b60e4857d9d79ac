package wfspec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/internal/wftypes"
)

// GenerateScriptInjection writes one file entry-<n> per script line into
// hostDir, plus a top-level run file dot-sourcing each entry by its
// container-side path, and returns the command to invoke (spec §4.C "Script
// actions"). containerPath is where hostDir will be mounted read-only inside
// the container.
func GenerateScriptInjection(hostDir, containerPath string, script wftypes.ScriptAction) ([]string, error) {
	if err := os.MkdirAll(hostDir, 0o755); err != nil {
		return nil, wferr.NewSetupError("create script injection dir", err)
	}

	var run strings.Builder
	for i, line := range script.Contents {
		entryName := fmt.Sprintf("entry-%d", i)
		if err := os.WriteFile(filepath.Join(hostDir, entryName), []byte(line+"\n"), 0o644); err != nil {
			return nil, wferr.NewSetupError("write script entry", err)
		}
		fmt.Fprintf(&run, ". %s\n", filepath.Join(containerPath, entryName))
	}
	if err := os.WriteFile(filepath.Join(hostDir, "run"), []byte(run.String()), 0o755); err != nil {
		return nil, wferr.NewSetupError("write script run dispatcher", err)
	}

	return []string{script.Interpreter, filepath.Join(containerPath, "run")}, nil
}
