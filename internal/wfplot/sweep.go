package wfplot

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/warpforge/engine/utils"
)

// SweepStaleWorkspaces removes leftover "wf-run-*" directories under base
// older than utils.StaleTempAge. RunPlot always removes its own workspace
// on completion (spec §3 "Lifecycle"), but a process killed mid-run leaves
// one behind; callers run this once at startup to recover the space.
func SweepStaleWorkspaces(ctx context.Context, base string) []error {
	cutoff := time.Now().Add(-utils.StaleTempAge)
	return utils.RemoveMatching(ctx, base, func(e os.DirEntry) bool {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "wf-run-") {
			return false
		}
		info, err := e.Info()
		if err != nil {
			return false
		}
		return info.ModTime().Before(cutoff)
	})
}
