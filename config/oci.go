package config

import "github.com/warpforge/engine/utils"

// EnsureDirs creates the root-relative directories the engine needs before
// it can resolve images or run a plot (spec §3 "ImageCache", "Lifecycle").
func (c *Config) EnsureDirs() error {
	var dirs []string
	for _, d := range []string{c.ImageCacheDir(), c.WorkspaceBaseDir(), c.OutputDir} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return utils.EnsureDirs(dirs...)
}
