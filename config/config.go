// Package config loads the engine's ambient configuration: on-disk roots,
// the OCI runtime binary, and logging, following the teacher's
// RootDir-plus-JSON-overlay convention.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	coretypes "github.com/projecteru2/core/types"
)

// Config holds the engine's global configuration.
type Config struct {
	// RootDir is the base directory for the image cache and run workspaces.
	RootDir string `json:"root_dir"`
	// RuntimePath is the OCI runtime binary invoked by the Runner (spec
	// §4.D, §6).
	RuntimePath string `json:"runtime_path"`
	// MountBase resolves relative mount: host paths in plot/formula
	// documents (spec §4.B). Empty means relative paths are rejected.
	MountBase string `json:"mount_base"`
	// OutputDir is where packed plot/formula outputs are written (spec §3
	// "Lifecycle").
	OutputDir string `json:"output_dir"`
	// PoolSize is a concurrency limit read from configuration. Defaults to
	// runtime.NumCPU() if zero. No engine package reads it: plot steps run
	// one at a time.
	PoolSize int `json:"pool_size"`
	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log"`
}

// ImageCacheDir is the image cache directory under RootDir (spec §3
// "ImageCache").
func (c *Config) ImageCacheDir() string { return filepath.Join(c.RootDir, "images") }

// WorkspaceBaseDir is the directory under which per-run temporary
// workspaces are created (spec §3 "Lifecycle").
func (c *Config) WorkspaceBaseDir() string { return filepath.Join(c.RootDir, "runs") }

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RootDir:     "/var/lib/warpforge",
		RuntimePath: "/usr/bin/runc",
		PoolSize:    runtime.NumCPU(),
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = runtime.NumCPU()
	}
	return cfg, nil
}
