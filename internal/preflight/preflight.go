package preflight

import (
	"context"
	"path/filepath"
	"strings"

	"voxbridge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minCacheFreeBytes is the free space wanted on the cache volume.
const minCacheFreeBytes = 256 * 1024 * 1024

// RunAll executes all applicable preflight checks for the given config.
// The cloud API is only contacted when an API key is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Models directory", cfg.Paths.ModelsDir),
	}

	// The cache directory is created on first write, so check the nearest
	// existing ancestor.
	cacheRoot := existingAncestor(cfg.Paths.CacheDir)
	results = append(results,
		CheckDirectoryAccess("Cache directory", cacheRoot),
		CheckFreeSpace("Cache free space", cacheRoot, minCacheFreeBytes),
	)

	if strings.TrimSpace(cfg.Engines.Cloud.APIKey) != "" {
		results = append(results, CheckCloud(ctx, cfg.Engines.Cloud))
	}
	return results
}

func existingAncestor(path string) string {
	path = filepath.Clean(path)
	for {
		if _, err := statDir(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
