package preflight

import (
	"context"

	"jellysync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check for cfg. server may be nil when no server could
// be resolved; the check is then reported as failed with resolveErr.
func RunAll(ctx context.Context, cfg *config.Config, server Pinger, resolveErr error) []Result {
	if cfg == nil {
		return nil
	}

	results := Directories(cfg)
	results = append(results, CheckFreeSpace("Media free space", cfg.Paths.MediaDir))
	results = append(results, CheckStateIndex(ctx, cfg))

	switch {
	case resolveErr != nil:
		results = append(results, Result{Name: "Jellyfin", Detail: resolveErr.Error()})
	case server != nil:
		results = append(results, CheckJellyfin(ctx, server))
	}
	return results
}

// Directories checks the media and state directories.
func Directories(cfg *config.Config) []Result {
	return []Result{
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
