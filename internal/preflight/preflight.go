package preflight

import (
	"context"

	"medwarehouse/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// MinFreeBytes is the free space required on the data directory.
const MinFreeBytes uint64 = 256 << 20

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config, db Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Data directory space", cfg.Paths.DataDir, MinFreeBytes),
		CheckWarehouse(ctx, db),
		CheckDetector(ctx, cfg.Detector),
	}

	if cfg.Transform.DbtEnabled {
		results = append(results, CheckDbt(cfg.Transform))
	}
	if cfg.Scraper.Source == "telegram" {
		results = append(results, CheckTelegram(cfg.Telegram))
	}
	return results
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
