package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"medwarehouse/internal/services"
)

// FindRunLog returns the log file written for runID inside dir. Run logs are
// named "<timestamp>-<partition>-<run id>.log"; when several match (a reused
// id after a wipe) the newest name wins.
func FindRunLog(dir, runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", services.Wrap(services.ErrValidation, "", "find run log", "run id is required", nil)
	}
	if strings.ContainsAny(runID, `/\*?[`) {
		return "", services.Wrap(services.ErrValidation, "", "find run log", fmt.Sprintf("invalid run id %q", runID), nil)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*-"+runID+".log"))
	if err != nil {
		return "", fmt.Errorf("glob run logs: %w", err)
	}
	if len(matches) == 0 {
		return "", services.Wrap(services.ErrNotFound, "", "find run log", fmt.Sprintf("no log file for run %s", runID), nil)
	}
	sort.Strings(matches)
	path := matches[len(matches)-1]
	if info, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stat run log: %w", err)
	} else if info.IsDir() {
		return "", fmt.Errorf("run log %q is a directory", path)
	}
	return path, nil
}
