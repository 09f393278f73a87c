package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"medwarehouse/internal/config"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/warehouse"
)

// RunLogDir is the log_dir subdirectory holding one file per run.
const RunLogDir = "runs"

// RunLogger manages dedicated log files for pipeline runs.
type RunLogger struct {
	baseDir string
	level   string
}

// NewRunLogger creates a run logger under the configured log directory.
func NewRunLogger(cfg *config.Config) *RunLogger {
	dir := ""
	if cfg != nil && strings.TrimSpace(cfg.Paths.LogDir) != "" {
		dir = filepath.Join(cfg.Paths.LogDir, RunLogDir)
	}
	level := "info"
	if cfg != nil && strings.TrimSpace(cfg.Logging.Level) != "" {
		level = cfg.Logging.Level
	}
	return &RunLogger{baseDir: dir, level: level}
}

// Path is the log file for run.
func (r *RunLogger) Path(run *warehouse.Run) string {
	if r == nil || r.baseDir == "" || run == nil {
		return ""
	}
	timestamp := run.StartedAt.UTC().Format("20060102T150405")
	return filepath.Join(r.baseDir, fmt.Sprintf("%s-%s-%s.log", timestamp, run.Partition, run.ID))
}

// runLogger tees the manager logger into the run's own file. The returned
// function closes the file.
func (m *Manager) runLogger(ctx context.Context, run *warehouse.Run) (*slog.Logger, string, func()) {
	base := logging.WithContext(ctx, m.logger)
	path := m.runLogs.Path(run)
	if path == "" {
		return base, "", func() {}
	}
	fileHandler, closer, err := logging.NewFileHandler(path, m.runLogs.level)
	if err != nil {
		logging.WarnWithContext(base, "run log unavailable", "pipeline.run_log_failed",
			logging.Error(err),
			logging.Impact("run details only appear in the main log"),
		)
		return base, "", func() {}
	}
	tee := slog.New(logging.Tee(m.logger.Handler(), fileHandler))
	logger := logging.WithContext(ctx, tee)
	return logger, path, func() { _ = closer.Close() }
}
