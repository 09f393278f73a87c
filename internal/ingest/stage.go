package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"medwarehouse/internal/config"
	"medwarehouse/internal/lake"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/stage"
)

// StageName is the pipeline stage this package implements.
const StageName = "loading"

// Stage adapts a Loader to the pipeline contract.
type Stage struct {
	layout lake.Layout
	loader *Loader
}

// NewStage builds the loading stage.
func NewStage(cfg *config.Config, store Store, logger *slog.Logger) *Stage {
	return &Stage{layout: lake.Layout{DataDir: cfg.Paths.DataDir}, loader: NewLoader(cfg, store, logger)}
}

func (s *Stage) SetLogger(logger *slog.Logger) {
	s.loader.logger = logging.NewComponentLogger(logger, "ingest")
}

func (s *Stage) Prepare(_ context.Context, in stage.Input) error {
	return stage.RequirePartition(StageName, in)
}

// Execute loads the partition. Some failed files make the stage partial;
// a partition where nothing loaded fails it.
func (s *Stage) Execute(ctx context.Context, in stage.Input) (stage.Result, error) {
	report, err := s.loader.LoadPartition(ctx, in.Partition)
	result := stage.Result{
		Counts: map[string]int{
			"files":    len(report.Files),
			"inserted": report.Inserted,
			"skipped":  report.Skipped,
			"failed":   report.Failed,
		},
	}
	if err != nil {
		return result, err
	}
	result.Message = fmt.Sprintf("%d inserted, %d skipped from %d files", report.Inserted, report.Skipped, len(report.Files))
	if report.Failed == 0 {
		return result, nil
	}
	failed := strings.Join(report.FailedFiles(), ", ")
	if report.Failed == len(report.Files) {
		return result, services.Wrap(services.ErrValidation, StageName, "load partition",
			fmt.Sprintf("no lake file loaded: %s", failed), nil)
	}
	result.Status = stage.StatusPartial
	result.Message += fmt.Sprintf("; %d failed: %s", report.Failed, failed)
	return result, nil
}

func (s *Stage) HealthCheck(context.Context) stage.Health {
	info, err := os.Stat(s.layout.MessagesRoot())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return stage.Healthy(StageName)
	case err != nil:
		return stage.Unhealthy(StageName, err.Error())
	case !info.IsDir():
		return stage.Unhealthy(StageName, s.layout.MessagesRoot()+" is not a directory")
	}
	return stage.Healthy(StageName)
}
