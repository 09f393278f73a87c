package transform

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"medwarehouse/internal/config"
	"medwarehouse/internal/dimensional"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/stage"
)

// StageName is the pipeline stage this package implements.
const StageName = "transforming"

// Rebuilder refreshes the built-in marts.
type Rebuilder interface {
	Rebuild(ctx context.Context) (dimensional.Stats, error)
}

// Stage rebuilds the marts and then, when enabled, runs the dbt project.
type Stage struct {
	builder Rebuilder
	dbt     *Dbt
}

// NewStage builds the transforming stage. dbt is nil when transform.dbt_enabled is off.
func NewStage(cfg *config.Config, builder Rebuilder, logger *slog.Logger) *Stage {
	s := &Stage{builder: builder}
	if cfg.Transform.DbtEnabled {
		s.dbt = NewDbt(cfg, nil, logger)
	}
	return s
}

func (s *Stage) SetLogger(logger *slog.Logger) {
	if s.dbt != nil {
		s.dbt.logger = logging.NewComponentLogger(logger, "transform")
	}
}

func (s *Stage) Prepare(context.Context, stage.Input) error { return nil }

func (s *Stage) Execute(ctx context.Context, _ stage.Input) (stage.Result, error) {
	stats, err := s.builder.Rebuild(ctx)
	if err != nil {
		return stage.Result{}, err
	}
	result := stage.Result{
		Message: fmt.Sprintf("%d channels, %d dates, %d facts", stats.Channels, stats.Dates, stats.Facts),
		Counts: map[string]int{
			"channels":        stats.Channels,
			"dates":           stats.Dates,
			"facts":           stats.Facts,
			"dropped_facts":   stats.DroppedFacts,
			"detection_facts": stats.DetectionFacts,
		},
	}
	if s.dbt == nil {
		return result, nil
	}
	out, err := s.dbt.Run(ctx)
	result.Output = out.Tail
	result.Counts["dbt_steps"] = len(out.Steps)
	if err == nil {
		result.Message += "; dbt run and test passed"
	}
	return result, err
}

func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.dbt == nil {
		return stage.Healthy(StageName)
	}
	if _, err := exec.LookPath(s.dbt.Binary()); err != nil {
		return stage.Unhealthy(StageName, fmt.Sprintf("dbt binary %q not found", s.dbt.Binary()))
	}
	return stage.Healthy(StageName)
}
