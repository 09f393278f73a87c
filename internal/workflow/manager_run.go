package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"medwarehouse/internal/lake"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/stage"
	"medwarehouse/internal/stageexec"
	"medwarehouse/internal/warehouse"
)

// Run executes one pipeline run under the single-run lock. The report is
// returned alongside any error so callers can show what happened before the
// failure.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	stages, err := m.selectStages(opts.Stages)
	if err != nil {
		return nil, err
	}
	partition := strings.TrimSpace(opts.Partition)
	if partition == "" {
		partition = lake.Partition(m.now())
	}
	if _, err := lake.ParsePartition(partition); err != nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "partition", "", err)
	}

	locked, err := m.lock.TryExclusive()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock %s)", ErrPipelineBusy, m.lock.Path())
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			logging.WarnWithContext(m.logger, "failed to release pipeline lock", "pipeline.unlock_failed",
				logging.Error(err),
				logging.Impact("the next run may report the pipeline as busy"),
			)
		}
	}()

	_, _ = m.reclaimLocked(ctx, m.logger)

	run := &warehouse.Run{
		ID:        m.newID(),
		Partition: partition,
		Status:    warehouse.RunIdle,
		StartedAt: m.now().UTC(),
	}
	if err := m.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	runCtx := services.WithPartition(services.WithRunID(ctx, run.ID), partition)
	logger, logPath, closeLog := m.runLogger(runCtx, run)
	defer closeLog()

	report := &Report{
		RunID:     run.ID,
		Partition: partition,
		Status:    run.Status,
		LogPath:   logPath,
		StartedAt: run.StartedAt,
	}
	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "pipeline.run_started"),
		logging.String("stages", strings.Join(stageNames(stages), ",")),
	)
	m.notify(runCtx, logger, EventStarted, report, "", nil)

	var previous *stage.Result
	for i, stg := range stages {
		result, stageErr := stageexec.Run(runCtx, stageexec.Options{
			Logger:     logger,
			Store:      m.store,
			Handler:    stg.handler,
			StageName:  stg.name,
			Processing: stg.processing,
			Run:        run,
			Input:      stage.Input{Partition: partition, Previous: previous},
			Timeout:    m.cfg.StageTimeout(stg.name),
		})
		report.Stages = append(report.Stages, result)
		if stageErr != nil {
			for _, rest := range stages[i+1:] {
				report.Stages = append(report.Stages, stage.Skipped(rest.name))
			}
			m.failRun(runCtx, logger, run, report, stg.name, stageErr)
			return report, stageErr
		}
		m.persistResults(runCtx, logger, run, report)
		current := result
		previous = &current
	}

	finished := m.now().UTC()
	run.Status = warehouse.RunDone
	run.CurrentStage = ""
	run.FinishedAt = &finished
	report.Status = run.Status
	report.FinishedAt = finished
	m.persistResults(runCtx, logger, run, report)

	logger.Info("pipeline run completed",
		logging.String(logging.FieldEventType, "pipeline.run_completed"),
		logging.Duration("duration", report.Duration()),
		logging.String("stages", summarizeStages(report.Stages)),
	)
	m.notify(runCtx, logger, EventCompleted, report, "", nil)
	return report, nil
}

func (m *Manager) selectStages(names []string) ([]pipelineStage, error) {
	if len(m.stages) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "stages", "no stages configured", nil)
	}
	if len(names) == 0 {
		return m.stages, nil
	}
	for _, name := range names {
		if !slices.ContainsFunc(m.stages, func(s pipelineStage) bool { return s.name == name }) {
			return nil, services.Wrap(services.ErrValidation, "pipeline", "stages", fmt.Sprintf("unknown stage %q", name), nil)
		}
	}
	selected := make([]pipelineStage, 0, len(names))
	for _, stg := range m.stages {
		if slices.Contains(names, stg.name) {
			selected = append(selected, stg)
		}
	}
	return selected, nil
}

// persistResults stores the report's stage results on the run row.
func (m *Manager) persistResults(ctx context.Context, logger *slog.Logger, run *warehouse.Run, report *Report) {
	encoded, err := json.Marshal(report.Stages)
	if err != nil {
		logger.Error("failed to encode stage results", logging.Error(err))
		return
	}
	run.StageResults = string(encoded)
	if err := m.store.UpdateRun(ctx, run); err != nil {
		logger.Error("failed to persist run", logging.Error(err),
			logging.String(logging.FieldEventType, "pipeline.persist_failed"),
			logging.Hint("check warehouse access"),
		)
	}
}

// DecodeStageResults parses the stage results stored on a run row.
func DecodeStageResults(run warehouse.Run) ([]stage.Result, error) {
	raw := strings.TrimSpace(run.StageResults)
	if raw == "" {
		return nil, nil
	}
	var results []stage.Result
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "decode stage results", run.ID, err)
	}
	return results, nil
}

func stageNames(stages []pipelineStage) []string {
	names := make([]string, 0, len(stages))
	for _, stg := range stages {
		names = append(names, stg.name)
	}
	return names
}

func summarizeStages(results []stage.Result) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, fmt.Sprintf("%s=%s", res.Stage, res.Status))
	}
	return strings.Join(parts, " ")
}
