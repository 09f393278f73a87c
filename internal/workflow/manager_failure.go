package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/warehouse"
)

func (m *Manager) failRun(ctx context.Context, logger *slog.Logger, run *warehouse.Run, report *Report, stageName string, stageErr error) {
	details := services.Details(stageErr)
	message := classifyStageFailure(stageName, stageErr)

	finished := m.now().UTC()
	run.Status = warehouse.RunFailed
	run.CurrentStage = stageName
	run.ErrorKind = string(details.Kind)
	run.ErrorMessage = message
	run.FinishedAt = &finished

	details.Message = message
	report.Status = run.Status
	report.Error = &details
	report.FinishedAt = finished
	m.persistResults(ctx, logger, run, report)

	logger.Error("pipeline run failed",
		logging.String(logging.FieldEventType, "pipeline.run_failed"),
		logging.Stage(stageName),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.ErrorHint(stageErr),
		logging.String("error_message", message),
		logging.String("stages", summarizeStages(report.Stages)),
		logging.Error(stageErr),
	)
	m.notify(ctx, logger, EventFailed, report, stageName, stageErr)
}

func classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return fmt.Sprintf("%s failed without error detail", stageName)
	}
	message := strings.TrimSpace(services.Details(stageErr).Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	if message == "" {
		message = fmt.Sprintf("%s failed", stageName)
	}
	return message
}
