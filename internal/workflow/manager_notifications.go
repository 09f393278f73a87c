package workflow

import (
	"context"
	"errors"
	"log/slog"

	"medwarehouse/internal/logging"
	"medwarehouse/internal/notifications"
)

// Run lifecycle events published by the manager.
const (
	EventStarted   = notifications.EventRunStarted
	EventCompleted = notifications.EventRunCompleted
	EventFailed    = notifications.EventRunFailed
)

func (m *Manager) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, report *Report, stageName string, stageErr error) {
	if m.notifier == nil {
		return
	}
	payload := notifications.Payload{
		"runID":     report.RunID,
		"partition": report.Partition,
	}
	switch event {
	case EventCompleted:
		payload["duration"] = report.Duration()
		payload["stages"] = summarizeStages(report.Stages)
	case EventFailed:
		payload["stage"] = stageName
		payload["error"] = classifyStageFailure(stageName, stageErr)
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("run canceled, notification not sent", logging.String("event", string(event)))
			return
		}
		logging.WarnWithContext(logger, "notification failed", "pipeline.notify_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.Impact("run event not delivered"),
			logging.Hint("check ntfy_topic and kafka_brokers"),
		)
	}
}
