package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/stage"
	"medwarehouse/internal/warehouse"
)

// RunStore persists run transitions.
type RunStore interface {
	UpdateRun(ctx context.Context, run *warehouse.Run) error
}

// Options controls stage execution and run persistence behavior.
type Options struct {
	Logger     *slog.Logger
	Store      RunStore
	Handler    stage.Handler
	StageName  string
	Processing warehouse.RunStatus
	Run        *warehouse.Run
	Input      stage.Input
	// Timeout bounds Prepare and Execute together. Zero means no deadline.
	Timeout time.Duration
}

// Run persists the processing transition, then prepares and executes the
// stage under its deadline. The returned result is always filled in, also
// when the stage fails; a deadline overrun surfaces as services.ErrTimeout.
func Run(ctx context.Context, opts Options) (stage.Result, error) {
	result := stage.Result{Stage: opts.StageName, StartedAt: time.Now().UTC()}
	if opts.Handler == nil {
		return result, fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil {
		return result, fmt.Errorf("run store is required")
	}
	if opts.Run == nil {
		return result, fmt.Errorf("run record is required")
	}

	stageCtx := services.WithStage(ctx, opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(opts.Processing)),
		logging.Duration("timeout", opts.Timeout),
	)

	opts.Run.Status = opts.Processing
	opts.Run.CurrentStage = opts.StageName
	if err := opts.Store.UpdateRun(stageCtx, opts.Run); err != nil {
		return result, fmt.Errorf("persist processing transition: %w", err)
	}

	execCtx := stageCtx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(stageCtx, opts.Timeout)
		defer cancel()
	}

	in := opts.Input
	in.RunID = opts.Run.ID
	err := opts.Handler.Prepare(execCtx, in)
	if err == nil {
		var executed stage.Result
		executed, err = opts.Handler.Execute(execCtx, in)
		result = merge(result, executed)
	}
	result.Duration = time.Since(result.StartedAt)

	if err != nil {
		err = timeoutAware(execCtx, opts.StageName, opts.Timeout, err)
		return handleFailure(stageLogger, result, err), err
	}
	if result.Status == "" {
		result.Status = stage.StatusCompleted
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("result_status", string(result.Status)),
		logging.String("result_message", strings.TrimSpace(result.Message)),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

func merge(base, executed stage.Result) stage.Result {
	base.Status = executed.Status
	base.Message = executed.Message
	base.Output = executed.Output
	base.Counts = executed.Counts
	return base
}

// timeoutAware rewrites errors caused by the stage deadline into ErrTimeout.
func timeoutAware(ctx context.Context, stageName string, timeout time.Duration, err error) error {
	if errors.Is(err, services.ErrTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stageName, "deadline",
			fmt.Sprintf("stage exceeded its %s deadline", timeout), err)
	}
	return err
}

func handleFailure(logger *slog.Logger, result stage.Result, stageErr error) stage.Result {
	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	result.Status = stage.StatusFailed
	result.Message = message

	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.ErrorHint(stageErr),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)
	return result
}
