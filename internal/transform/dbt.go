// Package transform wraps the optional dbt project that models the warehouse
// beyond the built-in marts.
package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"medwarehouse/internal/config"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/textutil"
)

// CommandRunner runs a binary and returns its interleaved stdout and stderr.
type CommandRunner interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Step is one dbt invocation.
type Step struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Output is what a dbt invocation leaves behind for the run summary.
type Output struct {
	Steps []Step `json:"steps"`
	Tail  string `json:"tail"`
}

// Dbt runs `dbt run` followed by `dbt test`.
type Dbt struct {
	binary      string
	projectDir  string
	profilesDir string
	tailChars   int
	runner      CommandRunner
	logger      *slog.Logger
}

// NewDbt builds a runner from the transform section. A nil runner uses os/exec.
func NewDbt(cfg *config.Config, runner CommandRunner, logger *slog.Logger) *Dbt {
	if runner == nil {
		runner = execRunner{}
	}
	return &Dbt{
		binary:      cfg.Transform.DbtBinary,
		projectDir:  cfg.Transform.DbtProjectDir,
		profilesDir: cfg.Transform.DbtProfilesDir,
		tailChars:   cfg.Transform.OutputTailChars,
		runner:      runner,
		logger:      logging.NewComponentLogger(logger, "transform"),
	}
}

// Binary is the dbt executable name or path.
func (d *Dbt) Binary() string { return d.binary }

func (d *Dbt) args(sub string) []string {
	args := []string{sub}
	if d.projectDir != "" {
		args = append(args, "--project-dir", d.projectDir)
	}
	if d.profilesDir != "" {
		args = append(args, "--profiles-dir", d.profilesDir)
	}
	return args
}

// Run executes both steps and stops at the first failure. The returned Output
// always carries the tail of everything dbt printed.
func (d *Dbt) Run(ctx context.Context) (Output, error) {
	var out Output
	var combined strings.Builder
	for _, sub := range []string{"run", "test"} {
		args := d.args(sub)
		started := time.Now()
		raw, err := d.runner.Run(ctx, d.binary, args)
		combined.Write(raw)
		step := Step{Command: d.binary + " " + strings.Join(args, " "), Duration: time.Since(started)}
		out.Tail = strings.TrimSpace(textutil.Tail(combined.String(), d.tailChars))
		if err != nil {
			step.ExitCode = exitCode(err)
			out.Steps = append(out.Steps, step)
			if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
				return out, services.Wrap(services.ErrTimeout, "transforming", "dbt "+sub, "deadline exceeded", ctxErr)
			}
			logging.ErrorWithContext(d.logger, "dbt step failed", "transform.dbt_failed",
				logging.String("command", step.Command),
				logging.Int("exit_code", step.ExitCode),
				logging.Error(err),
				logging.String(logging.FieldErrorKind, string(services.KindExternalTool)),
				logging.Hint("run the dbt command by hand to see the full output"),
			)
			return out, services.Wrap(services.ErrExternalTool, "transforming", "dbt "+sub,
				fmt.Sprintf("dbt %s exited with status %d", sub, step.ExitCode), err)
		}
		out.Steps = append(out.Steps, step)
		d.logger.Info("dbt step finished",
			logging.String(logging.FieldEventType, "transform.dbt_step"),
			logging.String("command", step.Command),
			logging.Duration("duration", step.Duration),
		)
	}
	return out, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
