package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"medwarehouse/internal/preflight"
	"medwarehouse/internal/workflow"
)

type statusOutput struct {
	Preflight []preflight.Result     `json:"preflight"`
	Pipeline  workflow.StatusSummary `json:"pipeline"`
	Error     string                 `json:"error,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show preflight checks, stage health and the last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			status := statusOutput{Preflight: preflight.RunAll(cmd.Context(), cfg, store)}
			if p, err := ctx.buildPipeline(cmd.Context()); err != nil {
				status.Error = err.Error()
			} else {
				defer p.Close()
				status.Pipeline = p.manager.Status(cmd.Context())
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			printStatus(out, status, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func printStatus(out io.Writer, status statusOutput, colorize bool) {
	for _, line := range renderSectionHeader("Preflight", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range preflightLines(status.Preflight, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	if status.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Pipeline", statusError, status.Error, colorize))
		return
	}
	for _, line := range renderSectionHeader("Stages", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, h := range status.Pipeline.StageHealth {
		kind := statusOK
		detail := h.Detail
		if !h.Ready {
			kind = statusError
		}
		if detail == "" {
			detail = "ready"
		}
		fmt.Fprintln(out, renderStatusLine(h.Name, kind, detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Pipeline", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Pipeline.Busy {
		fmt.Fprintln(out, renderStatusLine("Lock", statusWarn, "a run is in progress", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Lock", statusOK, "idle", colorize))
	}
	last := status.Pipeline.LastRun
	if last == nil {
		fmt.Fprintln(out, renderStatusLine("Last run", statusInfo, "none", colorize))
		return
	}
	msg := fmt.Sprintf("%s %s (%s)", last.ID, last.Status, last.Partition)
	if last.ErrorMessage != "" {
		msg += ": " + last.ErrorMessage
	}
	fmt.Fprintln(out, renderStatusLine("Last run", runStatusKind(string(last.Status)), msg, colorize))
}

// preflightLines renders one line per check followed by a summary line.
func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results)+1)
	failed := 0
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
			failed++
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	summaryKind := statusOK
	summary := fmt.Sprintf("%d/%d checks passed", len(results)-failed, len(results))
	if failed > 0 {
		summaryKind = statusError
	}
	return append(lines, renderStatusLine("Summary", summaryKind, summary, colorize))
}
