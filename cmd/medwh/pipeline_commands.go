package main

import (
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medwarehouse/internal/preflight"
	"medwarehouse/internal/reporting"
	"medwarehouse/internal/stage"
	"medwarehouse/internal/workflow"
)

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	pipelineCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the pipeline and inspect past runs",
	}
	pipelineCmd.AddCommand(newPipelineRunCommand(ctx))
	pipelineCmd.AddCommand(newPipelineRunsCommand(ctx))
	pipelineCmd.AddCommand(newPipelineShowCommand(ctx))
	pipelineCmd.AddCommand(newPipelineLogsCommand(ctx))
	return pipelineCmd
}

func newPipelineRunCommand(ctx *commandContext) *cobra.Command {
	var (
		partition     string
		jsonOut       bool
		skipPreflight bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape, load, transform and enrich one partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !skipPreflight {
				if err := requirePreflight(cmd, ctx); err != nil {
					return err
				}
			}
			return runStages(cmd, ctx, partition, nil, jsonOut)
		},
	}
	cmd.Flags().StringVar(&partition, "partition", "", "Partition date (YYYY-MM-DD, default today UTC)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the run report as JSON")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without running preflight checks")
	return cmd
}

// newStageCommands builds the single-stage shortcuts (scrape, load, ...).
func newStageCommands(ctx *commandContext) []*cobra.Command {
	specs := []struct {
		use, short, stage string
		partition         bool
	}{
		{"scrape", "Run only the scraping stage", workflow.StageScraping, true},
		{"load", "Run only the loading stage", workflow.StageLoading, true},
		{"transform", "Rebuild the marts (and run dbt when enabled)", workflow.StageTransforming, false},
		{"enrich", "Run object detection over unenriched images", workflow.StageEnriching, false},
	}
	cmds := make([]*cobra.Command, 0, len(specs))
	for _, spec := range specs {
		var (
			partition string
			jsonOut   bool
		)
		cmd := &cobra.Command{
			Use:   spec.use,
			Short: spec.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStages(cmd, ctx, partition, []string{spec.stage}, jsonOut)
			},
		}
		if spec.partition {
			cmd.Flags().StringVar(&partition, "partition", "", "Partition date (YYYY-MM-DD, default today UTC)")
		}
		cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the run report as JSON")
		cmds = append(cmds, cmd)
	}
	return cmds
}

func runStages(cmd *cobra.Command, ctx *commandContext, partition string, stages []string, jsonOut bool) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := ctx.buildPipeline(signalCtx)
	if err != nil {
		return err
	}
	defer p.Close()

	report, runErr := p.manager.Run(signalCtx, workflow.RunOptions{Partition: partition, Stages: stages})
	if report != nil {
		if jsonOut {
			if err := writeJSON(cmd, report); err != nil {
				return err
			}
		} else {
			printRunReport(cmd.OutOrStdout(), report, shouldColorize(cmd.OutOrStdout()))
		}
	}
	return runErr
}

func requirePreflight(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := ctx.openStore(cmd.Context())
	if err != nil {
		return err
	}
	failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg, store))
	if len(failed) == 0 {
		return nil
	}
	out := cmd.ErrOrStderr()
	colorize := shouldColorize(out)
	for _, r := range failed {
		fmt.Fprintln(out, renderStatusLine(r.Name, statusError, r.Detail, colorize))
	}
	return fmt.Errorf("preflight failed: %d check(s); rerun with --skip-preflight to force", len(failed))
}

func printRunReport(out io.Writer, report *workflow.Report, colorize bool) {
	for _, line := range renderSectionHeader("Run "+report.RunID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Partition", statusInfo, report.Partition, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(string(report.Status)), string(report.Status), colorize))
	if d := report.Duration(); d > 0 {
		fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, d.Round(time.Millisecond).String(), colorize))
	}
	if report.LogPath != "" {
		fmt.Fprintln(out, renderStatusLine("Log", statusInfo, report.LogPath, colorize))
	}
	if report.Error != nil {
		fmt.Fprintln(out, renderStatusLine("Error", statusError,
			fmt.Sprintf("%s: %s", report.Error.Kind, report.Error.Message), colorize))
	}
	if len(report.Stages) > 0 {
		fmt.Fprintln(out, renderStageTable(report.Stages))
	}
}

func renderStageTable(results []stage.Result) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.Stage,
			string(r.Status),
			r.Duration.Round(time.Millisecond).String(),
			formatCounts(r.Counts),
			r.Message,
		})
	}
	return renderTable(
		[]string{"Stage", "Status", "Duration", "Counts", "Message"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Itoa(counts[k]))
	}
	return strings.Join(parts, " ")
}

func newPipelineRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := ctx.reportingService(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := svc.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pipeline runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{r.ID, r.Partition, r.Status, r.StartedAt, formatSeconds(r.DurationSecs), r.ErrorMessage})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Run", "Partition", "Status", "Started", "Duration", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", reporting.DefaultRunLimit, "Maximum number of runs")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newPipelineShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := ctx.reportingService(cmd.Context())
			if err != nil {
				return err
			}
			view, err := svc.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, view)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Run "+view.ID, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Partition", statusInfo, view.Partition, colorize))
			fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(view.Status), view.Status, colorize))
			fmt.Fprintln(out, renderStatusLine("Started", statusInfo, view.StartedAt, colorize))
			if view.FinishedAt != "" {
				fmt.Fprintln(out, renderStatusLine("Finished", statusInfo, view.FinishedAt, colorize))
			}
			if view.CurrentStage != "" {
				fmt.Fprintln(out, renderStatusLine("Current stage", statusInfo, view.CurrentStage, colorize))
			}
			if view.ErrorMessage != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, view.ErrorKind+": "+view.ErrorMessage, colorize))
			}
			if len(view.Stages) > 0 {
				fmt.Fprintln(out, renderStageTable(view.Stages))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func formatSeconds(secs float64) string {
	if secs <= 0 {
		return ""
	}
	return (time.Duration(secs * float64(time.Second))).Round(time.Millisecond).String()
}
