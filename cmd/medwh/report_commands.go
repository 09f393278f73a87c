package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"medwarehouse/internal/reporting"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print reports from the warehouse marts",
	}
	reportCmd.AddCommand(newTopProductsCommand(ctx))
	reportCmd.AddCommand(newChannelsReportCommand(ctx))
	reportCmd.AddCommand(newActivityReportCommand(ctx))
	reportCmd.AddCommand(newSearchReportCommand(ctx))
	reportCmd.AddCommand(newVisualContentCommand(ctx))
	return reportCmd
}

// reportCommand factors the load-service / --json / table flow shared by
// every report.
func reportCommand[T any](ctx *commandContext, cmd *cobra.Command, jsonOut *bool, query func(*cobra.Command, *reporting.Service, []string) ([]T, error), render func([]T) (string, string)) *cobra.Command {
	cmd.Flags().BoolVar(jsonOut, "json", false, "Output as JSON")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		svc, _, err := ctx.reportingService(c.Context())
		if err != nil {
			return err
		}
		rows, err := query(c, svc, args)
		if err != nil {
			return err
		}
		if *jsonOut {
			if rows == nil {
				rows = []T{}
			}
			return writeJSON(c, rows)
		}
		table, empty := render(rows)
		if len(rows) == 0 {
			fmt.Fprintln(c.OutOrStdout(), empty)
			return nil
		}
		fmt.Fprintln(c.OutOrStdout(), table)
		return nil
	}
	return cmd
}

func newTopProductsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "top-products",
		Short: "Most mentioned product terms",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().IntVar(&limit, "limit", reporting.DefaultProductLimit, "Maximum number of terms")
	return reportCommand(ctx, cmd, &jsonOut,
		func(c *cobra.Command, svc *reporting.Service, _ []string) ([]reporting.ProductMention, error) {
			return svc.TopProducts(c.Context(), limit)
		},
		func(rows []reporting.ProductMention) (string, string) {
			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				out = append(out, []string{r.Term, strconv.Itoa(r.Frequency), strings.Join(r.Channels, ", ")})
			}
			return renderTable([]string{"Term", "Mentions", "Channels"}, out,
				[]columnAlignment{alignLeft, alignRight, alignLeft}), "No product mentions found"
		})
}

func newChannelsReportCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Per-channel message, view and image totals",
		Args:  cobra.NoArgs,
	}
	return reportCommand(ctx, cmd, &jsonOut,
		func(c *cobra.Command, svc *reporting.Service, _ []string) ([]reporting.ChannelStats, error) {
			return svc.Channels(c.Context())
		},
		func(rows []reporting.ChannelStats) (string, string) {
			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				out = append(out, []string{
					r.ChannelName,
					r.ChannelType,
					strconv.Itoa(r.TotalMessages),
					formatFloat(r.AvgViews),
					strconv.Itoa(r.MessagesWithImages),
					formatFloat(r.ImagePercentage) + "%",
				})
			}
			return renderTable([]string{"Channel", "Type", "Messages", "Avg views", "With images", "Images"}, out,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight}), "No channels in the marts; run medwh transform"
		})
}

func newActivityReportCommand(ctx *commandContext) *cobra.Command {
	var (
		days    int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "activity <channel>",
		Short: "Daily posting activity for one channel",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntVar(&days, "days", reporting.DefaultActivityDays, "Days to look back")
	return reportCommand(ctx, cmd, &jsonOut,
		func(c *cobra.Command, svc *reporting.Service, args []string) ([]reporting.DailyActivity, error) {
			return svc.Activity(c.Context(), args[0], days)
		},
		func(rows []reporting.DailyActivity) (string, string) {
			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				out = append(out, []string{r.Date, strconv.Itoa(r.MessageCount), formatFloat(r.AvgViews)})
			}
			return renderTable([]string{"Date", "Messages", "Avg views"}, out,
				[]columnAlignment{alignLeft, alignRight, alignRight}), "No activity in the window"
		})
}

func newSearchReportCommand(ctx *commandContext) *cobra.Command {
	var (
		channel string
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search message text",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&channel, "channel", "", "Restrict to one channel")
	cmd.Flags().IntVar(&limit, "limit", reporting.DefaultSearchLimit, "Maximum number of messages")
	return reportCommand(ctx, cmd, &jsonOut,
		func(c *cobra.Command, svc *reporting.Service, args []string) ([]reporting.MessageHit, error) {
			return svc.Search(c.Context(), args[0], channel, limit)
		},
		func(rows []reporting.MessageHit) (string, string) {
			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				out = append(out, []string{
					r.ChannelName,
					strconv.FormatInt(r.MessageID, 10),
					r.MessageDate,
					strconv.Itoa(r.Views),
					yesNo(r.HasImage),
					r.MessageText,
				})
			}
			return renderTable([]string{"Channel", "ID", "Date", "Views", "Image", "Text"}, out,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft}), "No matching messages"
		})
}

func newVisualContentCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "visual-content",
		Short: "Image categories per channel",
		Args:  cobra.NoArgs,
	}
	return reportCommand(ctx, cmd, &jsonOut,
		func(c *cobra.Command, svc *reporting.Service, _ []string) ([]reporting.VisualContent, error) {
			return svc.VisualContent(c.Context())
		},
		func(rows []reporting.VisualContent) (string, string) {
			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				out = append(out, []string{
					r.ChannelName,
					strconv.Itoa(r.TotalImages),
					formatFloat(r.PromotionalPct) + "%",
					formatFloat(r.ProductDisplayPct) + "%",
					formatFloat(r.LifestylePct) + "%",
					formatFloat(r.OtherPct) + "%",
				})
			}
			return renderTable([]string{"Channel", "Images", "Promotional", "Product", "Lifestyle", "Other"}, out,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}), "No images in the marts"
		})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
