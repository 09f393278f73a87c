package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"medwarehouse/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" && len(cfg.Notifications.KafkaBrokers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No notification transport configured")
				return nil
			}
			notifier := notifications.NewService(cfg)
			defer notifier.Close()
			err = notifier.Publish(cmd.Context(), notifications.EventTest, notifications.Payload{
				"partition": time.Now().UTC().Format("2006-01-02"),
			})
			if err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
