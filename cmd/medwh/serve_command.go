package main

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"medwarehouse/internal/api"
	"medwarehouse/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reports, store, err := ctx.reportingService(signalCtx)
			if err != nil {
				return err
			}
			logger := ctx.ensureLogger()
			addr := strings.TrimSpace(bind)
			if addr == "" {
				addr = cfg.API.Bind
			}
			logger.Info("visual content capability",
				logging.String(logging.FieldEventType, "api.capability"),
				logging.String("capability", string(reports.Capability())),
			)
			return api.NewServer(cfg, reports, store, logger).ListenAndServe(signalCtx, addr)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default api.bind)")
	return cmd
}
