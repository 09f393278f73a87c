package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"medwarehouse/internal/config"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
	"medwarehouse/internal/warehouse"
	"medwarehouse/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	store *warehouse.Store
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// ensureLogger builds the stderr+file logger once and prunes old logs.
func (c *commandContext) ensureLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
			logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, workflow.RunLogDir), Pattern: "*.log"},
		)
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) openStore(ctx context.Context) (*warehouse.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := warehouse.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	c.store = store
	return store, nil
}

func (c *commandContext) close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// formatError adds the remediation hint for classified failures.
func formatError(err error) string {
	if errors.Is(err, workflow.ErrPipelineBusy) {
		return err.Error()
	}
	var svcErr *services.ServiceError
	if !errors.As(err, &svcErr) {
		return err.Error()
	}
	if hint := services.Hint(err); hint != "" {
		return fmt.Sprintf("%s\nhint: %s", err, hint)
	}
	return err.Error()
}
