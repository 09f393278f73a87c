package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validatePaths,
		c.validateWarehouse,
		c.validateScraper,
		c.validateDetector,
		c.validateTimeouts,
		c.validateAPI,
		c.validateNotifications,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateWarehouse() error {
	switch c.Warehouse.Driver {
	case "sqlite":
	case "postgres":
		if c.Warehouse.DSN == "" {
			return errors.New("warehouse.dsn must be set for postgres (or set WAREHOUSE_DSN / DATABASE_URL)")
		}
	default:
		return fmt.Errorf("warehouse.driver must be sqlite or postgres, got %q", c.Warehouse.Driver)
	}
	return nil
}

func (c *Config) validateScraper() error {
	if len(c.Scraper.Channels) == 0 {
		return errors.New("scraper.channels must list at least one channel")
	}
	if c.Scraper.MessagesPerChannel < 0 {
		return errors.New("scraper.messages_per_channel must be >= 0")
	}
	if c.Scraper.RetryAttempts < 1 {
		return errors.New("scraper.retry_attempts must be >= 1")
	}
	if c.Scraper.RetryBackoffSeconds < 0 {
		return errors.New("scraper.retry_backoff_seconds must be >= 0")
	}
	switch c.Scraper.Source {
	case "synthetic":
	case "telegram":
		if c.Telegram.APIID == 0 || strings.TrimSpace(c.Telegram.APIHash) == "" {
			return errors.New("telegram.api_id and telegram.api_hash must be set when scraper.source is telegram (or set TELEGRAM_API_ID / TELEGRAM_API_HASH)")
		}
		if strings.TrimSpace(c.Telegram.Phone) == "" {
			return errors.New("telegram.phone must be set when scraper.source is telegram (or set TELEGRAM_PHONE)")
		}
	default:
		return fmt.Errorf("scraper.source must be synthetic or telegram, got %q", c.Scraper.Source)
	}
	return nil
}

func (c *Config) validateDetector() error {
	switch c.Detector.Mode {
	case "command":
		if len(c.Detector.Command) == 0 || strings.TrimSpace(c.Detector.Command[0]) == "" {
			return errors.New("detector.command must be set when detector.mode is command")
		}
	case "http":
		if c.Detector.URL == "" {
			return errors.New("detector.url must be set when detector.mode is http")
		}
	default:
		return fmt.Errorf("detector.mode must be command or http, got %q", c.Detector.Mode)
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"detector.timeout_seconds":      c.Detector.TimeoutSeconds,
		"pipeline.scrape_timeout":       c.Pipeline.ScrapeTimeout,
		"pipeline.load_timeout":         c.Pipeline.LoadTimeout,
		"pipeline.transform_timeout":    c.Pipeline.TransformTimeout,
		"pipeline.enrich_timeout":       c.Pipeline.EnrichTimeout,
		"pipeline.load_retry_attempts":  c.Pipeline.LoadRetryAttempts,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"transform.output_tail_chars":   c.Transform.OutputTailChars,
	})
}

func (c *Config) validateAPI() error {
	switch c.API.ImageDetections {
	case "auto", "enabled", "disabled":
		return nil
	default:
		return fmt.Errorf("api.image_detections must be auto, enabled or disabled, got %q", c.API.ImageDetections)
	}
}

func (c *Config) validateNotifications() error {
	if len(c.Notifications.KafkaBrokers) > 0 && c.Notifications.KafkaTopic == "" {
		return errors.New("notifications.kafka_topic must be set when notifications.kafka_brokers is configured")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
