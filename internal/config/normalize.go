package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWarehouse()
	c.normalizeScraper()
	if err := c.normalizeTelegram(); err != nil {
		return err
	}
	c.normalizeDetector()
	if err := c.normalizeTransform(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWarehouse() {
	c.Warehouse.Driver = strings.ToLower(strings.TrimSpace(c.Warehouse.Driver))
	if c.Warehouse.Driver == "postgresql" {
		c.Warehouse.Driver = "postgres"
	}
	c.Warehouse.DSN = strings.TrimSpace(c.Warehouse.DSN)
	if c.Warehouse.DSN == "" {
		c.Warehouse.DSN = firstEnv("WAREHOUSE_DSN", "DATABASE_URL")
	}
	if c.Warehouse.DSN == "" && c.Warehouse.Driver == "sqlite" {
		c.Warehouse.DSN = filepath.Join(c.Paths.StateDir, defaultWarehouseFile)
	}
}

func (c *Config) normalizeScraper() {
	c.Scraper.Source = strings.ToLower(strings.TrimSpace(c.Scraper.Source))
	seen := make(map[string]struct{}, len(c.Scraper.Channels))
	channels := make([]string, 0, len(c.Scraper.Channels))
	for _, ch := range c.Scraper.Channels {
		ch = strings.TrimPrefix(strings.TrimSpace(ch), "@")
		if ch == "" {
			continue
		}
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}
	c.Scraper.Channels = channels
}

func (c *Config) normalizeTelegram() error {
	if c.Telegram.APIID == 0 {
		if value := firstEnv("TELEGRAM_API_ID"); value != "" {
			id, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("TELEGRAM_API_ID: %w", err)
			}
			c.Telegram.APIID = id
		}
	}
	if strings.TrimSpace(c.Telegram.APIHash) == "" {
		c.Telegram.APIHash = firstEnv("TELEGRAM_API_HASH")
	}
	if strings.TrimSpace(c.Telegram.Phone) == "" {
		c.Telegram.Phone = firstEnv("TELEGRAM_PHONE")
	}
	if strings.TrimSpace(c.Telegram.SessionPath) == "" {
		c.Telegram.SessionPath = filepath.Join(c.Paths.StateDir, defaultSessionFile)
	}
	var err error
	if c.Telegram.SessionPath, err = expandPath(c.Telegram.SessionPath); err != nil {
		return fmt.Errorf("telegram.session_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeDetector() {
	c.Detector.Mode = strings.ToLower(strings.TrimSpace(c.Detector.Mode))
	c.Detector.URL = strings.TrimSpace(c.Detector.URL)
	if c.Detector.Workers <= 0 {
		c.Detector.Workers = 1
	}
}

func (c *Config) normalizeTransform() error {
	c.Transform.DbtBinary = strings.TrimSpace(c.Transform.DbtBinary)
	if c.Transform.DbtBinary == "" {
		c.Transform.DbtBinary = defaultDbtBinary
	}
	if c.Transform.OutputTailChars <= 0 {
		c.Transform.OutputTailChars = defaultOutputTailChars
	}
	var err error
	if c.Transform.DbtProjectDir, err = expandPath(c.Transform.DbtProjectDir); err != nil {
		return fmt.Errorf("transform.dbt_project_dir: %w", err)
	}
	if c.Transform.DbtProfilesDir, err = expandPath(c.Transform.DbtProfilesDir); err != nil {
		return fmt.Errorf("transform.dbt_profiles_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if strings.TrimSpace(c.API.Token) == "" {
		c.API.Token = firstEnv("API_TOKEN")
	}
	c.API.ImageDetections = strings.ToLower(strings.TrimSpace(c.API.ImageDetections))
	if c.API.ImageDetections == "" {
		c.API.ImageDetections = defaultImageDetections
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.KafkaTopic = strings.TrimSpace(c.Notifications.KafkaTopic)
	brokers := c.Notifications.KafkaBrokers[:0]
	for _, b := range c.Notifications.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Notifications.KafkaBrokers = brokers
}

func (c *Config) normalizeLogging() {
	if level := firstEnv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
