package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"medwarehouse/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the on-disk layout.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Warehouse selects the relational backend.
type Warehouse struct {
	Driver string `toml:"driver"` // sqlite or postgres
	DSN    string `toml:"dsn"`
}

// Scraper controls how channel posts are collected.
type Scraper struct {
	Source              string   `toml:"source"` // synthetic or telegram
	Channels            []string `toml:"channels"`
	MessagesPerChannel  int      `toml:"messages_per_channel"`
	RetryAttempts       int      `toml:"retry_attempts"`
	RetryBackoffSeconds int      `toml:"retry_backoff_seconds"`
	DownloadImages      bool     `toml:"download_images"`
	Seed                int64    `toml:"seed"`
}

// Telegram holds MTProto credentials used by the telegram scraper source.
type Telegram struct {
	APIID       int    `toml:"api_id"`
	APIHash     string `toml:"api_hash"`
	Phone       string `toml:"phone"`
	SessionPath string `toml:"session_path"`
	Debug       bool   `toml:"debug"`
}

// Detector configures the object detection collaborator.
type Detector struct {
	Mode           string   `toml:"mode"` // command or http
	Command        []string `toml:"command"`
	URL            string   `toml:"url"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	Workers        int      `toml:"workers"`
}

// Transform configures the optional external transformation tool.
type Transform struct {
	DbtEnabled      bool   `toml:"dbt_enabled"`
	DbtBinary       string `toml:"dbt_binary"`
	DbtProjectDir   string `toml:"dbt_project_dir"`
	DbtProfilesDir  string `toml:"dbt_profiles_dir"`
	OutputTailChars int    `toml:"output_tail_chars"`
}

// Pipeline holds per-stage deadlines in seconds.
type Pipeline struct {
	ScrapeTimeout     int `toml:"scrape_timeout"`
	LoadTimeout       int `toml:"load_timeout"`
	TransformTimeout  int `toml:"transform_timeout"`
	EnrichTimeout     int `toml:"enrich_timeout"`
	LoadRetryAttempts int `toml:"load_retry_attempts"`
}

// API configures the HTTP read API.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
	// ImageDetections is auto, enabled or disabled.
	ImageDetections string `toml:"image_detections"`
}

// Notifications configures run event delivery.
type Notifications struct {
	NtfyTopic      string   `toml:"ntfy_topic"`
	RequestTimeout int      `toml:"request_timeout"`
	KafkaBrokers   []string `toml:"kafka_brokers"`
	KafkaTopic     string   `toml:"kafka_topic"`
	RunStarted     bool     `toml:"run_started"`
	RunCompleted   bool     `toml:"run_completed"`
	RunFailed      bool     `toml:"run_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for medwarehouse.
//
// Configuration sections by subsystem:
//   - Paths: lake, state and log directories
//   - Warehouse: database driver and DSN
//   - Scraper, Telegram: post collection
//   - Detector: image enrichment collaborator
//   - Transform: optional dbt run/test
//   - Pipeline: stage deadlines
//   - API: read API bind, auth and capability selection
//   - Notifications: ntfy and Kafka run events
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Warehouse     Warehouse     `toml:"warehouse"`
	Scraper       Scraper       `toml:"scraper"`
	Telegram      Telegram      `toml:"telegram"`
	Detector      Detector      `toml:"detector"`
	Transform     Transform     `toml:"transform"`
	Pipeline      Pipeline      `toml:"pipeline"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A .env file in
// the working directory or next to the config file is loaded first; it never
// overrides variables already set in the environment.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadDotEnv(filepath.Dir(resolvedPath))

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(configDir string) {
	candidates := []string{".env"}
	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			_ = godotenv.Load(candidate)
		}
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the data, state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LakeDir is the root of the partitioned raw message lake.
func (c *Config) LakeDir() string {
	return filepath.Join(c.Paths.DataDir, "raw", "telegram_messages")
}

// ImagesDir is the root of downloaded channel images.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.Paths.DataDir, "raw", "images")
}

// EnrichedDir holds enrichment outputs such as the detection CSV.
func (c *Config) EnrichedDir() string {
	return filepath.Join(c.Paths.DataDir, "enriched")
}

// PipelineLockPath guards against concurrent pipeline runs.
func (c *Config) PipelineLockPath() string {
	return filepath.Join(c.Paths.StateDir, "pipeline.lock")
}

// RebuildLockPath coordinates lake loads with mart rebuilds.
func (c *Config) RebuildLockPath() string {
	return filepath.Join(c.Paths.StateDir, "rebuild.lock")
}

// StageTimeout returns the configured deadline for a pipeline stage.
// Unknown stages get no deadline.
func (c *Config) StageTimeout(stage string) time.Duration {
	var seconds int
	switch stage {
	case "scraping":
		seconds = c.Pipeline.ScrapeTimeout
	case "loading":
		seconds = c.Pipeline.LoadTimeout
	case "transforming":
		seconds = c.Pipeline.TransformTimeout
	case "enriching":
		seconds = c.Pipeline.EnrichTimeout
	}
	return time.Duration(seconds) * time.Second
}

// DetectorTimeout is the per-image detector deadline.
func (c *Config) DetectorTimeout() time.Duration {
	return time.Duration(c.Detector.TimeoutSeconds) * time.Second
}

// RetryBackoff is the base delay between scraper retries.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Scraper.RetryBackoffSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
