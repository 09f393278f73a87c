package config

const (
	defaultConfigPath        = "~/.config/medwarehouse/config.toml"
	projectConfigName        = "medwarehouse.toml"
	defaultDataDir           = "~/.local/share/medwarehouse/data"
	defaultStateDir          = "~/.local/share/medwarehouse/state"
	defaultLogDir            = "~/.local/share/medwarehouse/logs"
	defaultWarehouseDriver   = "sqlite"
	defaultWarehouseFile     = "warehouse.db"
	defaultSessionFile       = "telegram.session"
	defaultScraperSource     = "synthetic"
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2
	defaultDetectorMode      = "command"
	defaultDetectorTimeout   = 60
	defaultDetectorWorkers   = 4
	defaultDbtBinary         = "dbt"
	defaultOutputTailChars   = 500
	defaultScrapeTimeout     = 1800
	defaultLoadTimeout       = 600
	defaultTransformTimeout  = 1800
	defaultEnrichTimeout     = 3600
	defaultLoadRetryAttempts = 3
	defaultAPIBind           = "127.0.0.1:8000"
	defaultImageDetections   = "auto"
	defaultRequestTimeout    = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// DefaultChannels are the medical, pharmaceutical and cosmetics channels the
// warehouse tracks out of the box.
var DefaultChannels = []string{
	"chemed",
	"lobelia4cosmetics",
	"tikvahpharma",
	"ethiopharmacy",
	"addispharma",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Warehouse: Warehouse{
			Driver: defaultWarehouseDriver,
		},
		Scraper: Scraper{
			Source:              defaultScraperSource,
			Channels:            append([]string(nil), DefaultChannels...),
			RetryAttempts:       defaultRetryAttempts,
			RetryBackoffSeconds: defaultRetryBackoff,
			DownloadImages:      true,
		},
		Detector: Detector{
			Mode:           defaultDetectorMode,
			Command:        []string{"python3", "scripts/yolo_detect.py"},
			TimeoutSeconds: defaultDetectorTimeout,
			Workers:        defaultDetectorWorkers,
		},
		Transform: Transform{
			DbtBinary:       defaultDbtBinary,
			OutputTailChars: defaultOutputTailChars,
		},
		Pipeline: Pipeline{
			ScrapeTimeout:     defaultScrapeTimeout,
			LoadTimeout:       defaultLoadTimeout,
			TransformTimeout:  defaultTransformTimeout,
			EnrichTimeout:     defaultEnrichTimeout,
			LoadRetryAttempts: defaultLoadRetryAttempts,
		},
		API: API{
			Bind:            defaultAPIBind,
			ImageDetections: defaultImageDetections,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
			RunStarted:     true,
			RunCompleted:   true,
			RunFailed:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
