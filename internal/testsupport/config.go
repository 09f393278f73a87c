package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"medwarehouse/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The warehouse is a SQLite file under the state directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Warehouse.Driver = "sqlite"
	cfgVal.Warehouse.DSN = filepath.Join(cfgVal.Paths.StateDir, "warehouse.db")
	cfgVal.Telegram.SessionPath = filepath.Join(cfgVal.Paths.StateDir, "telegram.session")
	cfgVal.Scraper.RetryBackoffSeconds = 0
	cfgVal.Scraper.Seed = 42
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithChannels overrides the scraped channel list.
func WithChannels(channels ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scraper.Channels = append([]string(nil), channels...)
	}
}

// WithDetectorCommand points the command-mode detector at argv.
func WithDetectorCommand(argv ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Detector.Mode = "command"
		b.cfg.Detector.Command = append([]string(nil), argv...)
	}
}

// WithDetectorScript writes a shell script that prints output for every image
// and configures it as the detector command.
func WithDetectorScript(output string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "bin", "detector.sh")
		writeScript(b.t, path, "#!/bin/sh\ncat <<'JSON'\n"+output+"\nJSON\n")
		b.cfg.Detector.Mode = "command"
		b.cfg.Detector.Command = []string{path}
	}
}

// WithDbt enables the transform tool using the named binary.
func WithDbt(binary string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transform.DbtEnabled = true
		b.cfg.Transform.DbtBinary = binary
		b.cfg.Transform.DbtProjectDir = filepath.Join(b.baseDir, "dbt")
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, dbt is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return WithStubbedScript("#!/bin/sh\nexit 0\n", names...)
}

// WithStubbedScript is WithStubbedBinaries with a custom script body.
func WithStubbedScript(script string, names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"dbt"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			writeScript(b.t, filepath.Join(binDir, name), script)
		}

		oldPath := os.Getenv("PATH")
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath)
	}
}

func writeScript(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
