package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"medwarehouse/internal/config"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello file")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello file") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerFormat(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "loader").Info("partition loaded", logging.Int("files", 3), logging.String("note", "two words"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{" INFO loader: partition loaded", "files=3", `note="two words"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "json message" || entry["k"] != "v" {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %#v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

type captureHandler struct {
	records *[]slog.Record
	attrs   []slog.Attr
}

func (h captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h captureHandler) Handle(_ context.Context, r slog.Record) error {
	r.AddAttrs(h.attrs...)
	*h.records = append(*h.records, r)
	return nil
}

func (h captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return captureHandler{records: h.records, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h captureHandler) WithGroup(string) slog.Handler { return h }

func recordAttrs(r slog.Record) map[string]string {
	out := map[string]string{}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.String()
		return true
	})
	return out
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-9")
	ctx = services.WithStage(ctx, "loading")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var records []slog.Record
	logger := slog.New(captureHandler{records: &records})
	logging.WithContext(ctx, logger).Info("contextual log")

	if len(records) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(records))
	}
	attrs := recordAttrs(records[0])
	if attrs[logging.FieldRunID] != "run-9" || attrs[logging.FieldStage] != "loading" || attrs[logging.FieldCorrelationID] != "req-xyz" {
		t.Fatalf("unexpected attrs %#v", attrs)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var records []slog.Record
	logger := slog.New(captureHandler{records: &records})
	logging.WarnWithContext(logger, "file skipped", "lake_file_skipped", logging.Impact("file not loaded"))

	attrs := recordAttrs(records[0])
	if attrs[logging.FieldEventType] != "lake_file_skipped" {
		t.Fatalf("event_type = %q", attrs[logging.FieldEventType])
	}
	if attrs[logging.FieldErrorHint] == "" {
		t.Fatal("expected default error hint")
	}
	if attrs[logging.FieldImpact] != "file not loaded" {
		t.Fatalf("explicit impact overwritten: %q", attrs[logging.FieldImpact])
	}
}

func TestErrorWithContextClassifiesError(t *testing.T) {
	var records []slog.Record
	logger := slog.New(captureHandler{records: &records})
	err := services.Wrap(services.ErrNotFound, "loading", "open", "missing partition", nil)
	logging.ErrorWithContext(logger, "load failed", "ingest.file_failed",
		logging.Error(err),
		logging.ErrorKind(err),
		logging.ErrorHint(err),
		logging.Channel("chemed"),
	)

	attrs := recordAttrs(records[0])
	if attrs[logging.FieldErrorKind] != string(services.KindNotFound) {
		t.Fatalf("error_kind = %q", attrs[logging.FieldErrorKind])
	}
	if attrs[logging.FieldErrorHint] != services.Hint(err) {
		t.Fatalf("error_hint = %q", attrs[logging.FieldErrorHint])
	}
	if attrs[logging.FieldChannel] != "chemed" || attrs[logging.FieldEventType] != "ingest.file_failed" {
		t.Fatalf("unexpected attrs %#v", attrs)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.log")
	activePath := filepath.Join(dir, "active.log")
	freshPath := filepath.Join(dir, "fresh.log")
	for _, p := range []string{oldPath, activePath, freshPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, p := range []string{oldPath, activePath} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{Dir: dir, Pattern: "*.log", Exclude: []string{activePath}})
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, p := range []string{activePath, freshPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}

func TestTeeWritesRunFileAndParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "run-1.log")
	fileHandler, closer, err := logging.NewFileHandler(path, "info")
	if err != nil {
		t.Fatalf("NewFileHandler: %v", err)
	}
	parent := &captureHandler{records: &[]slog.Record{}}
	logger := slog.New(logging.Tee(parent, fileHandler)).With(logging.RunID("run-1"))
	logger.Info("stage started", logging.Stage("loading"))
	logger.Debug("filtered by the file level")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"run_id":"run-1"`) || !strings.Contains(text, `"stage":"loading"`) {
		t.Fatalf("run log missing fields: %s", text)
	}
	if strings.Contains(text, "filtered by the file level") {
		t.Fatalf("debug line should not reach an info file: %s", text)
	}
	if len(*parent.records) != 2 {
		t.Fatalf("parent should see both records, got %d", len(*parent.records))
	}
}
