// Package logging assembles the structured slog loggers used by the pipeline,
// the CLI and the read API.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with run IDs, stages, partitions and
// correlation IDs. A no-op logger is provided for tests and for wiring code
// that cannot fail.
package logging
