// Package services defines shared utilities consumed by the pipeline stages,
// the reporting layer and the read API.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, lake partitions and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. KindOf turns any wrapped
//     error into the stable kind reported by the CLI and the HTTP API.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
