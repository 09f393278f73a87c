// Package preflight provides readiness checks for the paths, services and
// tools the pipeline depends on.
//
// These checks run in two contexts:
//   - The workflow manager's status summary and the CLI "medwh status"
//     command render RunAll results next to stage health.
//   - "medwh pipeline run" calls RunAll first and refuses to start when a
//     required check fails.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
