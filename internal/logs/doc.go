// Package logs reads per-run pipeline log files: locating the file for a run,
// returning its last lines, and following appended output until the caller's
// context ends.
package logs
