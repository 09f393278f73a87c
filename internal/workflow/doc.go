// Package workflow runs the ingestion pipeline: scraping, loading,
// transforming and enriching, strictly in that order.
//
// One call to Manager.Run is one pipeline run. The manager holds a
// non-blocking single-run lock for its whole duration, persists the run in
// pipeline_runs before every stage transition, gives each stage the deadline
// from the pipeline config section and hands it the previous stage's result.
// A failed stage fails the run; the stages after it are reported as skipped
// and never executed. Run events go to the notification service.
//
// Runs left in a processing state by a crashed process are reclaimed with
// ReclaimInterrupted before the next run starts.
package workflow
