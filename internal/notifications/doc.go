// Package notifications delivers pipeline run events via pluggable notifiers.
//
// Two transports exist: ntfy push messages and a Kafka topic carrying JSON
// event records. Either, both or neither may be configured; with neither,
// NewService returns a no-op. Per-event toggles in the notifications section
// suppress run_started, run_completed and run_failed independently.
//
// Pipeline code depends only on the Service interface.
package notifications
