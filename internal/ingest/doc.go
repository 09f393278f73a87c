// Package ingest loads partitioned lake files into the raw warehouse tables.
//
// Each channel file is applied as one insert-or-skip batch, so a malformed or
// unreadable file never blocks its siblings and re-loading a partition is a
// no-op for rows already present.
package ingest
