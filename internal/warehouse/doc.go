// Package warehouse persists raw messages, image detections, dimensional marts
// and pipeline run history in a relational database.
//
// Two backends are supported through database/sql and sqlx: SQLite via
// modernc.org/sqlite (the default, a file under state_dir) and PostgreSQL via
// lib/pq. Queries are written once with '?' placeholders and rebound per
// driver. The schema lives in embedded golang-migrate migrations applied by
// Open.
//
// Raw tables are insert-only: conflicts on natural keys are skipped and
// counted, never overwritten. Marts are replaced wholesale inside a single
// transaction so readers never observe a half-built star schema.
package warehouse
