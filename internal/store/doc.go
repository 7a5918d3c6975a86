// Package store persists the pipeline's logical tables behind a
// SQLite-backed Store: episodes, pipeline runs, content artifacts, media
// assets, prompt versions, review tasks and decisions, publish jobs, and
// channels.
//
// The schema is embedded and versioned: an initial schema carries a
// schema_version row, and numbered migrations under migrations/ are
// applied in order and recorded in schema_migrations so repeated opens
// are idempotent.
package store
