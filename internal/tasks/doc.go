// Package tasks persists analysis task records in SQLite.
//
// Each HTTP or CLI invocation creates one task that moves through
// pending -> running -> completed|failed. The record keeps the uploaded file
// paths, the per-run workspace, the pipeline name, and either the report JSON
// or the failure kind and message. Intermediate pipeline state is never
// stored; tasks still running when the server stops are marked failed on the
// next start.
package tasks
