// Package api defines wire-format types and converters for the HTTP API and
// the CLI's JSON output. It translates task records and pipeline outcomes
// into transport-friendly DTOs without coupling consumers to internal types.
//
// # Key Types
//
// Task: transport representation of an analysis task with its failure and,
// when loaded individually, its report.
//
// AnalysisResponse: the result of submitting work, either a report or an
// error detail.
//
// HealthResponse: database reachability, task counts, and stage readiness.
//
// # Converters
//
// FromTask: tasks.Task -> Task.
//
// FromResult: task record plus terminal state -> AnalysisResponse.
//
// StageHealthSlice: stage.Health -> StageHealth.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. The report keeps the snake_case field names
// the pipeline produces so clients receive the same document the CLI prints.
// Timestamps use RFC3339 with milliseconds.
package api
