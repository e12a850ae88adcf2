package api

import "minutes/internal/stage"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Response statuses for AnalysisResponse.
const (
	StatusAccepted  = "accepted"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrorDetail is the serialised failure of a run.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// Task describes an analysis task in a transport-friendly format.
type Task struct {
	ID             int64         `json:"id"`
	RunID          string        `json:"runId"`
	Pipeline       string        `json:"pipeline"`
	Status         string        `json:"status"`
	DeckPath       string        `json:"deckPath,omitempty"`
	VideoPath      string        `json:"videoPath,omitempty"`
	TranscriptPath string        `json:"transcriptPath,omitempty"`
	WorkspaceDir   string        `json:"workspaceDir,omitempty"`
	Error          *ErrorDetail  `json:"error,omitempty"`
	CreatedAt      string        `json:"createdAt,omitempty"`
	UpdatedAt      string        `json:"updatedAt,omitempty"`
	StartedAt      string        `json:"startedAt,omitempty"`
	FinishedAt     string        `json:"finishedAt,omitempty"`
	DurationMillis int64         `json:"durationMs,omitempty"`
	Report         *stage.Report `json:"report,omitempty"`
}

// AnalysisResponse is returned when work is submitted.
type AnalysisResponse struct {
	Status string        `json:"status"`
	RunID  string        `json:"runId"`
	Task   Task          `json:"task"`
	Report *stage.Report `json:"report,omitempty"`
	Error  *ErrorDetail  `json:"error,omitempty"`
}

// TaskListResponse wraps a task listing.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse summarizes server readiness.
type HealthResponse struct {
	Status    string         `json:"status"`
	Pipeline  string         `json:"pipeline"`
	Database  string         `json:"database"`
	TaskStats map[string]int `json:"taskStats"`
	Stages    []StageHealth  `json:"stages,omitempty"`
}

// Pipeline describes a runnable pipeline.
type Pipeline struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Stages      []string `json:"stages"`
	Default     bool     `json:"default,omitempty"`
}

// PipelinesResponse wraps the pipeline listing.
type PipelinesResponse struct {
	Pipelines []Pipeline `json:"pipelines"`
}

// ErrorResponse is the body of every non-2xx reply that is not an analysis
// outcome.
type ErrorResponse struct {
	Error string `json:"error"`
}
