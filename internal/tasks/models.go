package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"minutes/internal/services"
	"minutes/internal/stage"
)

// Status represents the lifecycle of an analysis task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// InterruptedReason is recorded on tasks that were still in flight when the
// server stopped.
const InterruptedReason = "server stopped before the run finished"

// In-flight tasks refresh updated_at every HeartbeatInterval. A task whose
// last update is older than StaleAfter is no longer owned by a live process.
const (
	HeartbeatInterval = 30 * time.Second
	StaleAfter        = 3 * HeartbeatInterval
)

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus validates a status name.
func ParseStatus(value string) (Status, error) {
	switch status := Status(value); status {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("unknown task status %q", value)
	}
}

// Task is a persisted analysis request.
type Task struct {
	ID             int64      `json:"id"`
	RunID          string     `json:"run_id"`
	Pipeline       string     `json:"pipeline"`
	Status         Status     `json:"status"`
	DeckPath       string     `json:"deck_path,omitempty"`
	VideoPath      string     `json:"video_path,omitempty"`
	TranscriptPath string     `json:"transcript_path,omitempty"`
	WorkspaceDir   string     `json:"workspace_dir,omitempty"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	ErrorStage     string     `json:"error_stage,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ReportJSON     string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// NewTask carries the fields known when a task is created.
type NewTask struct {
	RunID          string
	Pipeline       string
	DeckPath       string
	VideoPath      string
	TranscriptPath string
	WorkspaceDir   string
}

// Report decodes the stored report, returning nil when none was recorded.
func (t *Task) Report() (*stage.Report, error) {
	if t == nil || t.ReportJSON == "" {
		return nil, nil
	}
	var report stage.Report
	if err := json.Unmarshal([]byte(t.ReportJSON), &report); err != nil {
		return nil, fmt.Errorf("decode report for task %d: %w", t.ID, err)
	}
	return &report, nil
}

// Failure returns the stored failure detail, or nil for tasks without one.
func (t *Task) Failure() *services.Detail {
	if t == nil || t.ErrorKind == "" {
		return nil
	}
	return &services.Detail{Kind: services.Kind(t.ErrorKind), Stage: t.ErrorStage, Message: t.ErrorMessage}
}

// Duration reports how long the run took, or zero while it is unfinished.
func (t *Task) Duration() time.Duration {
	if t == nil || t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}
