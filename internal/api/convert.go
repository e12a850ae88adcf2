package api

import (
	"time"

	"minutes/internal/analysis"
	"minutes/internal/services"
	"minutes/internal/stage"
	"minutes/internal/tasks"
)

// FromTask converts a task record to its API representation. The stored
// report is decoded when withReport is set.
func FromTask(task *tasks.Task, withReport bool) Task {
	if task == nil {
		return Task{}
	}
	dto := Task{
		ID:             task.ID,
		RunID:          task.RunID,
		Pipeline:       task.Pipeline,
		Status:         string(task.Status),
		DeckPath:       task.DeckPath,
		VideoPath:      task.VideoPath,
		TranscriptPath: task.TranscriptPath,
		WorkspaceDir:   task.WorkspaceDir,
		Error:          fromDetail(task.Failure()),
		CreatedAt:      formatTime(task.CreatedAt),
		UpdatedAt:      formatTime(task.UpdatedAt),
		DurationMillis: task.Duration().Milliseconds(),
	}
	if task.StartedAt != nil {
		dto.StartedAt = formatTime(*task.StartedAt)
	}
	if task.FinishedAt != nil {
		dto.FinishedAt = formatTime(*task.FinishedAt)
	}
	if withReport {
		if report, err := task.Report(); err == nil {
			dto.Report = report
		}
	}
	return dto
}

// FromTasks converts a slice of task records.
func FromTasks(items []*tasks.Task) []Task {
	out := make([]Task, 0, len(items))
	for _, item := range items {
		out = append(out, FromTask(item, false))
	}
	return out
}

// FromResult builds the response for a finished run.
func FromResult(task *tasks.Task, final stage.State) AnalysisResponse {
	outcome := final.Outcome()
	resp := AnalysisResponse{
		Status: StatusCompleted,
		RunID:  outcome.RunID,
		Task:   FromTask(task, false),
		Report: outcome.Report,
		Error:  fromDetail(outcome.Error),
	}
	if resp.Error != nil {
		resp.Status = StatusFailed
	}
	return resp
}

// Accepted builds the response for work queued to run in the background.
func Accepted(task *tasks.Task) AnalysisResponse {
	dto := FromTask(task, false)
	return AnalysisResponse{Status: StatusAccepted, RunID: dto.RunID, Task: dto}
}

// StageHealthSlice converts stage readiness records.
func StageHealthSlice(health []stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromPipelines converts the runner's pipeline listing.
func FromPipelines(pipelines []analysis.Pipeline) []Pipeline {
	out := make([]Pipeline, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, Pipeline{Name: p.Name, Description: p.Description, Stages: p.Stages, Default: p.Default})
	}
	return out
}

// MergeTaskStats returns counts for every status, including zeroes.
func MergeTaskStats(stats map[tasks.Status]int) map[string]int {
	out := map[string]int{}
	for _, status := range []tasks.Status{tasks.StatusPending, tasks.StatusRunning, tasks.StatusCompleted, tasks.StatusFailed} {
		out[string(status)] = stats[status]
	}
	return out
}

func fromDetail(detail *services.Detail) *ErrorDetail {
	if detail == nil {
		return nil
	}
	return &ErrorDetail{Kind: string(detail.Kind), Stage: detail.Stage, Message: detail.Message}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
