package api

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"minutes/internal/services"
	"minutes/internal/stage"
	"minutes/internal/tasks"
)

func TestFromTaskIncludesFailureAndTimes(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	task := &tasks.Task{
		ID:           7,
		RunID:        "run-7",
		Pipeline:     "meeting_analysis",
		Status:       tasks.StatusFailed,
		ErrorKind:    string(services.KindExternalCallExhausted),
		ErrorStage:   "fuse",
		ErrorMessage: "fusion failed",
		CreatedAt:    started,
		StartedAt:    &started,
		FinishedAt:   &finished,
	}

	got := FromTask(task, true)
	want := Task{
		ID:             7,
		RunID:          "run-7",
		Pipeline:       "meeting_analysis",
		Status:         "failed",
		Error:          &ErrorDetail{Kind: "ExternalCallExhausted", Stage: "fuse", Message: "fusion failed"},
		CreatedAt:      "2026-03-01T10:00:00.000Z",
		StartedAt:      "2026-03-01T10:00:00.000Z",
		FinishedAt:     "2026-03-01T10:00:01.500Z",
		DurationMillis: 1500,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("task mismatch (-want +got):\n%s", diff)
	}
}

func TestFromTaskDecodesReport(t *testing.T) {
	task := &tasks.Task{ID: 1, Status: tasks.StatusCompleted, ReportJSON: `{"summary":"ok","action_items":[],"context_fields":{},"final_decision":"ship"}`}
	if got := FromTask(task, false); got.Report != nil {
		t.Fatalf("expected no report without withReport, got %+v", got.Report)
	}
	got := FromTask(task, true)
	if got.Report == nil || got.Report.FinalDecision != "ship" {
		t.Fatalf("expected decoded report, got %+v", got.Report)
	}
}

func TestFromResult(t *testing.T) {
	task := &tasks.Task{ID: 2, RunID: "run-2", Status: tasks.StatusCompleted}
	report := &stage.Report{Summary: "s", ActionItems: []string{}, ContextFields: map[string]string{}, FinalDecision: "d"}

	ok := FromResult(task, stage.State{RunID: "run-2", Report: report})
	if ok.Status != StatusCompleted || ok.Error != nil || ok.Report == nil || ok.RunID != "run-2" {
		t.Fatalf("unexpected success response %+v", ok)
	}

	failed := FromResult(task, stage.State{RunID: "run-2", Error: services.Missing("analyze", "fused_transcript")})
	if failed.Status != StatusFailed || failed.Report != nil {
		t.Fatalf("unexpected failed response %+v", failed)
	}
	if failed.Error.Kind != "MissingPrerequisite" || failed.Error.Stage != "analyze" {
		t.Fatalf("unexpected error detail %+v", failed.Error)
	}
}

type taskReaderStub struct {
	items []*tasks.Task
}

func (s *taskReaderStub) List(context.Context, ...tasks.Status) ([]*tasks.Task, error) {
	return s.items, nil
}

func (s *taskReaderStub) Stats(context.Context) (map[tasks.Status]int, error) {
	return map[tasks.Status]int{tasks.StatusPending: len(s.items)}, nil
}

func (s *taskReaderStub) Get(context.Context, int64) (*tasks.Task, error) {
	if len(s.items) == 0 {
		return nil, nil
	}
	return s.items[0], nil
}

func TestTaskService(t *testing.T) {
	svc := NewTaskService(&taskReaderStub{items: []*tasks.Task{{ID: 1, Pipeline: "transcript_insights", Status: tasks.StatusPending}}})
	ctx := context.Background()

	items, err := svc.List(ctx)
	if err != nil || len(items) != 1 || items[0].Pipeline != "transcript_insights" {
		t.Fatalf("unexpected list %+v, %v", items, err)
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := map[string]int{"pending": 1, "running": 0, "completed": 0, "failed": 0}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}

	empty := NewTaskService(&taskReaderStub{})
	task, err := empty.Describe(ctx, 1)
	if err != nil || task != nil {
		t.Fatalf("expected nil task, got %+v, %v", task, err)
	}
}
