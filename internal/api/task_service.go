package api

import (
	"context"

	"minutes/internal/tasks"
)

// TaskReader abstracts the task persistence needed for API queries.
type TaskReader interface {
	List(ctx context.Context, statuses ...tasks.Status) ([]*tasks.Task, error)
	Stats(ctx context.Context) (map[tasks.Status]int, error)
	Get(ctx context.Context, id int64) (*tasks.Task, error)
}

// TaskService exposes read-only task operations returning API DTOs.
type TaskService struct {
	store TaskReader
}

// NewTaskService constructs a TaskService around the provided reader.
func NewTaskService(store TaskReader) *TaskService {
	if store == nil {
		return nil
	}
	return &TaskService{store: store}
}

// List returns tasks filtered by status, newest first.
func (s *TaskService) List(ctx context.Context, statuses ...tasks.Status) ([]Task, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromTasks(items), nil
}

// Stats returns task counts keyed by status string.
func (s *TaskService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeTaskStats(stats), nil
}

// Describe fetches a single task with its report.
func (s *TaskService) Describe(ctx context.Context, id int64) (*Task, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.Get(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	dto := FromTask(item, true)
	return &dto, nil
}
