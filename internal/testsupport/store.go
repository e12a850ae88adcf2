package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"minutes/internal/config"
	"minutes/internal/tasks"
)

// MustOpenStore opens a tasks.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *tasks.Store {
	t.Helper()

	store, err := tasks.Open(cfg)
	if err != nil {
		t.Fatalf("tasks.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask creates a pending task for pipeline using a fresh run id.
func NewTask(t testing.TB, store *tasks.Store, pipeline string) *tasks.Task {
	t.Helper()

	task, err := store.Create(context.Background(), tasks.NewTask{
		RunID:    uuid.NewString(),
		Pipeline: pipeline,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return task
}
