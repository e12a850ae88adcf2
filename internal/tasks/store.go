package tasks

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"minutes/internal/config"
	"minutes/internal/services"
	"minutes/internal/stage"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrNotFound is returned by transitions on a task id that does not exist.
var ErrNotFound = errors.New("task not found")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const taskColumns = "id, run_id, pipeline, status, deck_path, video_path, transcript_path, workspace_dir, error_kind, error_stage, error_message, report_json, created_at, updated_at, started_at, finished_at"

// Store manages task persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the task database under the data directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the database at dbPath, creating the schema when needed.
func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Create inserts a pending task.
func (s *Store) Create(ctx context.Context, task NewTask) (*Task, error) {
	if strings.TrimSpace(task.RunID) == "" {
		return nil, errors.New("create task: run id required")
	}
	if strings.TrimSpace(task.Pipeline) == "" {
		return nil, errors.New("create task: pipeline required")
	}
	timestamp := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO analysis_tasks (
            run_id, pipeline, status, deck_path, video_path, transcript_path,
            workspace_dir, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.RunID,
		task.Pipeline,
		StatusPending,
		nullableString(task.DeckPath),
		nullableString(task.VideoPath),
		nullableString(task.TranscriptPath),
		nullableString(task.WorkspaceDir),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a task by identifier, returning nil when it does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM analysis_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// GetByRunID fetches a task by its pipeline run id.
func (s *Store) GetByRunID(ctx context.Context, runID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM analysis_tasks WHERE run_id = ?`, runID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task by run id: %w", err)
	}
	return task, nil
}

// List returns tasks newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM analysis_tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// MarkRunning moves a task into the running state.
func (s *Store) MarkRunning(ctx context.Context, id int64) error {
	timestamp := s.timestamp()
	return s.transition(ctx, "mark running",
		`UPDATE analysis_tasks SET status = ?, started_at = ?, updated_at = ? WHERE id = ?`,
		StatusRunning, timestamp, timestamp, id)
}

// Complete stores the report and marks the task completed.
func (s *Store) Complete(ctx context.Context, id int64, report *stage.Report) error {
	encoded, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	timestamp := s.timestamp()
	return s.transition(ctx, "complete task",
		`UPDATE analysis_tasks
         SET status = ?, report_json = ?, error_kind = NULL, error_stage = NULL, error_message = NULL,
             finished_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusCompleted, string(encoded), timestamp, timestamp, id)
}

// Fail records a failure and marks the task failed.
func (s *Store) Fail(ctx context.Context, id int64, detail services.Detail) error {
	timestamp := s.timestamp()
	return s.transition(ctx, "fail task",
		`UPDATE analysis_tasks
         SET status = ?, error_kind = ?, error_stage = ?, error_message = ?, finished_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusFailed, nullableString(string(detail.Kind)), nullableString(detail.Stage),
		nullableString(detail.Message), timestamp, timestamp, id)
}

// Record persists the terminal pipeline state of a task.
func (s *Store) Record(ctx context.Context, id int64, final stage.State) error {
	if final.Error != nil {
		return s.Fail(ctx, id, final.Error.Detail())
	}
	return s.Complete(ctx, id, final.Report)
}

// Delete removes a task record. It reports whether a row was deleted.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM analysis_tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task rows: %w", err)
	}
	return affected > 0, nil
}

// Heartbeat refreshes updated_at of a pending or running task so startup
// recovery leaves it alone.
func (s *Store) Heartbeat(ctx context.Context, id int64) error {
	return s.transition(ctx, "task heartbeat",
		`UPDATE analysis_tasks SET updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		s.timestamp(), id, StatusPending, StatusRunning)
}

// MarkInterrupted fails pending or running tasks whose last update is not
// after cutoff. The server calls it on start; tasks a live CLI run keeps
// heartbeating are skipped.
func (s *Store) MarkInterrupted(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := s.staleTaskIDs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted tasks: %w", err)
	}
	var marked int64
	for _, id := range ids {
		timestamp := s.timestamp()
		res, err := s.execWithRetry(ctx,
			`UPDATE analysis_tasks
             SET status = ?, error_kind = ?, error_message = ?, finished_at = ?, updated_at = ?
             WHERE id = ? AND status IN (?, ?)`,
			StatusFailed, string(services.KindCanceled), InterruptedReason, timestamp, timestamp,
			id, StatusPending, StatusRunning,
		)
		if err != nil {
			return marked, fmt.Errorf("mark interrupted task %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return marked, fmt.Errorf("mark interrupted task %d rows: %w", id, err)
		}
		marked += affected
	}
	return marked, nil
}

func (s *Store) staleTaskIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, updated_at FROM analysis_tasks WHERE status IN (?, ?) ORDER BY id`,
		StatusPending, StatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		var updatedRaw sql.NullString
		if err := rows.Scan(&id, &updatedRaw); err != nil {
			return nil, err
		}
		updated, err := parseTimeString(updatedRaw.String)
		if err != nil || !updated.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM analysis_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Ping verifies the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping task database: %w", err)
	}
	return nil
}

func (s *Store) transition(ctx context.Context, op, query string, args ...any) error {
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}
