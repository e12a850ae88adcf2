package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"minutes/internal/analysis"
	"minutes/internal/config"
	"minutes/internal/logging"
	"minutes/internal/notifications"
	"minutes/internal/retry"
	"minutes/internal/services"
	"minutes/internal/stage"
	"minutes/internal/tasks"
	"minutes/internal/workflow"
	"minutes/internal/workspace"
)

// Options overrides pieces of the runtime. Zero values select the configured
// defaults.
type Options struct {
	// DefinitionsPath loads pipeline definitions from a YAML file instead of
	// the built-in set.
	DefinitionsPath string
	Generator       analysis.Generator
	Transcriber     analysis.Transcriber
	Decks           analysis.DeckExtractor
	Sleeper         retry.Sleeper
	Observers       []workflow.Observer
	Notifier        notifications.Service
	// Store reuses an open task store. When nil, Build opens one and Close
	// releases it.
	Store *tasks.Store
	// HeartbeatInterval overrides how often running tasks refresh their
	// heartbeat.
	HeartbeatInterval time.Duration
}

// App is the assembled runtime.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Runner     *analysis.Runner
	Store      *tasks.Store
	Workspaces *workspace.Manager
	Notifier   notifications.Service

	ownsStore         bool
	heartbeatInterval time.Duration
}

// Build wires the runtime described by cfg.
func Build(cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	defs := workflow.DefaultDefinitions()
	if path := strings.TrimSpace(opts.DefinitionsPath); path != "" {
		loaded, err := workflow.LoadDefinitions(path)
		if err != nil {
			return nil, err
		}
		defs = loaded
	}

	var retryOpts []retry.Option
	if opts.Sleeper != nil {
		retryOpts = append(retryOpts, retry.WithSleeper(opts.Sleeper))
	}
	deps := analysis.Deps{
		Transcriber: opts.Transcriber,
		Generator:   opts.Generator,
		Decks:       opts.Decks,
		Retrier:     NewRetrier(cfg, logger, retryOpts...),
		Logger:      logger,
	}
	if deps.Generator == nil {
		deps.Generator = NewGeminiClient(cfg)
	}
	if deps.Transcriber == nil {
		deps.Transcriber = NewWhisperService(cfg)
	}

	execOpts := []workflow.ExecutorOption{workflow.WithLogger(logger)}
	for _, observer := range opts.Observers {
		execOpts = append(execOpts, workflow.WithObserver(observer))
	}
	runner, err := analysis.NewRunner(defs, analysis.Registry(deps), workflow.NewExecutor(execOpts...), cfg.Pipeline.Default)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Runner:     runner,
		Store:      opts.Store,
		Workspaces: workspace.New(cfg.Paths.WorkspaceDir, cfg.Pipeline.KeepWorkspace, logger),
		Notifier:   opts.Notifier,

		heartbeatInterval: opts.HeartbeatInterval,
	}
	if app.Notifier == nil {
		app.Notifier = notifications.NewService(cfg)
	}
	if app.Store == nil {
		store, err := tasks.Open(cfg)
		if err != nil {
			return nil, err
		}
		app.Store = store
		app.ownsStore = true
	}
	return app, nil
}

// Close releases the task store when Build opened it.
func (a *App) Close() error {
	if a == nil || !a.ownsStore || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// Job is one analysis request. Transcript carries inline transcript text;
// file inputs are absolute paths.
type Job struct {
	RunID          string
	Pipeline       string
	WorkspaceDir   string
	Transcript     string
	TranscriptPath string
	DeckPath       string
	VideoPath      string
}

// NewJob resolves pipeline and allocates a run id and workspace directory.
func (a *App) NewJob(pipeline string) (Job, error) {
	name, err := a.Runner.Resolve(pipeline)
	if err != nil {
		return Job{}, err
	}
	runID := uuid.NewString()
	dir, err := a.Workspaces.Create(runID)
	if err != nil {
		return Job{}, err
	}
	return Job{RunID: runID, Pipeline: name, WorkspaceDir: dir}, nil
}

// Result is the outcome of an executed job.
type Result struct {
	Task  *tasks.Task
	State stage.State
}

// Failure returns the run's failure, or nil when it produced a report.
func (r Result) Failure() *services.Failure { return r.State.Error }

// Execute records job as a task and processes it. Stage failures are
// reported on the result; the error return covers bookkeeping and pipeline
// configuration problems.
func (a *App) Execute(ctx context.Context, job Job) (Result, error) {
	job, task, err := a.Submit(ctx, job)
	if err != nil {
		return Result{}, err
	}
	return a.Process(ctx, job, task)
}

// Submit records job as a pending task, allocating a run id and workspace
// when the job has none.
func (a *App) Submit(ctx context.Context, job Job) (Job, *tasks.Task, error) {
	if strings.TrimSpace(job.RunID) == "" {
		prepared, err := a.NewJob(job.Pipeline)
		if err != nil {
			return job, nil, err
		}
		job.RunID, job.Pipeline, job.WorkspaceDir = prepared.RunID, prepared.Pipeline, prepared.WorkspaceDir
	}
	task, err := a.Store.Create(ctx, tasks.NewTask{
		RunID:          job.RunID,
		Pipeline:       job.Pipeline,
		DeckPath:       job.DeckPath,
		VideoPath:      job.VideoPath,
		TranscriptPath: job.TranscriptPath,
		WorkspaceDir:   job.WorkspaceDir,
	})
	if err != nil {
		return job, nil, err
	}
	return job, task, nil
}

// Process runs a submitted task's pipeline, stores the outcome, and releases
// the workspace.
func (a *App) Process(ctx context.Context, job Job, task *tasks.Task) (Result, error) {
	ctx = services.WithTaskID(services.WithRunID(ctx, job.RunID), task.ID)
	logger := logging.WithContext(ctx, a.Logger)

	if err := a.Store.MarkRunning(ctx, task.ID); err != nil {
		a.abandonUnstarted(ctx, logger, job, task, err)
		return Result{}, fmt.Errorf("start task %d: %w", task.ID, err)
	}

	stopHeartbeat := a.heartbeat(ctx, logger, task.ID)
	final, runErr := a.Runner.Run(ctx, job.Pipeline, stage.State{
		RunID:        job.RunID,
		Transcript:   job.Transcript,
		DeckPath:     job.DeckPath,
		VideoPath:    job.VideoPath,
		WorkspaceDir: job.WorkspaceDir,
	})
	if runErr != nil {
		final = final.Merge(stage.Update{Error: services.Fail(services.KindMissingPrerequisite, "", "pipeline misconfigured", runErr)})
	}

	stopHeartbeat()

	// Outcomes are persisted even when ctx is already canceled.
	recordCtx := context.WithoutCancel(ctx)
	if err := a.Store.Record(recordCtx, task.ID, final); err != nil {
		return Result{}, fmt.Errorf("record task %d: %w", task.ID, err)
	}
	a.release(logger, job.WorkspaceDir, !final.Failed())

	stored, err := a.Store.Get(recordCtx, task.ID)
	if err != nil {
		return Result{}, err
	}
	a.notify(recordCtx, logger, stored, final)
	return Result{Task: stored, State: final}, runErr
}

// abandonUnstarted fails a task whose run never began and removes its
// workspace, even when the failure cannot be recorded.
func (a *App) abandonUnstarted(ctx context.Context, logger *slog.Logger, job Job, task *tasks.Task, cause error) {
	kind := services.KindExternalCallTransient
	if ctx.Err() != nil {
		kind = services.KindCanceled
	}
	failure := services.Fail(kind, "", "task could not start", cause)
	if err := a.Store.Fail(context.WithoutCancel(ctx), task.ID, failure.Detail()); err != nil {
		logging.WarnWithContext(logger, "failed to record unstarted task", "task_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "task may stay pending until the next server start"),
		)
	}
	a.Discard(job)
}

// heartbeat refreshes the task's heartbeat until the returned stop func is
// called.
func (a *App) heartbeat(ctx context.Context, logger *slog.Logger, id int64) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		interval := a.heartbeatInterval
		if interval <= 0 {
			interval = tasks.HeartbeatInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.Store.Heartbeat(ctx, id); err != nil && ctx.Err() == nil {
					logger.Debug("task heartbeat failed", logging.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Abandon fails a submitted task that will never be processed and removes
// its workspace.
func (a *App) Abandon(ctx context.Context, job Job, task *tasks.Task, failure *services.Failure) error {
	if err := a.Store.Fail(context.WithoutCancel(ctx), task.ID, failure.Detail()); err != nil {
		return err
	}
	a.Discard(job)
	return nil
}

// Discard removes the workspace of a job that was never submitted.
func (a *App) Discard(job Job) {
	if strings.TrimSpace(job.WorkspaceDir) == "" {
		return
	}
	_ = a.Workspaces.Remove(job.WorkspaceDir)
}

func (a *App) notify(ctx context.Context, logger *slog.Logger, task *tasks.Task, final stage.State) {
	if a.Notifier == nil || task == nil {
		return
	}
	outcome := notifications.Outcome{
		TaskID:   task.ID,
		RunID:    task.RunID,
		Pipeline: task.Pipeline,
		Duration: task.Duration(),
		Failure:  task.Failure(),
	}
	if final.Report != nil {
		outcome.Summary = final.Report.Summary
	}
	if err := a.Notifier.NotifyTaskFinished(ctx, outcome); err != nil {
		logging.WarnWithContext(logger, "task notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func (a *App) release(logger *slog.Logger, dir string, succeeded bool) {
	if _, err := a.Workspaces.Release(dir, succeeded); err != nil {
		logging.WarnWithContext(logger, "workspace cleanup failed", "workspace_cleanup_failed",
			logging.String("workspace", dir),
			logging.Error(err),
		)
	}
}
