package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"minutes/internal/logging"
	"minutes/internal/services"
	"minutes/internal/stage"
)

const defaultMaxSteps = 100

// EventType distinguishes the lifecycle events emitted during a run.
type EventType string

const (
	EventPipelineStart    EventType = "pipeline_start"
	EventPipelineComplete EventType = "pipeline_complete"
	EventPipelineFailed   EventType = "pipeline_failed"
	EventStageStart       EventType = "stage_start"
	EventStageComplete    EventType = "stage_complete"
	EventStageFailure     EventType = "stage_failure"
	EventStageSkipped     EventType = "stage_skipped"
)

// Event describes one lifecycle transition. Observers are called
// synchronously from the run's goroutine.
type Event struct {
	Type     EventType
	Pipeline string
	RunID    string
	Stage    string
	Next     string
	Duration time.Duration
	Failure  *services.Failure
}

// Observer receives lifecycle events.
type Observer func(Event)

// Executor drives a compiled Graph from its entry stage to a terminal node.
type Executor struct {
	logger    *slog.Logger
	observers []Observer
	maxSteps  int
	now       func() time.Time
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers a lifecycle observer.
func WithObserver(observer Observer) ExecutorOption {
	return func(e *Executor) {
		if observer != nil {
			e.observers = append(e.observers, observer)
		}
	}
}

// WithMaxSteps bounds the number of stage executions in one run.
func WithMaxSteps(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewExecutor builds an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:   logging.NewNop(),
		maxSteps: defaultMaxSteps,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "workflow")
	return e
}

// ErrNilGraph is returned when Run is called without a graph.
var ErrNilGraph = errors.New("workflow: nil graph")

// Run executes g starting from initial and returns the terminal state.
// Stage failures are recorded on the returned state's Error field and route
// the run to NodeFailed; the error return is reserved for graph
// misconfiguration.
func (e *Executor) Run(ctx context.Context, g *Graph, initial stage.State) (stage.State, error) {
	if g == nil {
		return initial, ErrNilGraph
	}
	ctx = services.WithPipeline(services.WithRunID(ctx, initial.RunID), g.name)
	logger := logging.WithContext(ctx, e.logger)

	state := initial
	started := e.now()
	e.emit(Event{Type: EventPipelineStart, Pipeline: g.name, RunID: state.RunID, Stage: g.entry})
	logger.Info("pipeline started",
		logging.String(logging.FieldEventType, string(EventPipelineStart)),
		logging.String("entry", g.entry),
		logging.Int("stage_count", len(g.order)),
	)

	node := g.entry
	for steps := 0; !IsTerminal(node); steps++ {
		if steps >= e.maxSteps {
			return state, fmt.Errorf("workflow %s: exceeded %d steps at %q", g.name, e.maxSteps, node)
		}
		if err := ctx.Err(); err != nil {
			failure := services.Fail(services.KindCanceled, node, "run canceled before stage started", err)
			state = state.Merge(stage.Update{Error: failure})
			e.emit(Event{Type: EventStageFailure, Pipeline: g.name, RunID: state.RunID, Stage: node, Next: NodeFailed, Failure: failure})
			node = NodeFailed
			break
		}

		s, ok := g.stages[node]
		if !ok {
			return state, fmt.Errorf("workflow %s: unknown stage %q", g.name, node)
		}
		state = e.runStage(ctx, g.name, s, state)

		next, err := g.Next(node, state)
		if err != nil {
			return state, err
		}
		if state.Failed() && next != NodeFailed {
			return state, fmt.Errorf("workflow %s: stage %q failed but routed to %q", g.name, node, next)
		}
		node = next
	}

	elapsed := e.now().Sub(started)
	if node == NodeFailed {
		if state.Error == nil {
			state = state.Merge(stage.Update{Error: services.Fail(services.KindMissingPrerequisite, "", "routed to failure without an error", nil)})
		}
		e.emit(Event{Type: EventPipelineFailed, Pipeline: g.name, RunID: state.RunID, Stage: state.Error.Stage, Duration: elapsed, Failure: state.Error})
		logging.ErrorWithContext(logger, "pipeline failed", string(EventPipelineFailed),
			logging.String("failed_stage", state.Error.Stage),
			logging.ErrorKind(state.Error),
			logging.Error(state.Error),
			logging.Duration("duration", elapsed),
			logging.String(logging.FieldErrorHint, hintFor(state.Error.Kind)),
		)
		return state, nil
	}

	e.emit(Event{Type: EventPipelineComplete, Pipeline: g.name, RunID: state.RunID, Duration: elapsed})
	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, string(EventPipelineComplete)),
		logging.Duration("duration", elapsed),
		logging.Bool("report", state.Report != nil),
	)
	return state, nil
}

func (e *Executor) runStage(ctx context.Context, pipeline string, s stage.Stage, state stage.State) stage.State {
	name := s.Name()
	stageCtx := services.WithStage(ctx, name)
	logger := logging.WithContext(stageCtx, e.logger)

	started := e.now()
	e.emit(Event{Type: EventStageStart, Pipeline: pipeline, RunID: state.RunID, Stage: name})
	logger.Info("stage started", logging.String(logging.FieldEventType, string(EventStageStart)))

	update, err := s.Run(stageCtx, state)
	if err == nil && update.Error != nil {
		err = update.Error
	}
	elapsed := e.now().Sub(started)

	if err != nil {
		failure := services.Attribute(err, name, services.KindExternalCallTransient)
		eventType, message := EventStageFailure, "stage failed"
		if failure.Kind == services.KindMissingPrerequisite {
			eventType, message = EventStageSkipped, "stage skipped"
		}
		e.emit(Event{Type: eventType, Pipeline: pipeline, RunID: state.RunID, Stage: name, Duration: elapsed, Failure: failure})
		logging.ErrorWithContext(logger, message, string(eventType),
			logging.ErrorKind(failure),
			logging.Error(failure),
			logging.Duration("duration", elapsed),
			logging.String(logging.FieldErrorHint, hintFor(failure.Kind)),
		)
		return state.Merge(stage.Update{Error: failure})
	}

	e.emit(Event{Type: EventStageComplete, Pipeline: pipeline, RunID: state.RunID, Stage: name, Duration: elapsed})
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, string(EventStageComplete)),
		logging.Duration("duration", elapsed),
	)
	return state.Merge(update)
}

func (e *Executor) emit(event Event) {
	for _, observer := range e.observers {
		observer(event)
	}
}

func hintFor(kind services.Kind) string {
	switch kind {
	case services.KindMissingPrerequisite:
		return "supply the missing input or fix the upstream stage"
	case services.KindResourceNotFound, services.KindResourceInvalid:
		return "check the uploaded file paths and formats"
	case services.KindExternalCallBlocked:
		return "the model refused the content; review the inputs"
	case services.KindExternalCallExhausted, services.KindExternalCallTransient:
		return "model service unavailable; retry later"
	case services.KindExternalCallRejected:
		return "check credentials, model names and local tool installation"
	case services.KindResponseSchemaInvalid:
		return "model returned an unexpected payload; inspect debug logs"
	case services.KindCanceled:
		return "run was canceled"
	default:
		return "check logs for details"
	}
}
