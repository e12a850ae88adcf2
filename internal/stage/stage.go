package stage

import "context"

// Stage is one unit of pipeline work. Run receives the accumulated state and
// returns only the fields it produced, or a failure.
type Stage interface {
	Name() string
	Run(ctx context.Context, state State) (Update, error)
}

// HealthChecker is implemented by stages whose external dependencies can be
// probed before a run.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Func adapts a function to the Stage interface.
type Func func(ctx context.Context, state State) (Update, error)

type funcStage struct {
	name string
	fn   Func
}

// New wraps fn as a named Stage.
func New(name string, fn Func) Stage {
	return funcStage{name: name, fn: fn}
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Run(ctx context.Context, state State) (Update, error) {
	return s.fn(ctx, state)
}
