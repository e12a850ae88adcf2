package analysis

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"minutes/internal/stage"
	"minutes/internal/workflow"
)

// Runner executes named pipelines built from a shared stage registry.
type Runner struct {
	graphs          map[string]*workflow.Graph
	descriptions    map[string]string
	executor        *workflow.Executor
	defaultPipeline string
}

// NewRunner compiles every definition against the stage registry.
func NewRunner(defs workflow.Definitions, registry map[string]stage.Stage, executor *workflow.Executor, defaultPipeline string) (*Runner, error) {
	graphs, err := defs.BuildAll(registry)
	if err != nil {
		return nil, err
	}
	defaultPipeline = strings.TrimSpace(defaultPipeline)
	if _, ok := graphs[defaultPipeline]; !ok {
		return nil, fmt.Errorf("default pipeline %q is not defined (available: %s)", defaultPipeline, strings.Join(defs.Names(), ", "))
	}
	if executor == nil {
		executor = workflow.NewExecutor()
	}
	descriptions := make(map[string]string, len(defs.Pipelines))
	for name, def := range defs.Pipelines {
		descriptions[name] = def.Description
	}
	return &Runner{
		graphs:          graphs,
		descriptions:    descriptions,
		executor:        executor,
		defaultPipeline: defaultPipeline,
	}, nil
}

// Pipeline summarizes one runnable pipeline.
type Pipeline struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Stages      []string `json:"stages"`
	Default     bool     `json:"default,omitempty"`
}

// Pipelines lists the runnable pipelines sorted by name.
func (r *Runner) Pipelines() []Pipeline {
	names := make([]string, 0, len(r.graphs))
	for name := range r.graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Pipeline, 0, len(names))
	for _, name := range names {
		out = append(out, Pipeline{
			Name:        name,
			Description: r.descriptions[name],
			Stages:      r.graphs[name].Stages(),
			Default:     name == r.defaultPipeline,
		})
	}
	return out
}

// DefaultPipeline returns the pipeline used when callers name none.
func (r *Runner) DefaultPipeline() string { return r.defaultPipeline }

// Resolve returns the pipeline that name selects, applying the default for an
// empty name.
func (r *Runner) Resolve(name string) (string, error) {
	g, err := r.graph(name)
	if err != nil {
		return "", err
	}
	return g.Name(), nil
}

func (r *Runner) graph(name string) (*workflow.Graph, error) {
	if strings.TrimSpace(name) == "" {
		name = r.defaultPipeline
	}
	g, ok := r.graphs[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}
	return g, nil
}

// Run executes the named pipeline (the default when name is empty). A run id
// is assigned when initial carries none. Stage failures are reported on the
// returned state; the error return covers unknown pipelines and graph
// misconfiguration.
func (r *Runner) Run(ctx context.Context, name string, initial stage.State) (stage.State, error) {
	g, err := r.graph(name)
	if err != nil {
		return initial, err
	}
	if strings.TrimSpace(initial.RunID) == "" {
		initial.RunID = uuid.NewString()
	}
	return r.executor.Run(ctx, g, initial)
}

// HealthCheck probes every stage of the named pipeline that exposes a health
// check, in execution order.
func (r *Runner) HealthCheck(ctx context.Context, name string) ([]stage.Health, error) {
	g, err := r.graph(name)
	if err != nil {
		return nil, err
	}
	var out []stage.Health
	seen := map[string]bool{}
	for _, stageName := range g.Stages() {
		s, ok := g.Stage(stageName)
		if !ok || seen[stageName] {
			continue
		}
		seen[stageName] = true
		if checker, ok := s.(stage.HealthChecker); ok {
			out = append(out, checker.HealthCheck(ctx))
		}
	}
	return slices.Clip(out), nil
}
