package workflow

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"minutes/internal/stage"
)

// Terminal node names. Neither may be registered as a stage.
const (
	NodeEnd    = "end"
	NodeFailed = "failed"
)

// IsTerminal reports whether name ends a run.
func IsTerminal(name string) bool {
	return name == NodeEnd || name == NodeFailed
}

// Route is the label a Router picks among a stage's successors.
type Route string

const (
	RouteContinue Route = "continue"
	RouteFail     Route = "fail"
)

// Router inspects the state after a stage ran and selects the next route.
type Router func(state stage.State) Route

// FailOnError sends errored runs down the fail route and everything else
// down the continue route.
func FailOnError(state stage.State) Route {
	if state.Failed() {
		return RouteFail
	}
	return RouteContinue
}

type edge struct {
	to     string
	router Router
	routes map[Route]string
}

func (e edge) targets() []string {
	if e.router == nil {
		return []string{e.to}
	}
	out := make([]string, 0, len(e.routes))
	for _, target := range e.routes {
		out = append(out, target)
	}
	slices.Sort(out)
	return out
}

// Graph is a compiled, immutable set of stages and edges with one entry
// point. It is safe to share between concurrent runs.
type Graph struct {
	name   string
	entry  string
	order  []string
	stages map[string]stage.Stage
	edges  map[string]edge
}

// Name returns the pipeline name the graph was compiled under.
func (g *Graph) Name() string { return g.name }

// Entry returns the first stage.
func (g *Graph) Entry() string { return g.entry }

// Stages returns stage names in registration order.
func (g *Graph) Stages() []string { return slices.Clone(g.order) }

// Stage returns the registered stage called name.
func (g *Graph) Stage(name string) (stage.Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// Next resolves the successor of from given the state it produced. An error
// means the graph cannot route the state, which is a programming error.
func (g *Graph) Next(from string, state stage.State) (string, error) {
	e, ok := g.edges[from]
	if !ok {
		return "", fmt.Errorf("workflow %s: no outgoing edge from %q", g.name, from)
	}
	if e.router == nil {
		return e.to, nil
	}
	route := e.router(state)
	target, ok := e.routes[route]
	if !ok {
		return "", fmt.Errorf("workflow %s: stage %q has no route %q", g.name, from, route)
	}
	return target, nil
}

// Builder assembles a Graph. Errors are collected and reported by Compile.
type Builder struct {
	name   string
	entry  string
	order  []string
	stages map[string]stage.Stage
	edges  map[string]edge
	errs   []error
}

// NewBuilder starts a graph for the named pipeline.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		stages: make(map[string]stage.Stage),
		edges:  make(map[string]edge),
	}
}

// AddStage registers s under its own name.
func (b *Builder) AddStage(s stage.Stage) *Builder {
	if s == nil {
		b.errs = append(b.errs, errors.New("nil stage"))
		return b
	}
	name := strings.TrimSpace(s.Name())
	switch {
	case name == "":
		b.errs = append(b.errs, errors.New("stage name is required"))
	case IsTerminal(name):
		b.errs = append(b.errs, fmt.Errorf("stage name %q is reserved", name))
	case b.stages[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("duplicate stage %q", name))
	default:
		b.stages[name] = s
		b.order = append(b.order, name)
	}
	return b
}

// SetEntry designates the first stage.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// AddEdge wires an unconditional transition.
func (b *Builder) AddEdge(from, to string) *Builder {
	if _, exists := b.edges[from]; exists {
		b.errs = append(b.errs, fmt.Errorf("stage %q already has an outgoing edge", from))
		return b
	}
	b.edges[from] = edge{to: to}
	return b
}

// AddConditionalEdge wires a transition chosen by router among routes.
func (b *Builder) AddConditionalEdge(from string, router Router, routes map[Route]string) *Builder {
	if _, exists := b.edges[from]; exists {
		b.errs = append(b.errs, fmt.Errorf("stage %q already has an outgoing edge", from))
		return b
	}
	if router == nil {
		b.errs = append(b.errs, fmt.Errorf("stage %q: conditional edge needs a router", from))
		return b
	}
	if len(routes) == 0 {
		b.errs = append(b.errs, fmt.Errorf("stage %q: conditional edge needs at least one route", from))
		return b
	}
	copied := make(map[Route]string, len(routes))
	for route, target := range routes {
		copied[route] = target
	}
	b.edges[from] = edge{router: router, routes: copied}
	return b
}

// Compile validates the graph: the entry exists, every stage has exactly one
// outgoing edge whose targets exist, the graph is acyclic, and every stage is
// reachable from the entry.
func (b *Builder) Compile() (*Graph, error) {
	errs := slices.Clone(b.errs)
	if strings.TrimSpace(b.name) == "" {
		errs = append(errs, errors.New("pipeline name is required"))
	}
	if len(b.stages) == 0 {
		errs = append(errs, errors.New("at least one stage is required"))
	}
	if b.entry == "" {
		errs = append(errs, errors.New("entry stage is required"))
	} else if b.stages[b.entry] == nil {
		errs = append(errs, fmt.Errorf("entry stage %q is not registered", b.entry))
	}

	for from := range b.edges {
		if b.stages[from] == nil {
			errs = append(errs, fmt.Errorf("edge from unknown stage %q", from))
		}
	}
	for _, name := range b.order {
		e, ok := b.edges[name]
		if !ok {
			errs = append(errs, fmt.Errorf("stage %q has no outgoing edge", name))
			continue
		}
		for _, target := range e.targets() {
			if !IsTerminal(target) && b.stages[target] == nil {
				errs = append(errs, fmt.Errorf("stage %q routes to unknown node %q", name, target))
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("compile workflow %s: %w", b.name, errors.Join(errs...))
	}

	if cycle := b.findCycle(); cycle != nil {
		return nil, fmt.Errorf("compile workflow %s: cycle detected: %s", b.name, strings.Join(cycle, " -> "))
	}
	reachable := b.reachableFrom(b.entry)
	for _, name := range b.order {
		if !reachable[name] {
			errs = append(errs, fmt.Errorf("stage %q is unreachable from %q", name, b.entry))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("compile workflow %s: %w", b.name, errors.Join(errs...))
	}

	g := &Graph{
		name:   b.name,
		entry:  b.entry,
		order:  slices.Clone(b.order),
		stages: make(map[string]stage.Stage, len(b.stages)),
		edges:  make(map[string]edge, len(b.edges)),
	}
	for name, s := range b.stages {
		g.stages[name] = s
	}
	for name, e := range b.edges {
		g.edges[name] = e
	}
	return g, nil
}

func (b *Builder) findCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(b.stages))
	var path []string
	var visit func(name string) []string
	visit = func(name string) []string {
		switch state[name] {
		case visiting:
			start := slices.Index(path, name)
			return append(slices.Clone(path[start:]), name)
		case done:
			return nil
		}
		state[name] = visiting
		path = append(path, name)
		for _, target := range b.edges[name].targets() {
			if IsTerminal(target) {
				continue
			}
			if cycle := visit(target); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}
	for _, name := range b.order {
		if cycle := visit(name); cycle != nil {
			return cycle
		}
	}
	return nil
}

func (b *Builder) reachableFrom(entry string) map[string]bool {
	seen := map[string]bool{}
	queue := []string{entry}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] || IsTerminal(name) {
			continue
		}
		seen[name] = true
		queue = append(queue, b.edges[name].targets()...)
	}
	return seen
}

// Sequence compiles a linear pipeline: each stage continues to the next one,
// the last continues to NodeEnd, and any failure routes to NodeFailed.
func Sequence(name string, stages ...stage.Stage) (*Graph, error) {
	b := NewBuilder(name)
	for i, s := range stages {
		b.AddStage(s)
		if s == nil {
			continue
		}
		next := NodeEnd
		if i+1 < len(stages) && stages[i+1] != nil {
			next = stages[i+1].Name()
		}
		b.AddConditionalEdge(s.Name(), FailOnError, map[Route]string{
			RouteContinue: next,
			RouteFail:     NodeFailed,
		})
	}
	if len(stages) > 0 && stages[0] != nil {
		b.SetEntry(stages[0].Name())
	}
	return b.Compile()
}
