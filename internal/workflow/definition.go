package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"minutes/internal/stage"
)

//go:embed pipelines.yaml
var builtinPipelines []byte

// Definitions is the YAML document listing named pipelines.
type Definitions struct {
	Pipelines map[string]Definition `yaml:"pipelines"`
}

// Definition declares one pipeline as an ordered list of stages.
type Definition struct {
	Description string     `yaml:"description,omitempty"`
	Start       string     `yaml:"start"`
	Stages      []StageDef `yaml:"stages"`
}

// StageDef names a registered stage and its continue target. An empty Next
// ends the run after the stage succeeds.
type StageDef struct {
	Name string `yaml:"name"`
	Next string `yaml:"next,omitempty"`
}

// ParseDefinitions decodes and validates a pipelines document.
func ParseDefinitions(data []byte) (Definitions, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return Definitions{}, fmt.Errorf("parse pipelines YAML: %w", err)
	}
	if len(defs.Pipelines) == 0 {
		return Definitions{}, fmt.Errorf("parse pipelines YAML: no pipelines declared")
	}
	for _, name := range defs.Names() {
		if err := defs.Pipelines[name].Validate(); err != nil {
			return Definitions{}, fmt.Errorf("pipeline %s: %w", name, err)
		}
	}
	return defs, nil
}

// LoadDefinitions reads a pipelines document from disk.
func LoadDefinitions(path string) (Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("read pipelines: %w", err)
	}
	return ParseDefinitions(data)
}

// DefaultDefinitions returns the built-in pipelines.
func DefaultDefinitions() Definitions {
	defs, err := ParseDefinitions(builtinPipelines)
	if err != nil {
		panic(fmt.Sprintf("builtin pipelines invalid: %v", err))
	}
	return defs
}

// Names returns pipeline names sorted alphabetically.
func (d Definitions) Names() []string {
	names := make([]string, 0, len(d.Pipelines))
	for name := range d.Pipelines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate checks referential integrity without consulting a registry.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Start) == "" {
		return fmt.Errorf("start stage is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}
	seen := make(map[string]bool, len(d.Stages))
	for _, s := range d.Stages {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("stage name is required")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage %q", s.Name)
		}
		seen[s.Name] = true
	}
	if !seen[d.Start] {
		return fmt.Errorf("start stage %q not declared", d.Start)
	}
	for _, s := range d.Stages {
		if s.Next != "" && !IsTerminal(s.Next) && !seen[s.Next] {
			return fmt.Errorf("stage %q continues to undeclared stage %q", s.Name, s.Next)
		}
	}
	return nil
}

// StageNames lists the stages the definition uses, in declaration order.
func (d Definition) StageNames() []string {
	names := make([]string, 0, len(d.Stages))
	for _, s := range d.Stages {
		names = append(names, s.Name)
	}
	return names
}

// Build compiles the named definition against registry, wiring every stage
// with a FailOnError conditional edge.
func (d Definition) Build(name string, registry map[string]stage.Stage) (*Graph, error) {
	b := NewBuilder(name)
	for _, def := range d.Stages {
		s, ok := registry[def.Name]
		if !ok {
			return nil, fmt.Errorf("pipeline %s: stage %q is not registered", name, def.Name)
		}
		next := def.Next
		if next == "" {
			next = NodeEnd
		}
		b.AddStage(s).AddConditionalEdge(def.Name, FailOnError, map[Route]string{
			RouteContinue: next,
			RouteFail:     NodeFailed,
		})
	}
	b.SetEntry(d.Start)
	return b.Compile()
}

// BuildAll compiles every definition against registry.
func (d Definitions) BuildAll(registry map[string]stage.Stage) (map[string]*Graph, error) {
	graphs := make(map[string]*Graph, len(d.Pipelines))
	for _, name := range d.Names() {
		g, err := d.Pipelines[name].Build(name, registry)
		if err != nil {
			return nil, err
		}
		graphs[name] = g
	}
	return graphs, nil
}
