package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"minutes/internal/logging"
	"minutes/internal/services"
	"minutes/internal/stage"
)

// KeyPoints extracts the meeting's key points from the combined context.
type KeyPoints struct {
	deps Deps
}

func (s *KeyPoints) Name() string { return StageKeyPoints }

func (s *KeyPoints) Run(ctx context.Context, state stage.State) (stage.Update, error) {
	if err := state.Require(s.Name(), stage.FieldCombinedContext); err != nil {
		return stage.Update{}, err
	}
	if err := s.deps.requireGenerator(s.Name()); err != nil {
		return stage.Update{}, err
	}
	req := promptRequest(s.deps.Generator.TextModel(), "", fmt.Sprintf(keyPointsPromptTemplate, state.CombinedContext))
	req.Schema = keyPointsSchema
	payload, err := generateJSON[struct {
		KeyPoints []string `json:"key_points"`
	}](ctx, s.deps, "extract key points", req)
	if err != nil {
		return stage.Update{}, err
	}
	points := cleanStrings(payload.KeyPoints)
	logging.WithContext(ctx, s.deps.logger("insights")).Info("key points extracted", logging.Int("count", len(points)))
	return stage.Update{KeyPoints: points}, nil
}

func (s *KeyPoints) HealthCheck(ctx context.Context) stage.Health {
	return generatorHealth(ctx, s.Name(), s.deps.Generator)
}

// ActionItems extracts owner/task pairs from the combined context.
type ActionItems struct {
	deps Deps
}

func (s *ActionItems) Name() string { return StageActionItems }

func (s *ActionItems) Run(ctx context.Context, state stage.State) (stage.Update, error) {
	if err := state.Require(s.Name(), stage.FieldCombinedContext); err != nil {
		return stage.Update{}, err
	}
	if err := s.deps.requireGenerator(s.Name()); err != nil {
		return stage.Update{}, err
	}
	req := promptRequest(s.deps.Generator.TextModel(), "", fmt.Sprintf(actionItemsPromptTemplate, state.CombinedContext))
	req.Schema = actionItemsSchema
	payload, err := generateJSON[struct {
		ActionItems []stage.ActionItem `json:"action_items"`
	}](ctx, s.deps, "extract action items", req)
	if err != nil {
		return stage.Update{}, err
	}
	items := make([]stage.ActionItem, 0, len(payload.ActionItems))
	for _, item := range payload.ActionItems {
		item.Owner = strings.TrimSpace(item.Owner)
		item.Task = strings.TrimSpace(item.Task)
		if item.Task == "" {
			continue
		}
		items = append(items, item)
	}
	logging.WithContext(ctx, s.deps.logger("insights")).Info("action items extracted", logging.Int("count", len(items)))
	return stage.Update{ActionItems: items}, nil
}

func (s *ActionItems) HealthCheck(ctx context.Context) stage.Health {
	return generatorHealth(ctx, s.Name(), s.deps.Generator)
}

// Summarize produces a text-only report from the combined context and the
// extracted insights.
type Summarize struct {
	deps Deps
}

func (s *Summarize) Name() string { return StageSummarize }

func (s *Summarize) Run(ctx context.Context, state stage.State) (stage.Update, error) {
	if err := state.Require(s.Name(), stage.FieldCombinedContext); err != nil {
		return stage.Update{}, err
	}
	if err := s.deps.requireGenerator(s.Name()); err != nil {
		return stage.Update{}, err
	}
	keyPoints, err := json.Marshal(nonNil(state.KeyPoints))
	if err != nil {
		return stage.Update{}, fmt.Errorf("encode key points: %w", err)
	}
	actionItems, err := json.Marshal(nonNil(state.ActionItems))
	if err != nil {
		return stage.Update{}, fmt.Errorf("encode action items: %w", err)
	}
	req := promptRequest(s.deps.Generator.TextModel(), "",
		fmt.Sprintf(summarizePromptTemplate, state.CombinedContext, keyPoints, actionItems))
	req.Schema = summarySchema
	payload, err := generateJSON[struct {
		Summary string `json:"summary"`
	}](ctx, s.deps, "synthesize summary", req)
	if err != nil {
		return stage.Update{}, err
	}
	summary := strings.TrimSpace(payload.Summary)
	if summary == "" {
		return stage.Update{}, services.Fail(services.KindResponseSchemaInvalid, s.Name(), "summary response is missing \"summary\"", nil)
	}
	report := &stage.Report{
		Summary:       summary,
		ActionItems:   renderActionItems(state.ActionItems),
		ContextFields: map[string]string{},
	}
	if points := cleanStrings(state.KeyPoints); len(points) > 0 {
		report.KeyPoints = points
	}
	return stage.Update{Report: report}, nil
}

func (s *Summarize) HealthCheck(ctx context.Context) stage.Health {
	return generatorHealth(ctx, s.Name(), s.deps.Generator)
}

func renderActionItems(items []stage.ActionItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if rendered := item.String(); rendered != "" {
			out = append(out, rendered)
		}
	}
	return out
}

func cleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
