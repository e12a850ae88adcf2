package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"minutes/internal/logging"
	"minutes/internal/services"
	"minutes/internal/services/gemini"
	"minutes/internal/stage"
)

// Analyze produces the structured meeting report from the video, the deck and
// the fused transcript.
type Analyze struct {
	deps Deps
}

func (s *Analyze) Name() string { return StageAnalyze }

func (s *Analyze) Run(ctx context.Context, state stage.State) (stage.Update, error) {
	if err := state.Require(s.Name(), stage.FieldFusedTranscript); err != nil {
		return stage.Update{}, err
	}
	if err := s.deps.requireGenerator(s.Name()); err != nil {
		return stage.Update{}, err
	}
	logger := logging.WithContext(ctx, s.deps.logger("analyze"))

	var files []gemini.File
	if state.Has(stage.FieldVideoPath) {
		video, err := upload(ctx, s.deps, "upload video", state.VideoPath)
		if err != nil {
			return stage.Update{}, err
		}
		files = append(files, video)
	}
	slideText, deckFile, err := s.deckMaterial(ctx, state)
	if err != nil {
		return stage.Update{}, err
	}
	if deckFile != nil {
		files = append(files, *deckFile)
	}

	var presentation string
	if slideText != "" {
		presentation = "\n--- Presentation Slides ---\n" + slideText + "\n"
	}
	req := gemini.Request{
		Model:  s.deps.Generator.VisionModel(),
		System: analyzeSystemPrompt,
		Prompt: fmt.Sprintf(analyzePromptTemplate, presentation, state.FusedTranscript),
		Files:  files,
		Schema: reportSchema,
	}
	payload, err := generateJSON[analysisPayload](ctx, s.deps, "analyze meeting", req)
	if err != nil {
		return stage.Update{}, err
	}
	report, err := payload.report()
	if err != nil {
		return stage.Update{}, services.Fail(services.KindResponseSchemaInvalid, s.Name(), "analysis response failed validation", err)
	}
	if len(report.ActionItems) == 0 && len(state.ActionItems) > 0 {
		report.ActionItems = renderActionItems(state.ActionItems)
	}
	if points := cleanStrings(state.KeyPoints); len(points) > 0 {
		report.KeyPoints = points
	}

	logger.Info("meeting analyzed",
		logging.Int("files", len(files)),
		logging.Int("action_items", len(report.ActionItems)),
		logging.Int("context_fields", len(report.ContextFields)),
		logging.String("final_decision", report.FinalDecision),
	)
	return stage.Update{Report: report}, nil
}

// deckMaterial returns slide text for pptx decks and an uploaded file for PDF
// decks. A missing deck path contributes nothing.
func (s *Analyze) deckMaterial(ctx context.Context, state stage.State) (string, *gemini.File, error) {
	if slideText := strings.TrimSpace(state.SlideText); slideText != "" {
		return slideText, nil, nil
	}
	if !state.Has(stage.FieldDeckPath) {
		return "", nil, nil
	}
	if isPDF(state.DeckPath) {
		deck, err := upload(ctx, s.deps, "upload deck", state.DeckPath)
		if err != nil {
			return "", nil, err
		}
		return "", &deck, nil
	}
	if s.deps.Decks == nil {
		return "", nil, nil
	}
	text, err := s.deps.Decks.ExtractText(ctx, state.DeckPath)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(text), nil, nil
}

func (s *Analyze) HealthCheck(ctx context.Context) stage.Health {
	return generatorHealth(ctx, s.Name(), s.deps.Generator)
}

type analysisPayload struct {
	Summary       *string       `json:"summary"`
	ActionItems   []string      `json:"action_items"`
	ContextFields contextFields `json:"context_fields"`
	FinalDecision *string       `json:"final_decision"`
}

func (p analysisPayload) report() (*stage.Report, error) {
	var missing []string
	if p.Summary == nil || strings.TrimSpace(*p.Summary) == "" {
		missing = append(missing, "summary")
	}
	if p.FinalDecision == nil || strings.TrimSpace(*p.FinalDecision) == "" {
		missing = append(missing, "final_decision")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	fields := map[string]string{}
	for key, value := range p.ContextFields {
		if normalized := NormalizeFieldName(key); normalized != "" {
			fields[normalized] = strings.TrimSpace(value)
		}
	}
	return &stage.Report{
		Summary:       strings.TrimSpace(*p.Summary),
		ActionItems:   cleanStrings(p.ActionItems),
		ContextFields: fields,
		FinalDecision: strings.TrimSpace(*p.FinalDecision),
	}, nil
}

// contextFields accepts either a JSON object or an array of name/value pairs.
type contextFields map[string]string

func (c *contextFields) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	out := contextFields{}
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '{':
		var raw map[string]any
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		for key, value := range raw {
			out[key] = stringify(value)
		}
	case trimmed[0] == '[':
		var pairs []struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return err
		}
		for _, pair := range pairs {
			out[pair.Name] = stringify(pair.Value)
		}
	default:
		return fmt.Errorf("context_fields must be an object or array, got %s", trimmed[:1])
	}
	*c = out
	return nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

// NormalizeFieldName turns keys such as "store_size" or "SIGNAGE" into
// "Store Size" and "Signage".
func NormalizeFieldName(key string) string {
	replaced := strings.NewReplacer("_", " ", "-", " ").Replace(key)
	words := strings.Fields(replaced)
	if len(words) == 0 {
		return ""
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}
