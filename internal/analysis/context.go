package analysis

import (
	"context"
	"path/filepath"
	"strings"

	"minutes/internal/logging"
	"minutes/internal/services"
	"minutes/internal/services/gemini"
	"minutes/internal/stage"
)

// ExtractSlides renders the slide deck as text. PDF decks are left to the
// multimodal analysis, which uploads them directly.
type ExtractSlides struct {
	deps Deps
}

func (s *ExtractSlides) Name() string { return StageExtractSlides }

func (s *ExtractSlides) Run(ctx context.Context, state stage.State) (stage.Update, error) {
	if err := state.Require(s.Name(), stage.FieldDeckPath); err != nil {
		return stage.Update{}, err
	}
	logger := logging.WithContext(ctx, s.deps.logger("slides"))
	if isPDF(state.DeckPath) {
		logger.Info("pdf deck passed through to analysis", logging.String("deck", state.DeckPath))
		return stage.Update{}, nil
	}
	text, err := s.deps.Decks.ExtractText(ctx, state.DeckPath)
	if err != nil {
		return stage.Update{}, err
	}
	logger.Info("slide text extracted",
		logging.String("deck", state.DeckPath),
		logging.Int("chars", len(text)),
	)
	return stage.Update{SlideText: stage.Text(text)}, nil
}

// CombineContext joins the best available transcript with the slide text.
type CombineContext struct{}

func (s *CombineContext) Name() string { return StageCombineContext }

func (s *CombineContext) Run(_ context.Context, state stage.State) (stage.Update, error) {
	if err := state.Require(s.Name()); err != nil {
		return stage.Update{}, err
	}
	transcript := strings.TrimSpace(state.BestTranscript())
	if transcript == "" {
		return stage.Update{}, services.Missing(s.Name(), string(stage.FieldTranscript))
	}
	var sb strings.Builder
	sb.WriteString("Transcript:\n")
	sb.WriteString(transcript)
	if slideText := strings.TrimSpace(state.SlideText); slideText != "" {
		sb.WriteString("\n\nPPT Content:\n")
		sb.WriteString(slideText)
	}
	return stage.Update{CombinedContext: stage.Text(sb.String())}, nil
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func promptRequest(model, system, prompt string) gemini.Request {
	return gemini.Request{Model: model, System: system, Prompt: prompt}
}
