package analysis

import (
	"context"
	"log/slog"

	"minutes/internal/logging"
	"minutes/internal/retry"
	"minutes/internal/services"
	"minutes/internal/services/gemini"
	"minutes/internal/services/whisper"
	"minutes/internal/slides"
	"minutes/internal/stage"
)

// Stage names.
const (
	StageTranscribe     = "transcribe"
	StageFuse           = "fuse"
	StageExtractSlides  = "extract_slides"
	StageCombineContext = "combine_context"
	StageKeyPoints      = "key_points"
	StageActionItems    = "action_items"
	StageAnalyze        = "analyze"
	StageSummarize      = "summarize"
)

// Transcriber produces a local transcript for a media file.
type Transcriber interface {
	Transcribe(ctx context.Context, source, outputDir string) (whisper.Result, error)
}

// Generator is the subset of the generative model client the stages use.
type Generator interface {
	GenerateText(ctx context.Context, req gemini.Request) (string, error)
	GenerateJSON(ctx context.Context, req gemini.Request, target any) error
	UploadFile(ctx context.Context, path string) (gemini.File, error)
	TextModel() string
	VisionModel() string
}

// DeckExtractor renders a slide deck as plain text.
type DeckExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Deps carries the collaborators shared by every stage.
type Deps struct {
	Transcriber Transcriber
	Generator   Generator
	Decks       DeckExtractor
	Retrier     *retry.Retrier
	Logger      *slog.Logger
}

func (d Deps) logger(component string) *slog.Logger {
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return logging.NewComponentLogger(logger, component)
}

// PPTXExtractor adapts the slides package to DeckExtractor.
type PPTXExtractor struct{}

// ExtractText opens the deck and returns its digest.
func (PPTXExtractor) ExtractText(_ context.Context, path string) (string, error) {
	deck, err := slides.Open(path)
	if err != nil {
		return "", err
	}
	return deck.Text(), nil
}

// Registry returns every stage keyed by name.
func Registry(deps Deps) map[string]stage.Stage {
	if deps.Decks == nil {
		deps.Decks = PPTXExtractor{}
	}
	stages := []stage.Stage{
		&Transcribe{deps: deps},
		&Fuse{deps: deps},
		&ExtractSlides{deps: deps},
		&CombineContext{},
		&KeyPoints{deps: deps},
		&ActionItems{deps: deps},
		&Analyze{deps: deps},
		&Summarize{deps: deps},
	}
	out := make(map[string]stage.Stage, len(stages))
	for _, s := range stages {
		out[s.Name()] = s
	}
	return out
}

func generateText(ctx context.Context, deps Deps, op string, req gemini.Request) (string, error) {
	return retry.Do(ctx, deps.Retrier, op, func(ctx context.Context) (string, error) {
		return deps.Generator.GenerateText(ctx, req)
	})
}

func generateJSON[T any](ctx context.Context, deps Deps, op string, req gemini.Request) (T, error) {
	return retry.Do(ctx, deps.Retrier, op, func(ctx context.Context) (T, error) {
		var out T
		err := deps.Generator.GenerateJSON(ctx, req, &out)
		return out, err
	})
}

// upload is exempt from the per-attempt deadline; the client bounds the
// processing wait itself.
func upload(ctx context.Context, deps Deps, op, path string) (gemini.File, error) {
	return retry.Do(ctx, deps.Retrier.WithoutAttemptTimeout(), op, func(ctx context.Context) (gemini.File, error) {
		return deps.Generator.UploadFile(ctx, path)
	})
}

type healthProber interface {
	HealthCheck(ctx context.Context) error
}

type availabilityChecker interface {
	CheckAvailable() error
}

func generatorHealth(ctx context.Context, name string, generator Generator) stage.Health {
	if generator == nil {
		return stage.Unhealthy(name, "generative model client not configured")
	}
	if prober, ok := generator.(healthProber); ok {
		if err := prober.HealthCheck(ctx); err != nil {
			return stage.Unhealthy(name, err.Error())
		}
	}
	return stage.Healthy(name)
}

func (d Deps) requireGenerator(stageName string) error {
	if d.Generator == nil {
		return services.Fail(services.KindMissingPrerequisite, stageName, "generative model client not configured", nil)
	}
	return nil
}
