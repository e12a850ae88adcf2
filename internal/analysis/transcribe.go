package analysis

import (
	"context"
	"fmt"
	"strings"

	"minutes/internal/logging"
	"minutes/internal/services"
	"minutes/internal/stage"
)

// Transcribe runs local speech-to-text against the meeting video.
type Transcribe struct {
	deps Deps
}

func (s *Transcribe) Name() string { return StageTranscribe }

func (s *Transcribe) Run(ctx context.Context, state stage.State) (stage.Update, error) {
	if err := state.Require(s.Name(), stage.FieldVideoPath); err != nil {
		return stage.Update{}, err
	}
	if s.deps.Transcriber == nil {
		return stage.Update{}, services.Fail(services.KindMissingPrerequisite, s.Name(), "transcriber not configured", nil)
	}
	logger := logging.WithContext(ctx, s.deps.logger("transcribe"))

	result, err := s.deps.Transcriber.Transcribe(ctx, state.VideoPath, state.WorkspaceDir)
	if err != nil {
		return stage.Update{}, err
	}
	text := strings.TrimSpace(result.Text)
	logger.Info("local transcription complete",
		logging.String("output", result.JSONPath),
		logging.Int("segments", len(result.Segments)),
		logging.Int("chars", len(text)),
	)
	return stage.Update{LocalTranscript: stage.Text(text)}, nil
}

// HealthCheck verifies the transcription command is installed.
func (s *Transcribe) HealthCheck(context.Context) stage.Health {
	if s.deps.Transcriber == nil {
		return stage.Unhealthy(s.Name(), "transcriber not configured")
	}
	if checker, ok := s.deps.Transcriber.(availabilityChecker); ok {
		if err := checker.CheckAvailable(); err != nil {
			return stage.Unhealthy(s.Name(), err.Error())
		}
	}
	return stage.Healthy(s.Name())
}

// Fuse merges the supplied and local transcripts with a text-generation call.
type Fuse struct {
	deps Deps
}

func (s *Fuse) Name() string { return StageFuse }

func (s *Fuse) Run(ctx context.Context, state stage.State) (stage.Update, error) {
	if err := state.Require(s.Name(), stage.FieldTranscript, stage.FieldLocalTranscript); err != nil {
		return stage.Update{}, err
	}
	if err := s.deps.requireGenerator(s.Name()); err != nil {
		return stage.Update{}, err
	}
	req := promptRequest(s.deps.Generator.TextModel(), fuseSystemPrompt,
		fmt.Sprintf(fusePromptTemplate, state.Transcript, state.LocalTranscript))
	fused, err := generateText(ctx, s.deps, "fuse transcripts", req)
	if err != nil {
		return stage.Update{}, err
	}
	logging.WithContext(ctx, s.deps.logger("fuse")).Info("transcripts fused",
		logging.Int("supplied_chars", len(state.Transcript)),
		logging.Int("local_chars", len(state.LocalTranscript)),
		logging.Int("fused_chars", len(fused)),
	)
	return stage.Update{FusedTranscript: stage.Text(fused)}, nil
}

func (s *Fuse) HealthCheck(ctx context.Context) stage.Health {
	return generatorHealth(ctx, s.Name(), s.deps.Generator)
}
