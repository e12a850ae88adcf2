package bootstrap

import (
	"log/slog"

	"minutes/internal/config"
	"minutes/internal/retry"
	"minutes/internal/services/gemini"
	"minutes/internal/services/whisper"
)

// NewGeminiClient builds the generative model client from configuration.
func NewGeminiClient(cfg *config.Config, opts ...gemini.Option) *gemini.Client {
	return gemini.NewClient(gemini.Config{
		APIKey:         cfg.Gemini.APIKey,
		BaseURL:        cfg.Gemini.BaseURL,
		Model:          cfg.Gemini.TextModel,
		VisionModel:    cfg.Gemini.VisionModel,
		TimeoutSeconds: cfg.Gemini.TimeoutSeconds,
		Temperature:    cfg.Gemini.Temperature,
	}, opts...)
}

// NewWhisperService builds the local transcription service from configuration.
func NewWhisperService(cfg *config.Config) *whisper.Service {
	return whisper.NewService(whisper.Config{
		Command:  cfg.Whisper.Command,
		Model:    cfg.Whisper.Model,
		Language: cfg.Whisper.Language,
		Timeout:  cfg.WhisperTimeout(),
	})
}

// RetryPolicy converts the [retry] section into a retry.Policy.
func RetryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialDelay:   cfg.RetryInitialDelay(),
		MaxDelay:       cfg.RetryMaxDelay(),
		AttemptTimeout: cfg.RetryAttemptTimeout(),
	}
}

// NewRetrier builds the retrier shared by every stage.
func NewRetrier(cfg *config.Config, logger *slog.Logger, opts ...retry.Option) *retry.Retrier {
	opts = append([]retry.Option{retry.WithLogger(logger)}, opts...)
	return retry.New(RetryPolicy(cfg), opts...)
}
