package whisper

import "time"

// Config captures runtime settings for Whisper transcription.
type Config struct {
	// Command is the Whisper executable name or path.
	Command string
	// Model is the Whisper model size (e.g., "base").
	Model string
	// Language is the spoken language code passed to --language.
	Language string
	// Timeout bounds a single transcription; zero means no limit.
	Timeout time.Duration
}

// Whisper defaults.
const (
	DefaultCommand  = "whisper"
	DefaultModel    = "base"
	DefaultLanguage = "en"
	TaskTranscribe  = "transcribe"
	OutputFormat    = "json"
)

func (c Config) command() string {
	if c.Command != "" {
		return c.Command
	}
	return DefaultCommand
}

func (c Config) model() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel
}

func (c Config) language() string {
	if c.Language != "" {
		return c.Language
	}
	return DefaultLanguage
}
