package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"minutes/internal/services"
)

// CommandRunner executes name with args and returns combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Service provides Whisper transcription.
type Service struct {
	cfg           Config
	commandRunner CommandRunner
	lookPath      func(string) (string, error)
}

// NewService creates a Whisper service with the given configuration.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg, lookPath: exec.LookPath}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	s.commandRunner = runner
	s.lookPath = func(name string) (string, error) { return name, nil }
}

// Model returns the configured model name for logging.
func (s *Service) Model() string { return s.cfg.model() }

// Command returns the configured executable.
func (s *Service) Command() string { return s.cfg.command() }

// Result contains the outcome of a transcription.
type Result struct {
	// JSONPath is the artifact written by the CLI.
	JSONPath string
	// Text is the transcript rendered as one timestamped line per segment.
	Text     string
	Segments []Segment
	Language string
}

// Segment represents a transcribed segment from Whisper JSON output.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type payload struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Transcribe runs Whisper against source and loads <outputDir>/<stem>.json.
func (s *Service) Transcribe(ctx context.Context, source, outputDir string) (Result, error) {
	if strings.TrimSpace(source) == "" {
		return Result{}, services.Fail(services.KindMissingPrerequisite, "", "whisper: source path required", nil)
	}
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, services.Fail(services.KindResourceNotFound, "", "whisper: video file not found: "+source, err)
		}
		return Result{}, services.Fail(services.KindResourceInvalid, "", "whisper: stat "+source, err)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("whisper: ensure output dir: %w", err)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	if err := s.run(ctx, s.buildArgs(source, outputDir)...); err != nil {
		return Result{}, err
	}

	jsonPath := filepath.Join(outputDir, strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))+".json")
	parsed, err := LoadResult(jsonPath)
	if err != nil {
		return Result{}, err
	}
	return parsed, nil
}

func (s *Service) buildArgs(source, outputDir string) []string {
	return []string{
		source,
		"--model", s.cfg.model(),
		"--language", s.cfg.language(),
		"--task", TaskTranscribe,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
	}
}

func (s *Service) run(ctx context.Context, args ...string) error {
	if err := s.CheckAvailable(); err != nil {
		return err
	}
	name := s.cfg.command()

	var output []byte
	var err error
	if s.commandRunner != nil {
		output, err = s.commandRunner(ctx, name, args...)
	} else {
		output, err = exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return services.Fail(services.KindExternalCallTransient, "", "whisper: timed out", ctxErr)
		}
		return services.Fail(services.KindCanceled, "", "whisper: canceled", ctxErr)
	}
	message := "whisper: command failed"
	if tail := lastLines(string(output), 5); tail != "" {
		message += ": " + tail
	}
	return services.Fail(services.KindExternalCallRejected, "", message, err)
}

// LoadResult reads a Whisper JSON artifact.
func LoadResult(jsonPath string) (Result, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, services.Fail(services.KindResourceNotFound, "", "whisper: output JSON not found at "+jsonPath, err)
		}
		return Result{}, fmt.Errorf("whisper: read output: %w", err)
	}
	var parsed payload
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, services.Fail(services.KindResponseSchemaInvalid, "", "whisper: parse output JSON", err)
	}
	text := RenderSegments(parsed.Segments)
	if text == "" {
		text = strings.TrimSpace(parsed.Text)
	}
	return Result{JSONPath: jsonPath, Text: text, Segments: parsed.Segments, Language: parsed.Language}, nil
}

// RenderSegments formats segments as "[hh:mm:ss - hh:mm:ss] text" lines.
func RenderSegments(segments []Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%s - %s] %s", formatTimestamp(seg.Start), formatTimestamp(seg.End), text)
	}
	return sb.String()
}

func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}

// CheckAvailable reports whether the configured command resolves on PATH.
func (s *Service) CheckAvailable() error {
	name := s.cfg.command()
	if _, err := s.lookPath(name); err != nil {
		return services.Fail(services.KindExternalCallRejected, "",
			fmt.Sprintf("whisper: command %q not found on PATH", name), err)
	}
	return nil
}
