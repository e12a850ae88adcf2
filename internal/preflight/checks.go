package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"minutes/internal/bootstrap"
	"minutes/internal/config"
	"minutes/internal/services"
)

const geminiCheckTimeout = 30 * time.Second

// CheckGemini verifies that the Gemini API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckGemini(ctx context.Context, cfg *config.Config) Result {
	const name = "Gemini API"
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, geminiCheckTimeout)
	defer cancel()

	client := bootstrap.NewGeminiClient(cfg)
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeGeminiError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("API reachable (model %s)", client.TextModel())}
}

// CheckGeminiKey reports whether an API key is configured without contacting the service.
func CheckGeminiKey(cfg *config.Config) Result {
	const name = "Gemini API key"
	if err := cfg.RequireGeminiKey(); err != nil {
		return Result{Name: name, Detail: "missing (set GEMINI_API_KEY or gemini.api_key)"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckWhisper verifies the transcription command resolves on PATH. Only
// pipelines that transcribe video need it, so a miss is reported as optional.
func CheckWhisper(cfg *config.Config) Result {
	const name = "Whisper"
	service := bootstrap.NewWhisperService(cfg)
	if err := service.CheckAvailable(); err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("binary %q not found (required for video transcription)", service.Command())}
	}
	return Result{Name: name, Optional: true, Passed: true, Detail: fmt.Sprintf("%s (model %s)", service.Command(), service.Model())}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeGeminiError produces a human-readable summary for health check failures.
func summarizeGeminiError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (Gemini API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (Gemini API unreachable)"
	}
	if failure, ok := services.AsFailure(err); ok {
		return fmt.Sprintf("%s: %s", failure.Kind, failure.Message)
	}
	return err.Error()
}
