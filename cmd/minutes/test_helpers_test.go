package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"minutes/internal/config"
	"minutes/internal/testsupport"
)

var insightReplies = map[string]string{
	"key_points":   `{"key_points":["Budget approved"]}`,
	"action_items": `{"action_items":[{"person":"Ana","task":"Send invoice"}]}`,
	"summary":      `{"summary":"The team approved the budget."}`,
}

type cliTestEnv struct {
	cfg        *config.Config
	stub       *testsupport.GeminiStub
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, replies map[string]string) *cliTestEnv {
	t.Helper()

	stub := testsupport.NewGeminiStub(t, replies)
	cfg := testsupport.NewConfig(t, testsupport.WithGeminiURL(stub.URL))
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		stub:       stub,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, configPath, "", args...)
}

func runCLIWithInput(t *testing.T, configPath, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
workspace_dir = %q
log_dir = %q
api_bind = %q

[gemini]
api_key = %q
base_url = %q

[retry]
max_attempts = 2
initial_delay_ms = 1
max_delay_ms = 1

[whisper]
command = "minutes-test-missing-whisper"

[logging]
level = "error"
`,
		cfg.Paths.DataDir,
		cfg.Paths.WorkspaceDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Gemini.APIKey,
		cfg.Gemini.BaseURL,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
