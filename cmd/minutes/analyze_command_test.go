package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"minutes/internal/api"
	"minutes/internal/stage"
)

func TestInsightsPrintsReport(t *testing.T) {
	env := setupCLITestEnv(t, insightReplies)

	out, _, err := runCLI(t, env.configPath, "insights", "Ana:", "the", "budget", "is", "approved.")
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "The team approved the budget.")
	requireContains(t, out, "Ana: Send invoice")
	requireContains(t, out, "Budget approved")
	if env.stub.Calls("summary") != 1 {
		t.Fatalf("expected one summary call, got %d", env.stub.Calls("summary"))
	}
}

func TestInsightsJSONFromStdin(t *testing.T) {
	env := setupCLITestEnv(t, insightReplies)

	out, _, err := runCLIWithInput(t, env.configPath, "Ana: the budget is approved.\n", "insights", "--json", "-")
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	var resp api.AnalysisResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if resp.Status != api.StatusCompleted || resp.Task.ID == 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	want := &stage.Report{
		Summary:       "The team approved the budget.",
		ActionItems:   []string{"Ana: Send invoice"},
		ContextFields: map[string]string{},
		KeyPoints:     []string{"Budget approved"},
	}
	if diff := cmp.Diff(want, resp.Report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestInsightsFromFile(t *testing.T) {
	env := setupCLITestEnv(t, insightReplies)
	path := filepath.Join(env.baseDir, "meeting.txt")
	if err := os.WriteFile(path, []byte("Ana: the budget is approved.\n"), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "insights", "--file", path)
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	requireContains(t, out, "The team approved the budget.")

	if _, _, err := runCLI(t, env.configPath, "insights", "--file", path, "extra text"); err == nil {
		t.Fatal("expected error when both text and --file are given")
	}
}

func TestInsightsRejectsEmptyTranscript(t *testing.T) {
	env := setupCLITestEnv(t, insightReplies)

	_, _, err := runCLIWithInput(t, env.configPath, "   \n", "insights", "-")
	if err == nil || !strings.Contains(err.Error(), "transcript is empty") {
		t.Fatalf("expected empty transcript error, got %v", err)
	}
	if env.stub.Calls("summary") != 0 {
		t.Fatal("model must not be called for an empty transcript")
	}
}

func TestInsightsModelFailureExitsNonZero(t *testing.T) {
	env := setupCLITestEnv(t, map[string]string{
		"key_points":   insightReplies["key_points"],
		"action_items": insightReplies["action_items"],
	})

	out, _, err := runCLI(t, env.configPath, "insights", "Ana: hello")
	if err == nil {
		t.Fatal("expected failure when the summary call is rejected")
	}
	requireContains(t, err.Error(), "analysis failed")
	requireContains(t, out, "failed")
	requireContains(t, out, "summarize")
}

func TestAnalyzeWithoutVideoFailsAtTranscribe(t *testing.T) {
	env := setupCLITestEnv(t, insightReplies)
	path := filepath.Join(env.baseDir, "meeting.txt")
	if err := os.WriteFile(path, []byte("Ana: the budget is approved.\n"), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "analyze", "--transcript", path, "--json")
	if err == nil {
		t.Fatal("expected failure without a video")
	}
	var resp api.AnalysisResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if resp.Status != api.StatusFailed || resp.Error == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Error.Kind != "MissingPrerequisite" || resp.Error.Stage != "transcribe" {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}

func TestAnalyzeRejectsBadInputs(t *testing.T) {
	env := setupCLITestEnv(t, insightReplies)
	pdf := filepath.Join(env.baseDir, "notes.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "wrong transcript extension", args: []string{"analyze", "--transcript", pdf}, want: "transcript must be a .txt or .json file"},
		{name: "missing transcript", args: []string{"analyze", "--transcript", filepath.Join(env.baseDir, "nope.txt")}, want: "transcript not found"},
		{name: "unknown pipeline", args: []string{"analyze", "--pipeline", "nope"}, want: "nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := runCLI(t, env.configPath, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	entries, err := os.ReadDir(env.cfg.Paths.WorkspaceDir)
	if err != nil {
		t.Fatalf("read workspaces: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected rejected jobs to leave no workspaces, found %d", len(entries))
	}
}

func TestAnalyzeRequiresAPIKey(t *testing.T) {
	env := setupCLITestEnv(t, insightReplies)
	env.cfg.Gemini.APIKey = ""
	writeTestConfig(t, env.configPath, env.cfg)
	t.Setenv("GEMINI_API_KEY", "")

	_, _, err := runCLI(t, env.configPath, "insights", "hello")
	if err == nil || !strings.Contains(err.Error(), "gemini.api_key is required") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}
