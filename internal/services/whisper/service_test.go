package whisper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"minutes/internal/services"
)

const sampleOutput = `{"text":" Hello team. Budget approved.","language":"en","segments":[
 {"id":0,"start":0.0,"end":2.5,"text":" Hello team."},
 {"id":1,"start":62.2,"end":65.0,"text":" Budget approved."}]}`

func writeVideo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	video := filepath.Join(dir, "meeting.mp4")
	if err := os.WriteFile(video, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return video, filepath.Join(dir, "out")
}

func TestTranscribeBuildsCommandAndLoadsOutput(t *testing.T) {
	video, outDir := writeVideo(t)
	svc := NewService(Config{})
	var gotName string
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, os.WriteFile(filepath.Join(outDir, "meeting.json"), []byte(sampleOutput), 0o644)
	})

	result, err := svc.Transcribe(context.Background(), video, outDir)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotName != "whisper" {
		t.Fatalf("unexpected command %q", gotName)
	}
	wantArgs := []string{video, "--model", "base", "--language", "en", "--task", "transcribe",
		"--output_dir", outDir, "--output_format", "json"}
	if diff := cmp.Diff(wantArgs, gotArgs); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
	want := "[00:00:00 - 00:00:02] Hello team.\n[00:01:02 - 00:01:05] Budget approved."
	if result.Text != want {
		t.Fatalf("unexpected text:\n%s", result.Text)
	}
	if result.JSONPath != filepath.Join(outDir, "meeting.json") || len(result.Segments) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTranscribeMissingVideo(t *testing.T) {
	calls := 0
	svc := NewService(Config{})
	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		calls++
		return nil, nil
	})
	_, err := svc.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), t.TempDir())
	if !services.Is(err, services.KindResourceNotFound) {
		t.Fatalf("expected ResourceNotFound, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("command should not run, got %d calls", calls)
	}
}

func TestTranscribeNonZeroExit(t *testing.T) {
	video, outDir := writeVideo(t)
	svc := NewService(Config{})
	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("loading model\nffmpeg not found"), errors.New("exit status 1")
	})
	_, err := svc.Transcribe(context.Background(), video, outDir)
	if !services.Is(err, services.KindExternalCallRejected) {
		t.Fatalf("expected Rejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "ffmpeg not found") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
}

func TestTranscribeMissingOutput(t *testing.T) {
	video, outDir := writeVideo(t)
	svc := NewService(Config{})
	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) { return nil, nil })
	if _, err := svc.Transcribe(context.Background(), video, outDir); !services.Is(err, services.KindResourceNotFound) {
		t.Fatalf("expected ResourceNotFound, got %v", err)
	}
}

func TestLoadResultMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadResult(path); !services.Is(err, services.KindResponseSchemaInvalid) {
		t.Fatalf("expected ResponseSchemaInvalid, got %v", err)
	}
}

func TestCheckAvailableMissingBinary(t *testing.T) {
	svc := NewService(Config{Command: "definitely-not-a-whisper-binary-xyz"})
	if err := svc.CheckAvailable(); !services.Is(err, services.KindExternalCallRejected) {
		t.Fatalf("expected Rejected, got %v", err)
	}
}

func TestTranscribeMissingBinaryIsRejected(t *testing.T) {
	video, outDir := writeVideo(t)
	svc := NewService(Config{Command: "definitely-not-a-whisper-binary-xyz"})
	_, err := svc.Transcribe(context.Background(), video, outDir)
	if !services.Is(err, services.KindExternalCallRejected) {
		t.Fatalf("expected Rejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "not found on PATH") {
		t.Fatalf("expected PATH detail, got %v", err)
	}
}
