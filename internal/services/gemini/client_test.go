package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"minutes/internal/retry"
	"minutes/internal/services"
)

func textResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{
				"content":      map[string]any{"parts": []any{map[string]any{"text": text}}},
				"finishReason": "STOP",
			},
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: server.URL + "/", Model: "demo-model", Temperature: 0.2},
		WithPollInterval(time.Millisecond), WithPollTimeout(time.Second))
}

func TestGenerateTextSendsPromptAndFiles(t *testing.T) {
	var captured generateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/vision-model:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("unexpected api key %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(textResponse("  fused transcript  "))
	})

	text, err := client.GenerateText(context.Background(), Request{
		Model:  "vision-model",
		System: "be precise",
		Prompt: "fuse these",
		Files:  []File{{URI: "https://files/abc", MimeType: "video/mp4"}},
	})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "fused transcript" {
		t.Fatalf("unexpected text %q", text)
	}
	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "be precise" {
		t.Fatalf("system instruction missing: %+v", captured.SystemInstruction)
	}
	parts := captured.Contents[0].Parts
	if len(parts) != 2 || parts[0].FileData == nil || parts[0].FileData.FileURI != "https://files/abc" || parts[1].Text != "fuse these" {
		t.Fatalf("unexpected parts %+v", parts)
	}
	if captured.GenerationConfig.ResponseMimeType != "" {
		t.Fatal("plain text request should not set response mime type")
	}
}

func TestGenerateJSONDecodesCodeFence(t *testing.T) {
	var captured generateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(textResponse("```json\n{\"summary\":\"ok\"}\n```"))
	})

	var out struct {
		Summary string `json:"summary"`
	}
	schema := map[string]any{"type": "object"}
	if err := client.GenerateJSON(context.Background(), Request{Prompt: "p", Schema: schema}, &out); err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if out.Summary != "ok" {
		t.Fatalf("unexpected summary %q", out.Summary)
	}
	if captured.GenerationConfig.ResponseMimeType != jsonMimeType || captured.GenerationConfig.ResponseSchema == nil {
		t.Fatalf("structured output not requested: %+v", captured.GenerationConfig)
	}
}

func TestGenerateJSONMalformedPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(textResponse("not json at all"))
	})
	var out map[string]any
	err := client.GenerateJSON(context.Background(), Request{Prompt: "p"}, &out)
	if !services.Is(err, services.KindResponseSchemaInvalid) {
		t.Fatalf("expected ResponseSchemaInvalid, got %v", err)
	}
}

func TestGenerateClassifiesFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		payload any
		want    services.Kind
	}{
		{"prompt blocked", http.StatusOK, map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}}, services.KindExternalCallBlocked},
		{"candidate blocked", http.StatusOK, map[string]any{"candidates": []any{map[string]any{"finishReason": "SAFETY"}}}, services.KindExternalCallBlocked},
		{"no candidates", http.StatusOK, map[string]any{"candidates": []any{}}, services.KindExternalCallTransient},
		{"rate limited", http.StatusTooManyRequests, map[string]any{"error": map[string]any{"message": "quota"}}, services.KindExternalCallTransient},
		{"unavailable", http.StatusServiceUnavailable, map[string]any{}, services.KindExternalCallTransient},
		{"bad request", http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "invalid argument"}}, services.KindExternalCallRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(tc.payload)
			})
			_, err := client.GenerateText(context.Background(), Request{Prompt: "p"})
			if got := services.KindOf(err); got != tc.want {
				t.Fatalf("expected %s, got %s (%v)", tc.want, got, err)
			}
		})
	}
}

func TestRejectedMessageIncludesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "API key not valid"}})
	})
	err := client.HealthCheck(context.Background())
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("expected api error message, got %v", err)
	}
}

func TestHealthCheckRequiresKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "m"})
	if err := client.HealthCheck(context.Background()); !services.Is(err, services.KindMissingPrerequisite) {
		t.Fatalf("expected MissingPrerequisite, got %v", err)
	}
}

func TestUploadFileWaitsForActive(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "meeting.mp4")
	if err := os.WriteFile(video, []byte("video-bytes"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}

	var polls atomic.Int32
	var serverURL string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/upload/v1beta/files" && r.Header.Get("X-Goog-Upload-Command") == "start":
			if r.Header.Get("X-Goog-Upload-Header-Content-Type") != "video/mp4" {
				t.Errorf("unexpected content type %q", r.Header.Get("X-Goog-Upload-Header-Content-Type"))
			}
			if r.Header.Get("X-Goog-Upload-Header-Content-Length") != "11" {
				t.Errorf("unexpected content length %q", r.Header.Get("X-Goog-Upload-Header-Content-Length"))
			}
			w.Header().Set("X-Goog-Upload-URL", serverURL+"/resumable/1")
		case r.URL.Path == "/resumable/1":
			body, _ := io.ReadAll(r.Body)
			if string(body) != "video-bytes" {
				t.Errorf("unexpected upload body %q", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"file": map[string]any{
				"name": "files/abc", "uri": "https://files/abc", "state": FileStateProcessing,
			}})
		case r.URL.Path == "/v1beta/files/abc":
			state := FileStateProcessing
			if polls.Add(1) >= 2 {
				state = FileStateActive
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": "files/abc", "uri": "https://files/abc", "mimeType": "video/mp4", "state": state,
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	serverURL = strings.TrimSuffix(client.cfg.BaseURL, "/")

	file, err := client.UploadFile(context.Background(), video)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if file.State != FileStateActive || file.URI != "https://files/abc" || file.MimeType != "video/mp4" {
		t.Fatalf("unexpected file %+v", file)
	}
	if polls.Load() != 2 {
		t.Fatalf("expected 2 polls, got %d", polls.Load())
	}
}

func TestUploadFileProcessingFailed(t *testing.T) {
	dir := t.TempDir()
	deck := filepath.Join(dir, "deck.pdf")
	if err := os.WriteFile(deck, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write deck: %v", err)
	}
	var serverURL string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-Upload-Command") == "start" {
			w.Header().Set("X-Goog-Upload-URL", serverURL+"/resumable/2")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"file": map[string]any{"name": "files/x", "state": FileStateFailed}})
	})
	serverURL = client.cfg.BaseURL

	if _, err := client.UploadFile(context.Background(), deck); !services.Is(err, services.KindExternalCallRejected) {
		t.Fatalf("expected Rejected, got %v", err)
	}
}

func TestUploadFileMissingPath(t *testing.T) {
	client := NewClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1", Model: "m"})
	_, err := client.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
	if !services.Is(err, services.KindResourceNotFound) {
		t.Fatalf("expected ResourceNotFound, got %v", err)
	}
}

func TestMimeTypeFor(t *testing.T) {
	cases := map[string]string{
		"a.MP4":     "video/mp4",
		"deck.pdf":  "application/pdf",
		"x.unknown": "application/octet-stream",
	}
	for path, want := range cases {
		if got := MimeTypeFor(path); got != want {
			t.Errorf("MimeTypeFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDecodeJSONExtractsObjectFromProse(t *testing.T) {
	var out map[string]string
	if err := DecodeJSON("Here you go: {\"a\":\"b\"} thanks", &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if out["a"] != "b" {
		t.Fatalf("unexpected decode %v", out)
	}
	if err := DecodeJSON("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func processingUploadServer(t *testing.T, starts *atomic.Int32) *Client {
	t.Helper()
	var serverURL string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Header.Get("X-Goog-Upload-Command") == "start":
			starts.Add(1)
			w.Header().Set("X-Goog-Upload-URL", serverURL+"/resumable/slow")
		case r.URL.Path == "/resumable/slow":
			_ = json.NewEncoder(w).Encode(map[string]any{"file": map[string]any{
				"name": "files/slow", "uri": "https://files/slow", "state": FileStateProcessing,
			}})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": "files/slow", "uri": "https://files/slow", "state": FileStateProcessing,
			})
		}
	})
	serverURL = strings.TrimSuffix(client.cfg.BaseURL, "/")
	return client
}

func writeMeetingVideo(t *testing.T) string {
	t.Helper()
	video := filepath.Join(t.TempDir(), "meeting.mp4")
	if err := os.WriteFile(video, []byte("video-bytes"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return video
}

func TestUploadFileAttemptDeadlineIsRetried(t *testing.T) {
	var starts atomic.Int32
	client := processingUploadServer(t, &starts)
	client.pollTimeout = time.Hour
	video := writeMeetingVideo(t)

	r := retry.New(retry.Policy{MaxAttempts: 3, AttemptTimeout: 40 * time.Millisecond},
		retry.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	_, err := retry.Do(context.Background(), r, "upload video", func(ctx context.Context) (File, error) {
		return client.UploadFile(ctx, video)
	})
	if !services.Is(err, services.KindExternalCallExhausted) {
		t.Fatalf("expected ExternalCallExhausted, got %v", err)
	}
	if starts.Load() != 3 {
		t.Fatalf("expected 3 upload attempts, got %d", starts.Load())
	}
}

func TestUploadFileDeadlineIsTransient(t *testing.T) {
	var starts atomic.Int32
	client := processingUploadServer(t, &starts)
	client.pollTimeout = time.Hour
	video := writeMeetingVideo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := client.UploadFile(ctx, video); !services.Is(err, services.KindExternalCallTransient) {
		t.Fatalf("expected ExternalCallTransient, got %v", err)
	}
}

func TestUploadFilePollTimeoutIsRetried(t *testing.T) {
	var starts atomic.Int32
	client := processingUploadServer(t, &starts)
	client.pollTimeout = 20 * time.Millisecond
	video := writeMeetingVideo(t)

	r := retry.New(retry.Policy{MaxAttempts: 2},
		retry.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	_, err := retry.Do(context.Background(), r.WithoutAttemptTimeout(), "upload video", func(ctx context.Context) (File, error) {
		return client.UploadFile(ctx, video)
	})
	if !services.Is(err, services.KindExternalCallExhausted) {
		t.Fatalf("expected ExternalCallExhausted, got %v", err)
	}
	if starts.Load() != 2 {
		t.Fatalf("expected 2 upload attempts, got %d", starts.Load())
	}
}

func TestUploadFileCanceledStaysCanceled(t *testing.T) {
	var starts atomic.Int32
	client := processingUploadServer(t, &starts)
	client.pollTimeout = time.Hour
	video := writeMeetingVideo(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := client.UploadFile(ctx, video); !services.Is(err, services.KindCanceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
}

func TestStartUploadReadsErrorBody(t *testing.T) {
	message := strings.Repeat("quota ", 50) + "exceeded"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 403, "message": message}})
	})
	_, err := client.UploadFile(context.Background(), writeMeetingVideo(t))
	if !services.Is(err, services.KindExternalCallRejected) {
		t.Fatalf("expected Rejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "exceeded") {
		t.Fatalf("expected full error message, got %v", err)
	}
}
