package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"minutes/internal/api"
	"minutes/internal/bootstrap"
	"minutes/internal/config"
	"minutes/internal/services"
	"minutes/internal/tasks"
	"minutes/internal/testsupport"
)

var insightReplies = map[string]string{
	"key_points":   `{"key_points":["Budget approved"]}`,
	"action_items": `{"action_items":[{"person":"Ana","task":"Send invoice"}]}`,
	"summary":      `{"summary":"The team approved the budget."}`,
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *config.Config) {
	t.Helper()
	stub := testsupport.NewGeminiStub(t, insightReplies)
	cfg := testsupport.NewConfig(t, testsupport.WithGeminiURL(stub.URL))
	app, err := bootstrap.Build(cfg, nil, bootstrap.Options{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	srv, err := New(app, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		srv.Close()
		_ = app.Close()
	})
	return srv, cfg
}

func serve(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for field, entry := range files {
		name, content, _ := strings.Cut(entry, "=")
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestTranscriptEndpointReturnsReport(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/transcript", strings.NewReader(`{"transcript":"Ana: budget approved."}`))
	w := serve(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.AnalysisResponse](t, w)
	if resp.Status != api.StatusCompleted || resp.Report == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Report.Summary != "The team approved the budget." {
		t.Fatalf("unexpected summary %q", resp.Report.Summary)
	}
	if resp.Task.Pipeline != "transcript_insights" || resp.Task.Status != "completed" {
		t.Fatalf("unexpected task %+v", resp.Task)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	w = serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/tasks/"+strconv.FormatInt(resp.Task.ID, 10), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	single := decode[api.TaskResponse](t, w)
	if single.Task.Report == nil || single.Task.Report.Summary != resp.Report.Summary {
		t.Fatalf("expected stored report, got %+v", single.Task)
	}

	w = serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/tasks?status=completed", nil))
	list := decode[api.TaskListResponse](t, w)
	if len(list.Tasks) != 1 || list.Tasks[0].ID != resp.Task.ID {
		t.Fatalf("unexpected listing %+v", list)
	}
}

func TestTranscriptEndpointRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{"transcript":`},
		{"missing transcript", `{}`},
		{"blank transcript", `{"transcript":"   "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, srv, httptest.NewRequest(http.MethodPost, "/api/transcript", strings.NewReader(tc.body)))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestAnalyzeValidatesTranscriptFile(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name  string
		files map[string]string
	}{
		{"missing transcript", map[string]string{fieldDeck: "deck.pdf=%PDF"}},
		{"wrong extension", map[string]string{fieldTranscript: "notes.docx=hello"}},
		{"empty transcript", map[string]string{fieldTranscript: "notes.txt=  "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, srv, multipartRequest(t, "/api/analyze", nil, tc.files))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAnalyzeMissingVideoIsUnprocessable(t *testing.T) {
	srv, _ := newTestServer(t)

	req := multipartRequest(t, "/api/analyze", nil, map[string]string{fieldTranscript: "notes.txt=hello team"})
	w := serve(t, srv, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.AnalysisResponse](t, w)
	if resp.Status != api.StatusFailed || resp.Error == nil {
		t.Fatalf("expected failure, got %+v", resp)
	}
	if resp.Error.Kind != string(services.KindMissingPrerequisite) || resp.Error.Stage != "transcribe" {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if resp.Task.Status != "failed" || resp.Task.TranscriptPath == "" {
		t.Fatalf("unexpected task %+v", resp.Task)
	}
}

func TestAnalyzeRunsSelectedPipeline(t *testing.T) {
	srv, _ := newTestServer(t)

	req := multipartRequest(t, "/api/analyze",
		map[string]string{fieldPipeline: "transcript_insights"},
		map[string]string{fieldTranscript: "notes.json={\"text\":\"hello\"}"})
	w := serve(t, srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.AnalysisResponse](t, w)
	if resp.Report == nil || len(resp.Report.ActionItems) != 1 || resp.Report.ActionItems[0] != "Ana: Send invoice" {
		t.Fatalf("unexpected report %+v", resp.Report)
	}
}

func TestAnalyzeUnknownPipeline(t *testing.T) {
	srv, _ := newTestServer(t)
	req := multipartRequest(t, "/api/analyze",
		map[string]string{fieldPipeline: "nope"},
		map[string]string{fieldTranscript: "notes.txt=hello"})
	if w := serve(t, srv, req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAsyncSubmissionCompletesInBackground(t *testing.T) {
	srv, _ := newTestServer(t)

	w := serve(t, srv, httptest.NewRequest(http.MethodPost, "/api/transcript?async=true", strings.NewReader(`{"transcript":"notes"}`)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.AnalysisResponse](t, w)
	if resp.Status != api.StatusAccepted || resp.Task.ID == 0 {
		t.Fatalf("unexpected response %+v", resp)
	}

	_ = srv.background.Wait()
	task, err := srv.app.Store.Get(context.Background(), resp.Task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.Status != tasks.StatusCompleted {
		t.Fatalf("expected completed task, got %s", task.Status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[api.HealthResponse](t, w)
	if resp.Status != "ok" || resp.Database != "ok" || resp.Pipeline != "meeting_analysis" {
		t.Fatalf("unexpected health %+v", resp)
	}
	if _, ok := resp.TaskStats["pending"]; !ok {
		t.Fatalf("expected task stats, got %+v", resp.TaskStats)
	}

	w = serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/health?deep=1&pipeline=transcript_insights", nil))
	resp = decode[api.HealthResponse](t, w)
	if w.Code != http.StatusOK || len(resp.Stages) == 0 {
		t.Fatalf("expected stage health, got %d %+v", w.Code, resp)
	}
}

func TestPipelinesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	w := serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/pipelines", nil))
	resp := decode[api.PipelinesResponse](t, w)
	if len(resp.Pipelines) != 3 {
		t.Fatalf("expected 3 pipelines, got %+v", resp.Pipelines)
	}
}

func TestTaskNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	if w := serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/tasks/99", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/tasks/abc", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := serve(t, srv, httptest.NewRequest(http.MethodGet, "/api/tasks?status=archived", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestRunLeavesHeartbeatingTasksAlone(t *testing.T) {
	srv, _ := newTestServer(t, WithJanitor(0, 0))
	live := testsupport.NewTask(t, srv.app.Store, "meeting_analysis")
	if err := srv.app.Store.MarkRunning(context.Background(), live.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("server did not start listening")
		}
		time.Sleep(10 * time.Millisecond)
	}

	task, err := srv.app.Store.Get(context.Background(), live.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.Status != tasks.StatusRunning {
		t.Fatalf("expected recently updated task to stay running, got %+v", task)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunHoldsLockAndRecoversInterruptedTasks(t *testing.T) {
	srv, cfg := newTestServer(t, WithJanitor(0, 0), WithStaleTaskAge(0))
	stale := testsupport.NewTask(t, srv.app.Store, "meeting_analysis")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("server did not start listening")
		}
		time.Sleep(10 * time.Millisecond)
	}

	task, err := srv.app.Store.Get(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.Status != tasks.StatusFailed || task.ErrorMessage != tasks.InterruptedReason {
		t.Fatalf("expected interrupted task failed, got %+v", task)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from live server, got %d", resp.StatusCode)
	}

	app, err := bootstrap.Build(cfg, nil, bootstrap.Options{Store: srv.app.Store})
	if err != nil {
		t.Fatalf("Build second app: %v", err)
	}
	second, err := New(app)
	if err != nil {
		t.Fatalf("New second server: %v", err)
	}
	defer second.Close()
	if err := second.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStatusForFailure(t *testing.T) {
	cases := []struct {
		kind services.Kind
		want int
	}{
		{services.KindMissingPrerequisite, http.StatusUnprocessableEntity},
		{services.KindResourceNotFound, http.StatusUnprocessableEntity},
		{services.KindResourceInvalid, http.StatusUnprocessableEntity},
		{services.KindExternalCallExhausted, http.StatusServiceUnavailable},
		{services.KindExternalCallTransient, http.StatusServiceUnavailable},
		{services.KindExternalCallBlocked, http.StatusBadGateway},
		{services.KindExternalCallRejected, http.StatusBadGateway},
		{services.KindResponseSchemaInvalid, http.StatusBadGateway},
	}
	for _, tc := range cases {
		if got := statusForFailure(services.Fail(tc.kind, "s", "m", nil)); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
	if statusForFailure(nil) != http.StatusOK {
		t.Fatal("expected 200 for success")
	}
}
