package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"minutes/internal/api"
	"minutes/internal/bootstrap"
	"minutes/internal/logging"
	"minutes/internal/services"
	"minutes/internal/tasks"
)

const (
	fieldDeck       = "ppt_file"
	fieldVideo      = "video_file"
	fieldTranscript = "transcript_file"
	fieldPipeline   = "pipeline"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/pipelines", s.handlePipelines)
	return s.withRequestID(mux)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryThreshold); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "expected multipart form: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	transcriptFile, transcriptHeader, err := r.FormFile(fieldTranscript)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fieldTranscript+" is required")
		return
	}
	transcriptFile.Close()
	if !bootstrap.IsTranscriptFile(transcriptHeader.Filename) {
		s.writeError(w, http.StatusBadRequest, fieldTranscript+" must be a .txt or .json file")
		return
	}

	job, err := s.app.NewJob(r.FormValue(fieldPipeline))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if job.TranscriptPath, err = s.saveUpload(r, job, fieldTranscript); err == nil {
		job.Transcript, err = bootstrap.LoadTranscript(job.TranscriptPath)
	}
	if err == nil {
		job.DeckPath, err = s.saveUpload(r, job, fieldDeck)
	}
	if err == nil {
		job.VideoPath, err = s.saveUpload(r, job, fieldVideo)
	}
	if err != nil {
		s.app.Discard(job)
		if services.Is(err, services.KindResourceInvalid) {
			s.writeError(w, http.StatusBadRequest, services.Details(err).Message)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.submit(w, r, job)
}

func (s *Server) saveUpload(r *http.Request, job bootstrap.Job, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", field, err)
	}
	defer file.Close()
	return s.storeFile(job, header, file)
}

func (s *Server) storeFile(job bootstrap.Job, header *multipart.FileHeader, file io.Reader) (string, error) {
	return s.app.Workspaces.SaveUpload(job.WorkspaceDir, header.Filename, file)
}

type transcriptRequest struct {
	Transcript string `json:"transcript"`
	Pipeline   string `json:"pipeline,omitempty"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		s.writeError(w, http.StatusBadRequest, "no transcript provided")
		return
	}
	pipeline := req.Pipeline
	if strings.TrimSpace(pipeline) == "" {
		pipeline = s.transcriptPipeline
	}
	job, err := s.app.NewJob(pipeline)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job.Transcript = req.Transcript
	s.submit(w, r, job)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, job bootstrap.Job) {
	ctx := r.Context()
	job, task, err := s.app.Submit(ctx, job)
	if err != nil {
		s.app.Discard(job)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if wantsAsync(r) {
		s.submitAsync(w, r, job, task)
		return
	}

	done := s.trackRun(job.RunID)
	result, err := s.app.Process(ctx, job, task)
	done()
	if err != nil && result.Task == nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, statusForFailure(result.Failure()), api.FromResult(result.Task, result.State))
}

func (s *Server) submitAsync(w http.ResponseWriter, r *http.Request, job bootstrap.Job, task *tasks.Task) {
	logger := logging.WithContext(services.WithRunID(r.Context(), job.RunID), s.logger)
	done := s.trackRun(job.RunID)
	started := s.background.TryGo(func() error {
		defer done()
		if _, err := s.app.Process(s.bgCtx, job, task); err != nil {
			logging.ErrorWithContext(logger, "background run failed", "background_run_failed",
				logging.TaskID(task.ID),
				logging.Error(err),
			)
		}
		return nil
	})
	if !started {
		done()
		busy := services.Fail(services.KindExternalCallTransient, "", "server busy; too many runs in progress", nil)
		if err := s.app.Abandon(r.Context(), job, task, busy); err != nil {
			s.logger.Warn("failed to abandon task", logging.TaskID(task.ID), logging.Error(err))
		}
		s.writeError(w, http.StatusServiceUnavailable, busy.Message)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.Accepted(task))
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	var statuses []tasks.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, err := tasks.ParseStatus(trimmed)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		statuses = append(statuses, status)
	}
	items, err := s.tasks.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []api.Task{}
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: items})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := s.tasks.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: *task})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := api.HealthResponse{Status: "ok", Database: "ok"}

	pipeline, err := s.app.Runner.Resolve(r.URL.Query().Get(fieldPipeline))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp.Pipeline = pipeline

	if err := s.app.Store.Ping(ctx); err != nil {
		resp.Status, resp.Database = "degraded", err.Error()
	} else if stats, err := s.tasks.Stats(ctx); err == nil {
		resp.TaskStats = stats
	}

	if queryFlag(r, "deep") {
		health, err := s.app.Runner.HealthCheck(ctx, pipeline)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Stages = api.StageHealthSlice(health)
		for _, h := range health {
			if !h.Ready {
				resp.Status = "degraded"
			}
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handlePipelines(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.PipelinesResponse{Pipelines: api.FromPipelines(s.app.Runner.Pipelines())})
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := services.WithRequestID(r.Context(), id)
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func wantsAsync(r *http.Request) bool {
	return queryFlag(r, "async")
}

func queryFlag(r *http.Request, name string) bool {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	return value == "1" || strings.EqualFold(value, "true")
}

// Close cancels background runs and waits for them to finish. Run does this
// itself on shutdown; Close is for servers used only through Handler.
func (s *Server) Close() {
	s.bgCancel()
	_ = s.background.Wait()
}
