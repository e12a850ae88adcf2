package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"minutes/internal/api"
	"minutes/internal/bootstrap"
	"minutes/internal/logging"
	"minutes/internal/tasks"
)

const (
	defaultMaxUploadBytes    = 2 << 30
	defaultMaxBackground     = 2
	defaultJanitorInterval   = time.Hour
	defaultWorkspaceMaxAge   = 7 * 24 * time.Hour
	shutdownTimeout          = 30 * time.Second
	defaultTranscriptPipe    = "transcript_insights"
	multipartMemoryThreshold = 32 << 20
)

// ErrAlreadyRunning is returned when another server holds the instance lock.
var ErrAlreadyRunning = errors.New("another minutes server is already running")

// Server serves the analysis API for one App.
type Server struct {
	app      *bootstrap.App
	logger   *slog.Logger
	bind     string
	lockPath string
	lock     *flock.Flock
	tasks    *api.TaskService

	maxUploadBytes     int64
	transcriptPipeline string
	janitorInterval    time.Duration
	workspaceMaxAge    time.Duration
	staleTaskAge       time.Duration

	background *errgroup.Group
	bgCtx      context.Context
	bgCancel   context.CancelFunc

	mu       sync.Mutex
	active   map[string]struct{}
	listener net.Listener
	handler  http.Handler
}

// Option customizes a Server.
type Option func(*Server)

// WithMaxUploadBytes bounds the size of a multipart submission.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithMaxBackground bounds how many async submissions run at once.
func WithMaxBackground(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.background.SetLimit(n)
		}
	}
}

// WithTranscriptPipeline selects the pipeline behind /api/transcript.
func WithTranscriptPipeline(name string) Option {
	return func(s *Server) {
		if name = strings.TrimSpace(name); name != "" {
			s.transcriptPipeline = name
		}
	}
}

// WithJanitor sets how often stale workspaces are swept and how old they
// must be. A zero interval disables the sweep.
func WithJanitor(interval, maxAge time.Duration) Option {
	return func(s *Server) {
		s.janitorInterval = interval
		if maxAge > 0 {
			s.workspaceMaxAge = maxAge
		}
	}
}

// WithStaleTaskAge sets how long a pending or running task may go without a
// heartbeat before startup marks it interrupted.
func WithStaleTaskAge(age time.Duration) Option {
	return func(s *Server) {
		if age >= 0 {
			s.staleTaskAge = age
		}
	}
}

// WithBind overrides the configured listen address.
func WithBind(addr string) Option {
	return func(s *Server) {
		if addr = strings.TrimSpace(addr); addr != "" {
			s.bind = addr
		}
	}
}

// New builds a Server around app.
func New(app *bootstrap.App, opts ...Option) (*Server, error) {
	if app == nil || app.Config == nil || app.Store == nil || app.Runner == nil || app.Workspaces == nil {
		return nil, errors.New("server requires a fully built app")
	}
	logger := app.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	s := &Server{
		app:                app,
		logger:             logging.NewComponentLogger(logger, "api-server"),
		bind:               strings.TrimSpace(app.Config.Paths.APIBind),
		lockPath:           app.Config.LockPath(),
		lock:               flock.New(app.Config.LockPath()),
		tasks:              api.NewTaskService(app.Store),
		maxUploadBytes:     defaultMaxUploadBytes,
		transcriptPipeline: defaultTranscriptPipe,
		janitorInterval:    defaultJanitorInterval,
		workspaceMaxAge:    defaultWorkspaceMaxAge,
		staleTaskAge:       tasks.StaleAfter,
		background:         &errgroup.Group{},
		bgCtx:              bgCtx,
		bgCancel:           bgCancel,
		active:             map[string]struct{}{},
	}
	s.background.SetLimit(defaultMaxBackground)
	for _, opt := range opts {
		opt(s)
	}
	if _, err := app.Runner.Resolve(s.transcriptPipeline); err != nil {
		bgCancel()
		return nil, fmt.Errorf("transcript pipeline: %w", err)
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the bound listen address once Run has started listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run acquires the instance lock, recovers interrupted tasks, and serves
// until ctx is canceled. In-flight background runs are canceled and awaited
// before Run returns.
func (s *Server) Run(ctx context.Context) error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, s.lockPath)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release server lock", logging.Error(err))
		}
	}()

	interrupted, err := s.app.Store.MarkInterrupted(ctx, time.Now().Add(-s.staleTaskAge))
	if err != nil {
		return err
	}
	if interrupted > 0 {
		logging.WarnWithContext(s.logger, "marked interrupted tasks as failed", "tasks_interrupted",
			logging.Int64("count", interrupted),
			logging.String(logging.FieldErrorHint, "resubmit the affected meetings"),
			logging.String(logging.FieldImpact, "previous runs did not finish"),
		)
	}

	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", s.lockPath),
		logging.String(logging.FieldEventType, "server_started"),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.bgCancel()
		_ = s.background.Wait()
		return err
	})
	if s.janitorInterval > 0 {
		group.Go(func() error {
			s.runJanitor(groupCtx)
			return nil
		})
	}

	err = group.Wait()
	s.logger.Info("api server stopped", logging.String(logging.FieldEventType, "server_stopped"))
	return err
}

func (s *Server) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepWorkspaces()
		}
	}
}

func (s *Server) sweepWorkspaces() {
	result := s.app.Workspaces.CleanStale(s.workspaceMaxAge, s.activeRuns())
	if len(result.Removed) > 0 {
		s.logger.Info("stale workspaces removed",
			logging.Int("count", len(result.Removed)),
			logging.String(logging.FieldEventType, "workspace_sweep"),
		)
	}
}

func (s *Server) trackRun(runID string) func() {
	s.mu.Lock()
	s.active[runID] = struct{}{}
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.active, runID)
		s.mu.Unlock()
	}
}

func (s *Server) activeRuns() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.active))
	for id := range s.active {
		out[id] = struct{}{}
	}
	return out
}
