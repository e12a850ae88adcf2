package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minutes/internal/logging"
)

// Manager owns the per-run scratch directories under a single root.
type Manager struct {
	root   string
	keep   bool
	logger *slog.Logger
}

// New builds a Manager rooted at root. When keep is true, Release never
// removes a directory.
func New(root string, keep bool, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		root:   strings.TrimSpace(root),
		keep:   keep,
		logger: logging.NewComponentLogger(logger, "workspace"),
	}
}

// Root returns the directory holding all run workspaces.
func (m *Manager) Root() string { return m.root }

// Path returns the workspace directory for runID without creating it.
func (m *Manager) Path(runID string) string {
	return filepath.Join(m.root, runID)
}

// Create makes the workspace directory for runID.
func (m *Manager) Create(runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" || runID != filepath.Base(runID) || runID == "." || runID == ".." {
		return "", fmt.Errorf("workspace: invalid run id %q", runID)
	}
	if m.root == "" {
		return "", errors.New("workspace: root directory not configured")
	}
	dir := m.Path(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("workspace: create %s: %w", dir, err)
	}
	return dir, nil
}

// SaveUpload streams r into dir under the base name of name and returns the
// written path.
func (m *Manager) SaveUpload(dir, name string, r io.Reader) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("workspace: invalid upload name %q", name)
	}
	target := filepath.Join(dir, base)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("workspace: create %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("workspace: write %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("workspace: close %s: %w", target, err)
	}
	return target, nil
}

// Release disposes of a finished run's workspace. Successful runs are removed
// unless the manager keeps workspaces; failed runs are always kept for
// inspection. It reports whether the directory was removed.
func (m *Manager) Release(dir string, succeeded bool) (bool, error) {
	if m.keep || !succeeded || strings.TrimSpace(dir) == "" {
		return false, nil
	}
	if err := m.Remove(dir); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes dir, which must live directly under the manager's root.
func (m *Manager) Remove(dir string) error {
	clean := filepath.Clean(dir)
	if m.root == "" || filepath.Dir(clean) != filepath.Clean(m.root) {
		return fmt.Errorf("workspace: refusing to remove %s outside %s", dir, m.root)
	}
	if err := os.RemoveAll(clean); err != nil {
		m.logger.Warn("failed to remove workspace",
			logging.String("path", clean),
			logging.Error(err),
			logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "check workspace_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return fmt.Errorf("workspace: remove %s: %w", clean, err)
	}
	m.logger.Debug("removed workspace",
		logging.String("path", clean),
		logging.String(logging.FieldEventType, "workspace_cleanup"),
	)
	return nil
}

// DirInfo contains metadata about a workspace directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// List returns all workspace directories with their metadata.
func (m *Manager) List() ([]DirInfo, error) {
	if m.root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(m.root, entry.Name())
		size, _ := dirSize(dirPath)
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}
	return dirs, nil
}

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes workspaces older than maxAge, skipping any whose name is
// in active.
func (m *Manager) CleanStale(maxAge time.Duration, active map[string]struct{}) CleanResult {
	result := CleanResult{}
	dirs, err := m.List()
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: m.root, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, dir := range dirs {
		if _, ok := active[dir.Name]; ok {
			continue
		}
		if !dir.ModTime.Before(cutoff) {
			continue
		}
		if err := m.Remove(dir.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir.Path, Error: err})
			continue
		}
		result.Removed = append(result.Removed, dir.Path)
		m.logger.Info("removed stale workspace",
			logging.String("path", dir.Path),
			logging.Duration("age", time.Since(dir.ModTime)),
			logging.String(logging.FieldEventType, "workspace_cleanup"),
		)
	}
	return result
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
