package bootstrap

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"minutes/internal/services"
)

// IsTranscriptFile reports whether name has an accepted transcript extension.
func IsTranscriptFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".json":
		return true
	default:
		return false
	}
}

// LoadTranscript reads a .txt or .json transcript as text. JSON files are
// passed through verbatim. An empty file fails with KindResourceInvalid.
func LoadTranscript(path string) (string, error) {
	if !IsTranscriptFile(path) {
		return "", services.Fail(services.KindResourceInvalid, "", "transcript must be a .txt or .json file: "+path, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Fail(services.KindResourceNotFound, "", "transcript not found: "+path, err)
		}
		return "", services.Fail(services.KindResourceInvalid, "", "read transcript "+path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", services.Fail(services.KindResourceInvalid, "", "transcript is empty: "+path, nil)
	}
	return text, nil
}

// AbsPath resolves an optional input path; empty stays empty.
func AbsPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	return filepath.Abs(path)
}
