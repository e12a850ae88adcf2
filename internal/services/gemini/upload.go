package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"minutes/internal/services"
)

const maxErrorBodyBytes = 2048

// File states reported by the Files API.
const (
	FileStateProcessing = "PROCESSING"
	FileStateActive     = "ACTIVE"
	FileStateFailed     = "FAILED"
)

// File is an uploaded artifact that requests can reference by URI.
type File struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	URI         string `json:"uri"`
	MimeType    string `json:"mimeType"`
	State       string `json:"state,omitempty"`
}

var knownMimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mpeg": "video/mpeg",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".pdf":  "application/pdf",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".json": "application/json",
}

// MimeTypeFor guesses the upload MIME type from the file extension.
func MimeTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if known, ok := knownMimeTypes[ext]; ok {
		return known
	}
	if guessed := mime.TypeByExtension(ext); guessed != "" {
		if media, _, err := mime.ParseMediaType(guessed); err == nil {
			return media
		}
	}
	return "application/octet-stream"
}

// UploadFile sends path through the resumable upload protocol and waits until
// the service reports the file ACTIVE. A missing path fails with
// KindResourceNotFound.
func (c *Client) UploadFile(ctx context.Context, path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, services.Fail(services.KindResourceNotFound, "", "upload: file not found: "+path, err)
		}
		return File{}, services.Fail(services.KindResourceInvalid, "", "upload: stat "+path, err)
	}
	if info.IsDir() {
		return File{}, services.Fail(services.KindResourceInvalid, "", "upload: path is a directory: "+path, nil)
	}
	mimeType := MimeTypeFor(path)

	uploadURL, err := c.startUpload(ctx, filepath.Base(path), mimeType, info.Size())
	if err != nil {
		return File{}, err
	}
	file, err := c.sendUpload(ctx, uploadURL, path, info.Size())
	if err != nil {
		return File{}, err
	}
	if file.MimeType == "" {
		file.MimeType = mimeType
	}
	return c.waitActive(ctx, file)
}

func (c *Client) startUpload(ctx context.Context, displayName, mimeType string, size int64) (string, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "upload", "v1beta", "files")
	if err != nil {
		return "", fmt.Errorf("gemini upload: build url: %w", err)
	}
	meta, err := json.Marshal(map[string]any{"file": map[string]string{"display_name": displayName}})
	if err != nil {
		return "", fmt.Errorf("gemini upload: encode metadata: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(meta)))
	if err != nil {
		return "", fmt.Errorf("gemini upload: new request: %w", err)
	}
	req.Header.Set("Content-Type", jsonMimeType)
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.transportFailure("gemini upload start", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", classifyStatus("gemini upload start", resp.StatusCode, body)
	}
	uploadURL := strings.TrimSpace(resp.Header.Get("X-Goog-Upload-URL"))
	if uploadURL == "" {
		return "", services.Fail(services.KindResponseSchemaInvalid, "", "gemini upload start: missing upload url", nil)
	}
	return uploadURL, nil
}

func (c *Client) sendUpload(ctx context.Context, uploadURL, path string, size int64) (File, error) {
	handle, err := os.Open(path)
	if err != nil {
		return File{}, services.Fail(services.KindResourceNotFound, "", "upload: open "+path, err)
	}
	defer handle.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, handle)
	if err != nil {
		return File{}, fmt.Errorf("gemini upload: new request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	body, err := c.do(req, "gemini upload")
	if err != nil {
		return File{}, err
	}
	var envelope struct {
		File File `json:"file"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.File.Name == "" {
		if err == nil {
			err = errors.New("missing file name")
		}
		return File{}, services.Fail(services.KindResponseSchemaInvalid, "",
			"gemini upload: decode file ("+summarizePayloadSnippet(string(body))+")", err)
	}
	return envelope.File, nil
}

// GetFile fetches the current metadata of an uploaded file.
func (c *Client) GetFile(ctx context.Context, name string) (File, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "v1beta", name)
	if err != nil {
		return File{}, fmt.Errorf("gemini file: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return File{}, fmt.Errorf("gemini file: new request: %w", err)
	}
	body, err := c.do(req, "gemini file")
	if err != nil {
		return File{}, err
	}
	var file File
	if err := json.Unmarshal(body, &file); err != nil {
		return File{}, services.Fail(services.KindResponseSchemaInvalid, "", "gemini file: decode metadata", err)
	}
	return file, nil
}

func (c *Client) waitActive(ctx context.Context, file File) (File, error) {
	deadline := time.Now().Add(c.pollTimeout)
	for {
		switch file.State {
		case FileStateActive, "":
			return file, nil
		case FileStateFailed:
			return File{}, services.Fail(services.KindExternalCallRejected, "",
				"gemini upload: processing failed for "+file.Name, nil)
		}
		if time.Now().After(deadline) {
			return File{}, services.Fail(services.KindExternalCallTransient, "",
				fmt.Sprintf("gemini upload: %s still %s after %s", file.Name, file.State, c.pollTimeout), nil)
		}
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return File{}, services.Fail(services.KindExternalCallTransient, "",
					"gemini upload: deadline exceeded while "+file.Name+" was processing", ctx.Err())
			}
			return File{}, services.Fail(services.KindCanceled, "", "gemini upload: canceled while processing", ctx.Err())
		case <-timer.C:
		}
		refreshed, err := c.GetFile(ctx, file.Name)
		if err != nil {
			return File{}, err
		}
		if refreshed.MimeType == "" {
			refreshed.MimeType = file.MimeType
		}
		file = refreshed
	}
}
