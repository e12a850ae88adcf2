package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	maxLineBytes        = 1 << 20
)

// Options selects the lines Read returns.
type Options struct {
	// Offset resumes after a previous Read. A negative offset reads the
	// whole file and keeps only the last Lines matches.
	Offset int64
	// Lines bounds a negative-offset read. Zero returns no lines, only the
	// end offset.
	Lines int
	// Match keeps only lines containing the substring, such as a run id.
	Match string
}

// Chunk is a batch of lines and the offset the next Read resumes from.
type Chunk struct {
	Lines  []string
	Offset int64
}

// Read returns log lines selected by opts. A missing file yields an empty
// chunk; an offset past the end of a truncated file restarts from the top.
func Read(path string, opts Options) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Chunk{}, nil
		}
		return Chunk{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Chunk{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Chunk{}, fmt.Errorf("log path %q is a directory", path)
	}

	tail := opts.Offset < 0
	start := opts.Offset
	if tail || start > info.Size() {
		start = 0
	}
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return Chunk{}, fmt.Errorf("seek log file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if opts.Match != "" && !strings.Contains(line, opts.Match) {
			continue
		}
		lines = append(lines, line)
		if tail && len(lines) > 2*opts.Lines+64 {
			lines = append(lines[:0], lines[len(lines)-opts.Lines:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return Chunk{}, fmt.Errorf("read log file: %w", err)
	}

	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Chunk{}, fmt.Errorf("determine log offset: %w", err)
	}
	if tail {
		if opts.Lines <= 0 {
			lines = nil
		} else if len(lines) > opts.Lines {
			lines = lines[len(lines)-opts.Lines:]
		}
	}
	return Chunk{Lines: lines, Offset: offset}, nil
}

// Follow polls path from offset and passes each batch of new matching lines
// to emit until ctx is done or emit fails. It returns ctx.Err() on
// cancellation.
func Follow(ctx context.Context, path string, offset int64, match string, interval time.Duration, emit func([]string) error) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		chunk, err := Read(path, Options{Offset: offset, Match: match})
		if err != nil {
			return err
		}
		offset = chunk.Offset
		if len(chunk.Lines) > 0 {
			if err := emit(chunk.Lines); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
