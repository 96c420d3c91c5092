// Package journal is the human-readable convergence trail: an
// append-only file of timestamped one-line events. It is deliberately
// not structured logging — operators tail it during slow boots — so
// slog stays separate and the two never mix formats.
package journal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// File appends timestamped lines to a log file.
type File struct {
	f   io.WriteCloser
	now func() time.Time
}

// Open opens (or creates) the trail at path in append mode, creating
// parent directories as needed.
func Open(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return &File{f: f, now: time.Now}, nil
}

// Record appends one timestamped line. Write failures are warnings, not
// errors: losing a trail line must never abort a convergence run.
func (j *File) Record(format string, args ...any) {
	line := fmt.Sprintf("%s %s\n", j.now().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
	if _, err := io.WriteString(j.f, line); err != nil {
		slog.Warn("journal write failed", "err", err)
	}
}

func (j *File) Close() error {
	return j.f.Close()
}

// Nop discards every event. Used in tests and when no log path is set.
type Nop struct{}

func (Nop) Record(string, ...any) {}
