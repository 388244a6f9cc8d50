// Package progress writes the append-only, human-readable run log of a
// pipeline: one timestamped line per phase boundary.
package progress

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dataeng/internal/etl"
)

// TimestampLayout renders as e.g. 2024-Mar-05-14:07:09.
const TimestampLayout = "2006-Jan-02-15:04:05"

// DefaultSeparator sits between the timestamp and the message.
const DefaultSeparator = ","

// Logger appends `<timestamp><separator><message>` lines to a file.
// Every call opens, writes and closes the file. Write failures are reported
// through slog and never returned.
type Logger struct {
	Path      string
	Separator string

	now func() time.Time
}

var _ etl.ProgressLogger = (*Logger)(nil)

// New returns a Logger writing to path.
func New(path, separator string) *Logger {
	if separator == "" {
		separator = DefaultSeparator
	}
	return &Logger{Path: path, Separator: separator, now: time.Now}
}

// Log appends one entry.
func (l *Logger) Log(message string) {
	if err := l.append(message); err != nil {
		slog.Warn("progress log write failed", "path", l.Path, "err", err)
	}
}

func (l *Logger) append(message string) error {
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	line := now().Format(TimestampLayout) + l.Separator + message + "\n"

	if dir := filepath.Dir(l.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: %w", etl.ErrLogWrite, err)
		}
	}
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: %w", etl.ErrLogWrite, err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", etl.ErrLogWrite, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", etl.ErrLogWrite, err)
	}
	return nil
}

// Discard drops every message.
type Discard struct{}

func (Discard) Log(string) {}
