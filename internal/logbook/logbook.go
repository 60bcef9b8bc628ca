// Package logbook keeps the human-readable run history shown by
// `jaegis status` and the board's log panel. One line per entry.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the severity column of an entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logbook appends entries to a text file. Safe for concurrent use; a nil
// *Logbook discards everything.
type Logbook struct {
	path  string
	clock func() time.Time

	mu sync.Mutex
}

// Option customises a Logbook.
type Option func(*Logbook)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(l *Logbook) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New creates the parent directory of path and returns a logbook writing there.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: %w", err)
	}
	l := &Logbook{path: path, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes one entry. Embedded newlines are flattened so every entry
// stays on a single line. Write failures are dropped: the logbook is a
// convenience view, the structured log is the record.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(formatEntry(l.clock(), level, message))
}

func formatEntry(at time.Time, level Level, message string) string {
	message = strings.Join(strings.Fields(strings.ReplaceAll(message, "\n", " ")), " ")
	return fmt.Sprintf("%s %-5s %s\n", at.UTC().Format(time.RFC3339), level, message)
}

// Tail returns the last maxLines entries, oldest first, and the total number
// of entries in the file. Only maxLines lines are held in memory.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	ring := make([]string, maxLines)
	total := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		ring[total%maxLines] = scanner.Text()
		total++
	}
	if total == 0 {
		return nil, 0
	}
	if total <= maxLines {
		return ring[:total], total
	}
	start := total % maxLines
	return append(ring[start:], ring[:start]...), total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

// Phase records that mode entered phase at the given progress.
func (l *Logbook) Phase(mode, phase string, progress int) {
	l.Info("[%s] %s (%d%%)", mode, phase, progress)
}

// Outcome records how a mode execution ended. failed is written at error
// level and stopped at warn level.
func (l *Logbook) Outcome(mode, status, detail string) {
	level := LevelInfo
	switch status {
	case "failed":
		level = LevelError
	case "stopped":
		level = LevelWarn
	}
	msg := fmt.Sprintf("[%s] %s", mode, status)
	if detail = strings.TrimSpace(detail); detail != "" {
		msg += ": " + detail
	}
	l.Append(level, msg)
}
