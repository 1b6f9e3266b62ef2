// Package logbook keeps an append-only text record of a drafting run: the
// engine's agent log entries plus the client's own notes about the run.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chambersiq/draftflow/internal/workflow/session"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	// LevelAgent marks entries reported by the remote engine's agents.
	LevelAgent Level = "AGENT"
)

// Logbook persists one thread's log to a text file. Nothing is ever
// truncated; display code caps what it shows through Tail.
type Logbook struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure dir: %w", err)
	}
	return &Logbook{path: path, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.write([]string{l.format(level, message)})
}

// Record appends engine log entries in order, tagging each with its agent.
func (l *Logbook) Record(entries []session.LogEntry) {
	if l == nil || len(entries) == 0 {
		return
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		agent := strings.TrimSpace(e.Agent)
		if agent == "" {
			agent = "engine"
		}
		lines = append(lines, l.format(LevelAgent, "["+agent+"] "+e.Message))
	}
	l.write(lines)
}

func (l *Logbook) format(level Level, message string) string {
	// Multi-line agent messages stay on one line so Tail counts entries.
	message = strings.Join(strings.Fields(strings.ReplaceAll(message, "\n", " ")), " ")
	return fmt.Sprintf("%s %-5s %s\n", l.now().Format(time.RFC3339), string(level), message)
}

func (l *Logbook) write(lines []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	for _, line := range lines {
		_, _ = w.WriteString(line)
	}
	_ = w.Flush()
}

// Tail returns up to maxLines of the most recent entries and the total
// number of entries on disk.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var (
		ring  []string
		total int
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		total++
		if maxLines <= 0 {
			continue
		}
		ring = append(ring, scanner.Text())
		if len(ring) > maxLines {
			ring = ring[1:]
		}
	}
	if len(ring) == 0 {
		return nil, total
	}
	return ring, total
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

// Recorded counts the engine entries already written by Record, so a
// reloaded run can skip the ones it has seen.
func (l *Logbook) Recorded() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return 0
	}
	defer file.Close()
	count := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 1 && fields[1] == string(LevelAgent) {
			count++
		}
	}
	return count
}
