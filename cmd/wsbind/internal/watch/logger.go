package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/albertocavalcante/wsbind/pkg/resolve"
)

// ChangeType represents the type of file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

// Logger handles watch mode output formatting. It also serves as a
// resolve.DiagnosticsSink so problems show up as they are found.
type Logger struct {
	mu      sync.Mutex // serializes writes
	writer  io.Writer
	isTTY   bool
	verbose bool
	noColor bool
	jsonOut bool

	statsMu sync.Mutex
	stats   WatchStats
}

// WatchStats tracks statistics for the watch session.
type WatchStats struct {
	SyncCount    int
	ProblemCount int
	ErrorCount   int
	StartTime    time.Time
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Logger{
		writer:  writer,
		isTTY:   isTTY,
		verbose: cfg.Verbose,
		noColor: cfg.NoColor,
		jsonOut: cfg.JSON,
		stats: WatchStats{
			StartTime: time.Now(),
		},
	}
}

// Ready logs the initial ready message.
func (l *Logger) Ready(fileCount, projectCount int, path string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "ready",
			"files":    fileCount,
			"projects": projectCount,
			"path":     path,
		})
		return
	}

	l.printf("wsbind: watching %d projects (%d tracked files) in %s\n", projectCount, fileCount, path)
	l.printf("wsbind: ready\n\n")
}

// FileChanged logs a file change event.
func (l *Logger) FileChanged(path string, change ChangeType) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "file_changed",
			"path":   path,
			"change": string(change),
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}

	if l.verbose {
		l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(change), change), path)
	}
}

// Syncing logs that a batch of changes is being applied.
func (l *Logger) Syncing(paths []string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "syncing",
			"paths": paths,
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	if len(paths) == 1 {
		l.printf("[%s] syncing %s...\n", l.timestamp(), paths[0])
	} else {
		l.printf("[%s] syncing %d files...\n", l.timestamp(), len(paths))
	}
}

// Synced logs the projects re-resolved by a batch.
func (l *Logger) Synced(projects []resolve.ProjectID) {
	l.statsMu.Lock()
	l.stats.SyncCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "synced",
			"projects": projects,
			"time":     time.Now().Format(time.RFC3339),
		})
		return
	}

	checkmark := l.colorize("✓", ChangeAdded)
	if len(projects) == 0 {
		l.printf("[%s] %s no bindings changed\n", l.timestamp(), checkmark)
		return
	}
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = string(p)
	}
	l.printf("[%s] %s rebound %s\n", l.timestamp(), checkmark, strings.Join(names, ", "))
}

// Report implements resolve.DiagnosticsSink. Projects without problems are
// only shown in verbose mode.
func (l *Logger) Report(project resolve.ProjectID, problems []resolve.Problem) {
	l.statsMu.Lock()
	l.stats.ProblemCount += len(problems)
	l.statsMu.Unlock()

	if l.jsonOut {
		messages := make([]map[string]string, len(problems))
		for i, p := range problems {
			messages[i] = map[string]string{
				"dependency": p.Dependency.String(),
				"message":    p.Message,
			}
		}
		l.writeJSON(map[string]any{
			"event":    "problems",
			"project":  string(project),
			"problems": messages,
		})
		return
	}

	if len(problems) == 0 {
		if l.verbose {
			l.printf("[%s] %s resolved\n", l.timestamp(), project)
		}
		return
	}
	xmark := l.colorize("✗", ChangeDeleted)
	for _, p := range problems {
		l.printf("[%s] %s %s: %s: %s\n", l.timestamp(), xmark, project, p.Dependency.Name, p.Message)
	}
}

// Error logs an error.
func (l *Logger) Error(err error) {
	l.statsMu.Lock()
	l.stats.ErrorCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "error",
			"error": err.Error(),
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	xmark := l.colorize("✗", ChangeDeleted)
	l.printf("[%s] %s error: %v\n", l.timestamp(), xmark, err)
}

// Shutdown logs the shutdown message with statistics.
func (l *Logger) Shutdown() {
	stats := l.Stats()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "shutdown",
			"syncs":    stats.SyncCount,
			"errors":   stats.ErrorCount,
			"duration": time.Since(stats.StartTime).String(),
		})
		return
	}

	l.printf("\nwsbind: shutting down (%d syncs, %d errors)\n", stats.SyncCount, stats.ErrorCount)
}

// Stats returns the current watch statistics.
func (l *Logger) Stats() WatchStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// timestamp returns the current time formatted as HH:MM:SS.
func (l *Logger) timestamp() string {
	return time.Now().Format("15:04:05")
}

// colorize applies ANSI color codes based on change type.
func (l *Logger) colorize(s string, change ChangeType) string {
	if l.noColor || !l.isTTY {
		return s
	}

	var color string
	switch change {
	case ChangeAdded:
		color = "\033[32m" // green
	case ChangeModified:
		color = "\033[33m" // yellow
	case ChangeDeleted:
		color = "\033[31m" // red
	default:
		return s
	}
	return color + s + "\033[0m"
}

// writeJSON writes a JSON object to the output.
func (l *Logger) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.printf("%s\n", `{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.printf("%s\n", data)
}

// printf writes to the writer, ignoring errors; output is informational.
func (l *Logger) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.writer, format, args...)
}
