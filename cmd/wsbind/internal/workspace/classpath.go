package workspace

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/incremental"
	"github.com/albertocavalcante/wsbind/internal/log"
	"github.com/albertocavalcante/wsbind/pkg/resolve"
)

// ClasspathEntry is one bound bundle on a project's classpath. Source names
// the workspace project building it and is empty for prebuilt bundles.
type ClasspathEntry struct {
	Path   string
	Bundle resolve.Identity
	Source resolve.ProjectID
}

// Classpath materializes bindings as ordered classpath entries. When file is
// set, each project also gets the entries written to <root>/<project>/<file>.
type Classpath struct {
	root   string
	file   string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[resolve.ProjectID][]ClasspathEntry
}

// NewClasspath creates a materializer. An empty file keeps entries in
// memory only.
func NewClasspath(root, file string) *Classpath {
	return &Classpath{
		root:    root,
		file:    file,
		logger:  log.Component("classpath"),
		entries: make(map[resolve.ProjectID][]ClasspathEntry),
	}
}

// Materialize implements resolve.Materializer.
func (c *Classpath) Materialize(project resolve.ProjectID, binding resolve.Binding) error {
	locs := binding.Locations()
	entries := make([]ClasspathEntry, 0, len(locs))
	for _, loc := range locs {
		entries = append(entries, ClasspathEntry{
			Path:   loc.Path,
			Bundle: loc.Identity,
			Source: loc.SourceProject(),
		})
	}

	c.mu.Lock()
	c.entries[project] = entries
	c.mu.Unlock()

	if c.file == "" {
		return nil
	}
	return c.write(project, FormatClasspath(entries))
}

// Entries returns the last materialized entries of project.
func (c *Classpath) Entries(project resolve.ProjectID) []ClasspathEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.entries[project])
}

// Forget drops project's entries. The file on disk is left as is.
func (c *Classpath) Forget(project resolve.ProjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, project)
}

// File returns the path of project's classpath file, or "" when writing is
// disabled.
func (c *Classpath) File(project resolve.ProjectID) string {
	if c.file == "" {
		return ""
	}
	return filepath.Join(c.root, string(project), c.file)
}

func (c *Classpath) write(project resolve.ProjectID, data []byte) error {
	target := c.File(project)
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		// Project directory is gone; nothing to write into.
		return nil
	}
	existing, err := os.ReadFile(target)
	if err == nil && bytes.Equal(existing, data) {
		c.logger.Debug("classpath unchanged", "project", project)
		return nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", target, err)
	}
	if err := incremental.WriteFileAtomic(target, data); err != nil {
		return err
	}
	c.logger.Debug("wrote classpath", "project", project, "entries", bytes.Count(data, []byte{'\n'}))
	return nil
}

// FormatClasspath renders entries one per line: the bundle path, then a tab
// and the source project for workspace-built bundles.
func FormatClasspath(entries []ClasspathEntry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.Path)
		if e.Source != "" {
			buf.WriteByte('\t')
			buf.WriteString(string(e.Source))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ParseClasspath reads the format written by FormatClasspath. Bundle
// identities are not recorded in the file and stay empty.
func ParseClasspath(data []byte) ([]ClasspathEntry, error) {
	var entries []ClasspathEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		p, source, _ := strings.Cut(text, "\t")
		if p = strings.TrimSpace(p); p == "" {
			return nil, fmt.Errorf("line %d: missing path", line)
		}
		entries = append(entries, ClasspathEntry{Path: p, Source: resolve.ProjectID(strings.TrimSpace(source))})
	}
	return entries, scanner.Err()
}
