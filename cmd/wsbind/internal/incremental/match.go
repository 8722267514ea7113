package incremental

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/albertocavalcante/wsbind/pkg/manifest"
)

// Matcher decides which workspace files are tracked: each project's
// manifest plus anything matching the track patterns, outside ignored
// directories.
type Matcher struct {
	manifest string
	track    []string
	ignore   []string
}

// NewMatcher creates a matcher. Patterns use doublestar syntax and are
// matched against workspace-relative slash paths.
func NewMatcher(manifestName string, track, ignore []string) *Matcher {
	return &Matcher{manifest: manifestName, track: track, ignore: ignore}
}

// IgnoredDir reports whether a directory with this base name is skipped.
func (m *Matcher) IgnoredDir(name string) bool {
	return manifest.Ignored(name, m.ignore)
}

// IsManifest reports whether rel is a project manifest.
func (m *Matcher) IsManifest(rel string) bool {
	dir, file := path.Split(rel)
	return file == m.manifest && strings.Count(dir, "/") == 1
}

// Tracked reports whether rel should be tracked.
func (m *Matcher) Tracked(rel string) bool {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	dirs := strings.Split(path.Dir(rel), "/")
	for _, dir := range dirs {
		if dir != "." && m.IgnoredDir(dir) {
			return false
		}
	}
	if m.IsManifest(rel) {
		return true
	}
	for _, pattern := range m.track {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
