package repository

import (
	"fmt"
	"io/fs"
	"path"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/albertocavalcante/wsbind/internal/log"
)

// DefaultDirPattern selects the bundle files a Dir repository serves.
const DefaultDirPattern = "**/*.jar"

// Dir serves every bundle file found under a directory, deriving name and
// version from the file name.
type Dir struct {
	catalog
}

// ScanDir globs fsys for pattern and indexes each match under prefix.
// Files whose names carry no version are skipped.
func ScanDir(name string, fsys fs.FS, pattern, prefix string) (*Dir, error) {
	if pattern == "" {
		pattern = DefaultDirPattern
	}
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("repository %s: scan: %w", name, err)
	}

	logger := log.Component("repository")
	d := &Dir{catalog: newCatalog(name)}
	for _, match := range matches {
		bundle, v, ok := ParseFileName(match)
		if !ok {
			logger.Debug("skipping file without version", "repository", name, "file", match)
			continue
		}
		d.add(d, bundle, v, path.Join(prefix, match))
	}
	logger.Debug("scanned bundle directory", "repository", name, "bundles", d.Len())
	return d, nil
}
