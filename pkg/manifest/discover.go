package manifest

import (
	"errors"
	"io/fs"
	"path"
	"strings"

	"github.com/albertocavalcante/wsbind/pkg/resolve"
)

// Discover returns every top-level directory of fsys that holds a manifest
// called name, sorted. Directories whose names start with one of the ignore
// prefixes are skipped.
func Discover(fsys fs.FS, name string, ignore []string) ([]resolve.ProjectID, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var projects []resolve.ProjectID
	for _, entry := range entries {
		if !entry.IsDir() || Ignored(entry.Name(), ignore) {
			continue
		}
		info, err := fs.Stat(fsys, path.Join(entry.Name(), name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if info.Mode().IsRegular() {
			projects = append(projects, resolve.ProjectID(entry.Name()))
		}
	}
	return projects, nil
}

// Ignored reports whether a directory name starts with one of the prefixes.
func Ignored(dir string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(dir, prefix) {
			return true
		}
	}
	return false
}

// ProjectOf returns the project owning a workspace-relative path.
func ProjectOf(p string) resolve.ProjectID {
	p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/")
	first, _, _ := strings.Cut(p, "/")
	if first == "." || first == ".." {
		return ""
	}
	return resolve.ProjectID(first)
}
