// Package manifest reads the per-project bundle manifest that declares what
// a project depends on and what it exports.
//
//	dependencies:
//	  - name: com.acme.util
//	    version: "[1.0,2.0)"
//	exports:
//	  - name: com.acme.app
//	    version: 1.0.0
//	    path: generated/com.acme.app.jar
//	    source: bnd.bnd
//	  - glob: lib/*.jar
//	    prebuilt: true
//
// Paths are relative to the project directory. An export without a source
// is attributed to the manifest itself unless it is prebuilt.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/albertocavalcante/wsbind/pkg/repository"
	"github.com/albertocavalcante/wsbind/pkg/resolve"
	"github.com/albertocavalcante/wsbind/pkg/version"
)

// ErrInvalid is returned for manifests that decode but make no sense.
var ErrInvalid = errors.New("invalid manifest")

// Manifest is one project's declaration.
type Manifest struct {
	Project      resolve.ProjectID `yaml:"-"`
	File         string            `yaml:"-"` // workspace-relative manifest path
	Dependencies []Requirement     `yaml:"dependencies"`
	Exports      []Export          `yaml:"exports"`

	deps []resolve.Dependency
}

// Requirement is a declared dependency.
type Requirement struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Export declares one exported bundle, or with Glob a set of bundle files
// whose names carry their identity.
type Export struct {
	Name     string `yaml:"name,omitempty"`
	Version  string `yaml:"version,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Glob     string `yaml:"glob,omitempty"`
	Source   string `yaml:"source,omitempty"`
	Prebuilt bool   `yaml:"prebuilt,omitempty"`
}

// Parse decodes and validates a manifest. name is the manifest's file name
// within the project directory.
func Parse(project resolve.ProjectID, name string, data []byte) (*Manifest, error) {
	m := &Manifest{Project: project, File: path.Join(string(project), name)}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", m.File, err)
		}
	}

	seen := make(map[resolve.Dependency]bool, len(m.Dependencies))
	for i, req := range m.Dependencies {
		if req.Name == "" {
			return nil, fmt.Errorf("%w: %s: dependencies[%d]: name is required", ErrInvalid, m.File, i)
		}
		rng := version.Range{}
		if req.Version != "" {
			var err error
			if rng, err = version.ParseRange(req.Version); err != nil {
				return nil, fmt.Errorf("%w: %s: dependency %s: %w", ErrInvalid, m.File, req.Name, err)
			}
		}
		dep := resolve.Dependency{Name: req.Name, Range: rng}
		if seen[dep] {
			continue
		}
		seen[dep] = true
		m.deps = append(m.deps, dep)
	}

	for i, exp := range m.Exports {
		if err := exp.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: exports[%d]: %w", ErrInvalid, m.File, i, err)
		}
	}
	return m, nil
}

func (e Export) validate() error {
	if e.Glob != "" {
		if e.Path != "" || e.Name != "" || e.Version != "" {
			return errors.New("glob excludes name, version and path")
		}
		if !doublestar.ValidatePattern(e.Glob) {
			return fmt.Errorf("bad glob %q", e.Glob)
		}
		return nil
	}
	if e.Name == "" || e.Path == "" {
		return errors.New("name and path are required")
	}
	if _, err := version.Parse(e.Version); err != nil {
		return err
	}
	if escapes(e.Path) || (e.Source != "" && escapes(e.Source)) {
		return errors.New("paths must stay inside the project")
	}
	return nil
}

func escapes(p string) bool {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	return path.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../")
}

// Load reads the manifest of project from fsys, rooted at the workspace.
func Load(fsys fs.FS, project resolve.ProjectID, name string) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, path.Join(string(project), name))
	if err != nil {
		return nil, err
	}
	return Parse(project, name, data)
}

// Requirements returns the parsed dependencies in declaration order,
// without duplicates.
func (m *Manifest) Requirements() []resolve.Dependency {
	return slices.Clone(m.deps)
}

// Locations expands the exports into workspace-relative locations. Glob
// exports are matched against fsys; files whose names carry no version are
// skipped. The result is sorted by path.
func (m *Manifest) Locations(fsys fs.FS) ([]*resolve.Location, error) {
	dir := string(m.Project)
	var locs []*resolve.Location
	for _, exp := range m.Exports {
		if exp.Glob == "" {
			v, _ := version.Parse(exp.Version)
			locs = append(locs, resolve.NewLocation(nil, exp.Name, v, path.Join(dir, exp.Path), m.source(exp)))
			continue
		}

		sub, err := fs.Sub(fsys, dir)
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(sub, exp.Glob, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("%s: glob %q: %w", m.File, exp.Glob, err)
		}
		for _, match := range matches {
			name, v, ok := repository.ParseFileName(match)
			if !ok {
				continue
			}
			locs = append(locs, resolve.NewLocation(nil, name, v, path.Join(dir, match), m.source(exp)))
		}
	}

	slices.SortStableFunc(locs, func(a, b *resolve.Location) int { return strings.Compare(a.Path, b.Path) })
	// Later declarations of the same path are dropped.
	return slices.CompactFunc(locs, func(a, b *resolve.Location) bool { return a.Path == b.Path }), nil
}

func (m *Manifest) source(exp Export) string {
	switch {
	case exp.Prebuilt:
		return ""
	case exp.Source != "":
		return path.Join(string(m.Project), exp.Source)
	default:
		return m.File
	}
}
