// Package resolve binds the declared bundle dependencies of workspace
// projects to concrete exported bundles.
//
// The pieces are layered leaf-first:
//
//   - Index tracks which bundles exist and which project exports them.
//   - Store caches the last binding computed for each project.
//   - CycleDetector walks stored bindings to reject self-referential exports.
//   - Resolver picks the lowest in-range, cycle-safe candidate per dependency.
//   - Coordinator applies export change batches and re-resolves exactly the
//     projects they affect.
//
// Index and Store are not safe for concurrent use on their own; the
// Coordinator serializes every mutation behind a single lock.
package resolve

import (
	"path"
	"slices"
	"strings"

	"github.com/albertocavalcante/wsbind/pkg/version"
)

// ProjectID names a workspace project. It is the first segment of every
// workspace path the project owns.
type ProjectID string

// Identity is the symbolic name and version of a bundle. Two bundles are the
// same artifact iff both fields are equal.
type Identity struct {
	Name    string
	Version version.Version
}

// String returns "name;version".
func (id Identity) String() string {
	return id.Name + ";" + id.Version.String()
}

// Location is one physical copy of a bundle.
//
// SourcePath is set only when the bundle is built by a workspace project; its
// first segment names that project. Locations without a source path are
// prebuilt binaries and can never take part in a cycle.
//
// Locations are immutable once built and are identified by Path.
type Location struct {
	Identity
	Path       string
	SourcePath string
	Repository Repository
}

// NewLocation returns a location with cleaned paths.
func NewLocation(repo Repository, name string, v version.Version, p, sourcePath string) *Location {
	loc := &Location{
		Identity:   Identity{Name: name, Version: v},
		Path:       cleanPath(p),
		Repository: repo,
	}
	if sourcePath != "" {
		loc.SourcePath = cleanPath(sourcePath)
	}
	return loc
}

// SourceProject returns the project that builds the bundle, or "" for
// prebuilt bundles.
func (l *Location) SourceProject() ProjectID {
	if l == nil || l.SourcePath == "" {
		return ""
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(l.SourcePath, "/"), "/")
	return ProjectID(first)
}

// Same reports whether two locations refer to the same path.
func (l *Location) Same(other *Location) bool {
	if l == nil || other == nil {
		return l == other
	}
	return l.Path == other.Path
}

func (l *Location) String() string {
	return l.Identity.String() + " @ " + l.Path
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// Dependency is a requirement declared by a consuming project. It is a value
// type: two dependencies with equal name and range are the same dependency.
type Dependency struct {
	Name  string
	Range version.Range
}

// String returns "name;range".
func (d Dependency) String() string {
	return d.Name + ";" + d.Range.String()
}

// Matches reports whether the location satisfies the dependency.
func (d Dependency) Matches(loc *Location) bool {
	return loc != nil && loc.Name == d.Name && d.Range.Includes(loc.Version)
}

// Binding maps each resolved dependency to the one location chosen for it.
// A dependency missing from the map is unresolved.
type Binding map[Dependency]*Location

// IsBoundTo reports whether any dependency is bound to the given path.
func (b Binding) IsBoundTo(p string) bool {
	for _, loc := range b {
		if loc.Path == p {
			return true
		}
	}
	return false
}

// Locations returns the bound locations sorted by path, without duplicates.
func (b Binding) Locations() []*Location {
	seen := make(map[string]bool, len(b))
	locs := make([]*Location, 0, len(b))
	for _, loc := range b {
		if seen[loc.Path] {
			continue
		}
		seen[loc.Path] = true
		locs = append(locs, loc)
	}
	slices.SortFunc(locs, comparePath)
	return locs
}

// Equal reports whether two bindings bind the same dependencies to the same
// paths.
func (b Binding) Equal(other Binding) bool {
	if len(b) != len(other) {
		return false
	}
	for dep, loc := range b {
		if !loc.Same(other[dep]) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	for dep, loc := range b {
		out[dep] = loc
	}
	return out
}

// Rejection explains why an in-range candidate was not chosen.
type Rejection struct {
	Location *Location
	Reason   string
	Cycle    bool
}

// Problem describes a dependency that could not be bound.
type Problem struct {
	Dependency Dependency
	Message    string
	Rejections []Rejection
}

// Repository is a source of candidate bundles. Implementations return every
// location they know under a symbolic name, in any order.
type Repository interface {
	Name() string
	Candidates(name string) []*Location
}

// DiagnosticsSink receives the complete problem list of a project after each
// resolution pass. The list may be empty.
type DiagnosticsSink interface {
	Report(project ProjectID, problems []Problem)
}

// Materializer turns a project's finalized binding into whatever the build
// consumes. It always receives the full binding, never a diff.
type Materializer interface {
	Materialize(project ProjectID, binding Binding) error
}

// DiagnosticsFunc adapts a function to DiagnosticsSink.
type DiagnosticsFunc func(project ProjectID, problems []Problem)

// Report implements DiagnosticsSink.
func (f DiagnosticsFunc) Report(project ProjectID, problems []Problem) { f(project, problems) }

// MaterializerFunc adapts a function to Materializer.
type MaterializerFunc func(project ProjectID, binding Binding) error

// Materialize implements Materializer.
func (f MaterializerFunc) Materialize(project ProjectID, binding Binding) error {
	return f(project, binding)
}
