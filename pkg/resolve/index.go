package resolve

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrInvalidLocation is returned when a location lacks a name or path.
	ErrInvalidLocation = errors.New("invalid bundle location")

	// ErrPathOwned is returned when a path is already exported by a
	// different project.
	ErrPathOwned = errors.New("bundle path exported by another project")
)

// Index is the registry of bundles exported by workspace projects.
//
// It keeps two views that are always updated together: symbolic name to
// locations, and project to exported paths. Index implements Repository.
type Index struct {
	byName  map[string][]*Location
	exports map[ProjectID]map[string]*Location
	owners  map[string]ProjectID
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byName:  make(map[string][]*Location),
		exports: make(map[ProjectID]map[string]*Location),
		owners:  make(map[string]ProjectID),
	}
}

// Name implements Repository.
func (idx *Index) Name() string {
	return "workspace"
}

// Put inserts loc as an export of project, replacing any location the
// project already exports at the same path. The replaced location is
// returned, or nil if the path is new.
func (idx *Index) Put(project ProjectID, loc *Location) (*Location, error) {
	if loc == nil || loc.Name == "" || loc.Path == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocation, loc)
	}
	if owner, ok := idx.owners[loc.Path]; ok && owner != project {
		return nil, fmt.Errorf("%w: %s is exported by %s", ErrPathOwned, loc.Path, owner)
	}

	paths := idx.exports[project]
	if paths == nil {
		paths = make(map[string]*Location)
		idx.exports[project] = paths
	}

	prior := paths[loc.Path]
	if prior != nil {
		// Drop the old identity first so both never appear under a name.
		idx.unlinkName(prior)
	}
	paths[loc.Path] = loc
	idx.owners[loc.Path] = project
	idx.byName[loc.Name] = append(idx.byName[loc.Name], loc)
	return prior, nil
}

// Remove drops the export of project at path. It reports whether anything
// was removed.
func (idx *Index) Remove(project ProjectID, p string) (*Location, bool) {
	paths := idx.exports[project]
	loc, ok := paths[cleanPath(p)]
	if !ok {
		return nil, false
	}
	idx.drop(project, loc)
	return loc, true
}

// Reset drops every export of project and returns them sorted by path.
func (idx *Index) Reset(project ProjectID) []*Location {
	removed := sortedLocations(idx.exports[project])
	for _, loc := range removed {
		idx.drop(project, loc)
	}
	return removed
}

func (idx *Index) drop(project ProjectID, loc *Location) {
	paths := idx.exports[project]
	delete(paths, loc.Path)
	if len(paths) == 0 {
		delete(idx.exports, project)
	}
	delete(idx.owners, loc.Path)
	idx.unlinkName(loc)
}

func (idx *Index) unlinkName(loc *Location) {
	list := slices.DeleteFunc(idx.byName[loc.Name], func(l *Location) bool { return l == loc })
	if len(list) == 0 {
		delete(idx.byName, loc.Name)
		return
	}
	idx.byName[loc.Name] = list
}

// Candidates returns every location exported under name. Implements
// Repository.
func (idx *Index) Candidates(name string) []*Location {
	return slices.Clone(idx.byName[name])
}

// Exports returns a copy of the project's export set keyed by path.
func (idx *Index) Exports(project ProjectID) map[string]*Location {
	out := make(map[string]*Location, len(idx.exports[project]))
	for p, loc := range idx.exports[project] {
		out[p] = loc
	}
	return out
}

// Owner returns the project exporting path.
func (idx *Index) Owner(p string) (ProjectID, bool) {
	project, ok := idx.owners[cleanPath(p)]
	return project, ok
}

// All returns every exported location sorted by path.
func (idx *Index) All() []*Location {
	all := make([]*Location, 0, len(idx.owners))
	for _, paths := range idx.exports {
		for _, loc := range paths {
			all = append(all, loc)
		}
	}
	slices.SortFunc(all, comparePath)
	return all
}

// Projects returns the projects with at least one export, sorted.
func (idx *Index) Projects() []ProjectID {
	projects := make([]ProjectID, 0, len(idx.exports))
	for p := range idx.exports {
		projects = append(projects, p)
	}
	slices.Sort(projects)
	return projects
}

// Len returns the number of exported locations.
func (idx *Index) Len() int {
	return len(idx.owners)
}

func sortedLocations(m map[string]*Location) []*Location {
	locs := make([]*Location, 0, len(m))
	for _, loc := range m {
		locs = append(locs, loc)
	}
	slices.SortFunc(locs, comparePath)
	return locs
}

func comparePath(a, b *Location) int {
	return strings.Compare(a.Path, b.Path)
}
