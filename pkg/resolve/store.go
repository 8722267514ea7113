package resolve

import (
	"slices"
)

// entry is what the store remembers about one project.
type entry struct {
	deps     []Dependency
	binding  Binding
	problems []Problem
}

// Store caches, per project, the dependencies it was last resolved against
// and the binding that resolution produced. Entries are only ever replaced
// wholesale.
type Store struct {
	entries map[ProjectID]*entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[ProjectID]*entry)}
}

// Set replaces everything known about project.
func (s *Store) Set(project ProjectID, deps []Dependency, binding Binding, problems []Problem) {
	if binding == nil {
		binding = Binding{}
	}
	s.entries[project] = &entry{
		deps:     slices.Clone(deps),
		binding:  binding,
		problems: slices.Clone(problems),
	}
}

// Get returns the project's binding. Projects never resolved get an empty
// binding. Callers must not mutate the result.
func (s *Store) Get(project ProjectID) Binding {
	if e, ok := s.entries[project]; ok {
		return e.binding
	}
	return Binding{}
}

// Dependencies returns the dependencies the project was last resolved
// against, in declaration order.
func (s *Store) Dependencies(project ProjectID) []Dependency {
	if e, ok := s.entries[project]; ok {
		return slices.Clone(e.deps)
	}
	return nil
}

// Problems returns the problems from the project's last resolution.
func (s *Store) Problems(project ProjectID) []Problem {
	if e, ok := s.entries[project]; ok {
		return slices.Clone(e.problems)
	}
	return nil
}

// Has reports whether the project has been resolved at least once.
func (s *Store) Has(project ProjectID) bool {
	_, ok := s.entries[project]
	return ok
}

// Delete forgets the project.
func (s *Store) Delete(project ProjectID) {
	delete(s.entries, project)
}

// IsBoundTo reports whether any project is bound to path.
func (s *Store) IsBoundTo(p string) bool {
	for _, e := range s.entries {
		if e.binding.IsBoundTo(p) {
			return true
		}
	}
	return false
}

// BoundProjects returns the projects bound to path, sorted.
func (s *Store) BoundProjects(p string) []ProjectID {
	var projects []ProjectID
	for project, e := range s.entries {
		if e.binding.IsBoundTo(p) {
			projects = append(projects, project)
		}
	}
	slices.Sort(projects)
	return projects
}

// Projects returns every resolved project, sorted.
func (s *Store) Projects() []ProjectID {
	projects := make([]ProjectID, 0, len(s.entries))
	for project := range s.entries {
		projects = append(projects, project)
	}
	slices.Sort(projects)
	return projects
}
