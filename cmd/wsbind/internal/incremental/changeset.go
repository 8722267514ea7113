package incremental

import (
	"slices"

	"github.com/albertocavalcante/wsbind/pkg/manifest"
	"github.com/albertocavalcante/wsbind/pkg/resolve"
)

// ChangeSet represents the differences between two indexes.
type ChangeSet struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// NewChangeSet creates an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Added:    []string{},
		Modified: []string{},
		Deleted:  []string{},
	}
}

// IsEmpty returns true if there are no changes.
func (cs *ChangeSet) IsEmpty() bool {
	return cs.TotalChanges() == 0
}

// TotalChanges returns the total number of changed files.
func (cs *ChangeSet) TotalChanges() int {
	if cs == nil {
		return 0
	}
	return len(cs.Added) + len(cs.Modified) + len(cs.Deleted)
}

// Paths returns every changed path, sorted.
func (cs *ChangeSet) Paths() []string {
	if cs == nil {
		return nil
	}
	paths := slices.Concat(cs.Added, cs.Modified, cs.Deleted)
	slices.Sort(paths)
	return paths
}

// Projects returns the sorted projects owning a changed file.
func (cs *ChangeSet) Projects() []resolve.ProjectID {
	var projects []resolve.ProjectID
	for _, p := range cs.Paths() {
		if project := manifest.ProjectOf(p); project != "" {
			projects = append(projects, project)
		}
	}
	slices.Sort(projects)
	return slices.Compact(projects)
}

// sort sorts all slices for deterministic output.
func (cs *ChangeSet) sort() {
	slices.Sort(cs.Added)
	slices.Sort(cs.Modified)
	slices.Sort(cs.Deleted)
}
