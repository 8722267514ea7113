package incremental

import (
	"time"
)

// IndexVersion is the current version of the index format.
const IndexVersion = 1

// Index is a snapshot of the tracked files in the workspace.
type Index struct {
	Version   int               `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
	Entries   map[string]*Entry `json:"entries"`
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		Version:   IndexVersion,
		UpdatedAt: time.Now(),
		Entries:   make(map[string]*Entry),
	}
}

// Add adds or updates an entry.
func (idx *Index) Add(e *Entry) {
	if idx == nil || e == nil {
		return
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*Entry)
	}
	idx.Entries[e.Path] = e
}

// Get retrieves an entry by path.
func (idx *Index) Get(p string) (*Entry, bool) {
	if idx == nil || idx.Entries == nil {
		return nil, false
	}
	e, ok := idx.Entries[p]
	return e, ok
}

// Len returns the number of tracked files.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.Entries)
}

// Diff compares this index (old) against other (new). Entries whose mtime
// and size match are assumed unchanged; otherwise hashes decide.
func (idx *Index) Diff(other *Index) *ChangeSet {
	return diff(idx, other, func(_ string, e *Entry) (string, error) { return e.Hash, nil })
}

// diff walks both snapshots, asking rehash for the current hash of files
// whose stat data moved.
func diff(oldIdx, newIdx *Index, rehash func(p string, e *Entry) (string, error)) *ChangeSet {
	cs := NewChangeSet()

	var oldEntries, newEntries map[string]*Entry
	if oldIdx != nil {
		oldEntries = oldIdx.Entries
	}
	if newIdx != nil {
		newEntries = newIdx.Entries
	}

	for p, cur := range newEntries {
		prev, ok := oldEntries[p]
		if !ok {
			cs.Added = append(cs.Added, p)
			continue
		}
		if prev.unchanged(cur) {
			continue
		}
		hash, err := rehash(p, cur)
		if err != nil || hash != prev.Hash {
			cs.Modified = append(cs.Modified, p)
		}
	}
	for p := range oldEntries {
		if _, ok := newEntries[p]; !ok {
			cs.Deleted = append(cs.Deleted, p)
		}
	}

	cs.sort()
	return cs
}
