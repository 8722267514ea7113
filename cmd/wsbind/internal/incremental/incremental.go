package incremental

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/albertocavalcante/wsbind/internal/log"
)

// Tracker reports which tracked files changed since the last Refresh.
type Tracker struct {
	store   Store
	scanner *Scanner
	root    string
}

// NewTracker creates a tracker for the given workspace.
func NewTracker(workspaceRoot string, matcher *Matcher) *Tracker {
	return &Tracker{
		store:   NewJSONStore(workspaceRoot),
		scanner: NewScanner(workspaceRoot, matcher),
		root:    workspaceRoot,
	}
}

// Status checks for changes without modifying state.
func (t *Tracker) Status(ctx context.Context) (*ChangeSet, error) {
	oldIdx, err := t.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	// Hash only files whose stat data moved.
	fastIdx, err := t.scanner.ScanFast(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}
	cs := diff(oldIdx, fastIdx, func(p string, _ *Entry) (string, error) {
		return HashFile(filepath.Join(t.root, filepath.FromSlash(p)))
	})

	log.Component("incremental").Debug("computed workspace status",
		"tracked", fastIdx.Len(),
		"added", len(cs.Added),
		"modified", len(cs.Modified),
		"deleted", len(cs.Deleted))
	return cs, nil
}

// Refresh records the current disk state.
func (t *Tracker) Refresh(ctx context.Context) error {
	idx, err := t.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan workspace: %w", err)
	}
	if err := t.store.Save(idx); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// HasState returns true if a previous state exists.
func (t *Tracker) HasState() bool {
	return t.store.Exists()
}

// TrackedFileCount returns the number of files in the stored index, or 0
// when there is no readable state.
func (t *Tracker) TrackedFileCount() int {
	idx, err := t.store.Load()
	if err != nil {
		return 0
	}
	return idx.Len()
}
