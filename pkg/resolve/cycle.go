package resolve

// BindingSource supplies the current binding of a project. *Store
// implements it.
type BindingSource interface {
	Get(project ProjectID) Binding
}

// CycleDetector decides whether binding a candidate would make a project
// depend, transitively, on a bundle it builds itself.
//
// The search walks the bindings already stored for other projects, so it
// only sees cycles that exist under previously computed bindings. Callers
// hold the Coordinator lock for the whole check-then-bind sequence.
type CycleDetector struct {
	bindings BindingSource
}

// NewCycleDetector creates a detector reading from bindings.
func NewCycleDetector(bindings BindingSource) *CycleDetector {
	return &CycleDetector{bindings: bindings}
}

// WouldCycle reports whether consumer binding to candidate creates a cycle.
func (d *CycleDetector) WouldCycle(consumer ProjectID, candidate *Location) bool {
	return d.walk(consumer, candidate, make(map[ProjectID]bool))
}

func (d *CycleDetector) walk(consumer ProjectID, loc *Location, visited map[ProjectID]bool) bool {
	// Prebuilt binaries are terminal.
	source := loc.SourceProject()
	if source == "" {
		return false
	}
	if source == consumer {
		return true
	}
	if visited[source] {
		return false
	}
	visited[source] = true

	for _, next := range d.bindings.Get(source) {
		if d.walk(consumer, next, visited) {
			return true
		}
	}
	return false
}
