package workspace

import (
	"maps"
	"slices"
	"sync"

	"github.com/albertocavalcante/wsbind/pkg/resolve"
)

// Diagnostics keeps the latest problem list of every project and forwards
// each report to the registered sinks.
type Diagnostics struct {
	mu       sync.Mutex
	problems map[resolve.ProjectID][]resolve.Problem
	sinks    []resolve.DiagnosticsSink
}

// NewDiagnostics creates a diagnostics store.
func NewDiagnostics(sinks ...resolve.DiagnosticsSink) *Diagnostics {
	return &Diagnostics{
		problems: make(map[resolve.ProjectID][]resolve.Problem),
		sinks:    sinks,
	}
}

// Report implements resolve.DiagnosticsSink.
func (d *Diagnostics) Report(project resolve.ProjectID, problems []resolve.Problem) {
	d.mu.Lock()
	if len(problems) == 0 {
		delete(d.problems, project)
	} else {
		d.problems[project] = slices.Clone(problems)
	}
	d.mu.Unlock()

	for _, sink := range d.sinks {
		sink.Report(project, problems)
	}
}

// Problems returns the latest problems of project.
func (d *Diagnostics) Problems(project resolve.ProjectID) []resolve.Problem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.problems[project])
}

// Projects returns the projects with at least one problem, sorted.
func (d *Diagnostics) Projects() []resolve.ProjectID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Sorted(maps.Keys(d.problems))
}

// Count returns the total number of problems.
func (d *Diagnostics) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, problems := range d.problems {
		n += len(problems)
	}
	return n
}

// Forget drops the problems of a removed project.
func (d *Diagnostics) Forget(project resolve.ProjectID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.problems, project)
}
