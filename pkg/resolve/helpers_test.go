package resolve

import (
	"errors"
	"sync"

	"github.com/albertocavalcante/wsbind/pkg/version"
)

func prebuilt(name, ver, path string) *Location {
	return NewLocation(nil, name, version.MustParse(ver), path, "")
}

func built(name, ver, path, source string) *Location {
	return NewLocation(nil, name, version.MustParse(ver), path, source)
}

func dep(name, rng string) Dependency {
	return Dependency{Name: name, Range: version.MustParseRange(rng)}
}

// fakeRepo is a fixed candidate list keyed by name.
type fakeRepo struct {
	name string
	locs []*Location
}

func (r *fakeRepo) Name() string { return r.name }

func (r *fakeRepo) Candidates(name string) []*Location {
	var out []*Location
	for _, loc := range r.locs {
		if loc.Name == name {
			out = append(out, loc)
		}
	}
	return out
}

// recorder captures every sink call in order.
type recorder struct {
	mu           sync.Mutex
	reports      []ProjectID
	problems     map[ProjectID][]Problem
	materialized []ProjectID
	bindings     map[ProjectID]Binding
	failFor      ProjectID
}

func newRecorder() *recorder {
	return &recorder{
		problems: make(map[ProjectID][]Problem),
		bindings: make(map[ProjectID]Binding),
	}
}

func (r *recorder) Report(project ProjectID, problems []Problem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, project)
	r.problems[project] = problems
}

func (r *recorder) Materialize(project ProjectID, binding Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.materialized = append(r.materialized, project)
	r.bindings[project] = binding
	if project == r.failFor {
		return errors.New("classpath write failed")
	}
	return nil
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = nil
	r.materialized = nil
}
