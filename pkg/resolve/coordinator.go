package resolve

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/albertocavalcante/wsbind/internal/log"
)

// Batch is one set of export changes made by a single project.
type Batch struct {
	Project ProjectID
	Added   []*Location
	Changed []*Location
	Removed []string // paths
}

// IsEmpty returns true if the batch carries no changes.
func (b Batch) IsEmpty() bool {
	return len(b.Added) == 0 && len(b.Changed) == 0 && len(b.Removed) == 0
}

// Result reports what a batch did.
type Result struct {
	Added    []*Location
	Changed  []*Location
	Removed  []*Location
	Affected []ProjectID // re-resolved projects, in discovery order
}

// Coordinator owns the index and binding store and keeps bindings current
// as exports change. Every public method runs under one lock, covering
// index mutation, affected-set computation, re-resolution and publication.
//
// Sinks are called with the lock held and must not call back into the
// Coordinator.
type Coordinator struct {
	mu sync.Mutex

	index    *Index
	store    *Store
	resolver *Resolver

	repos        []Repository
	diagnostics  DiagnosticsSink
	materializer Materializer
	logger       *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRepositories adds repositories queried after the workspace index.
func WithRepositories(repos ...Repository) Option {
	return func(c *Coordinator) {
		c.repos = append(c.repos, repos...)
	}
}

// WithDiagnostics sets the sink receiving resolution problems.
func WithDiagnostics(sink DiagnosticsSink) Option {
	return func(c *Coordinator) {
		c.diagnostics = sink
	}
}

// WithMaterializer sets the consumer of finalized bindings.
func WithMaterializer(m Materializer) Option {
	return func(c *Coordinator) {
		c.materializer = m
	}
}

// New creates a Coordinator with a fresh index and store.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		index:  NewIndex(),
		store:  NewStore(),
		logger: log.Component("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	repos := append([]Repository{c.index}, c.repos...)
	c.resolver = NewResolver(NewCycleDetector(c.store), repos...)
	return c
}

// Declare sets the dependencies of project, resolves it and publishes the
// result.
func (c *Coordinator) Declare(project ProjectID, deps []Dependency) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("declaring project", "project", project, "dependencies", len(deps))
	return c.resolveLocked(project, deps)
}

// Apply processes a batch of export changes for b.Project and re-resolves
// every affected project. Invalid locations are skipped and reported in the
// returned error; the rest of the batch still applies.
func (c *Coordinator) Apply(b Batch) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(b)
}

// ResetExports replaces the whole export set of project with locs.
func (c *Coordinator) ResetExports(project ProjectID, locs []*Location) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.index.Exports(project)
	b := Batch{Project: project}
	keep := make(map[string]bool, len(locs))
	for _, loc := range locs {
		keep[loc.Path] = true
		prior, ok := existing[loc.Path]
		switch {
		case !ok:
			b.Added = append(b.Added, loc)
		case prior.Identity != loc.Identity || prior.SourcePath != loc.SourcePath:
			b.Changed = append(b.Changed, loc)
		}
	}
	for _, prior := range sortedLocations(existing) {
		if !keep[prior.Path] {
			b.Removed = append(b.Removed, prior.Path)
		}
	}
	return c.applyLocked(b)
}

// Forget drops every export and the binding of project, re-resolving the
// projects that were bound to its exports.
func (c *Coordinator) Forget(project ProjectID) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	affected := newProjectSet()
	removed := c.index.Reset(project)
	for _, loc := range removed {
		c.markBound(loc.Path, affected)
	}
	c.store.Delete(project)
	affected.remove(project)

	res := Result{Removed: removed, Affected: affected.list()}
	return res, c.refreshLocked(res.Affected)
}

// ResolveAll re-resolves every declared project in sorted order.
func (c *Coordinator) ResolveAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(c.store.Projects())
}

func (c *Coordinator) applyLocked(b Batch) (Result, error) {
	var (
		res      Result
		errs     []error
		affected = newProjectSet()
	)

	for _, p := range b.Removed {
		loc, ok := c.index.Remove(b.Project, p)
		if !ok {
			c.logger.Debug("removal of unknown export ignored", "project", b.Project, "path", p)
			continue
		}
		res.Removed = append(res.Removed, loc)
		c.markBound(loc.Path, affected)
	}

	for _, loc := range b.Changed {
		prior, err := c.index.Put(b.Project, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prior == nil {
			res.Added = append(res.Added, loc)
		} else {
			res.Changed = append(res.Changed, loc)
			c.markBound(loc.Path, affected)
		}
		c.markAdded(loc, affected)
	}

	for _, loc := range b.Added {
		prior, err := c.index.Put(b.Project, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prior != nil {
			res.Changed = append(res.Changed, loc)
			c.markBound(loc.Path, affected)
		} else {
			res.Added = append(res.Added, loc)
		}
		c.markAdded(loc, affected)
	}

	res.Affected = affected.list()
	c.logger.Debug("applied export batch",
		"project", b.Project,
		"added", len(res.Added),
		"changed", len(res.Changed),
		"removed", len(res.Removed),
		"affected", len(res.Affected))

	if err := c.refreshLocked(res.Affected); err != nil {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

// markBound marks every project currently bound to path.
func (c *Coordinator) markBound(p string, affected *projectSet) {
	for _, project := range c.store.BoundProjects(p) {
		affected.add(project)
	}
}

// markAdded marks every project with a dependency that loc satisfies,
// unless that dependency is already bound to a strictly lower version.
func (c *Coordinator) markAdded(loc *Location, affected *projectSet) {
	for _, project := range c.store.Projects() {
		if affected.has(project) {
			continue
		}
		binding := c.store.Get(project)
		for _, dep := range c.store.Dependencies(project) {
			if !dep.Matches(loc) {
				continue
			}
			bound := binding[dep]
			if bound == nil || bound.Version.Compare(loc.Version) >= 0 {
				affected.add(project)
				break
			}
		}
	}
}

// refreshLocked re-resolves projects one at a time so each cycle check sees
// the bindings finalized before it.
func (c *Coordinator) refreshLocked(projects []ProjectID) error {
	var errs []error
	for _, project := range projects {
		if err := c.resolveLocked(project, c.store.Dependencies(project)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) resolveLocked(project ProjectID, deps []Dependency) error {
	binding, problems := c.resolver.Resolve(project, deps)
	c.store.Set(project, deps, binding, problems)

	if c.diagnostics != nil {
		c.diagnostics.Report(project, problems)
	}
	if c.materializer != nil {
		if err := c.materializer.Materialize(project, binding.Clone()); err != nil {
			return fmt.Errorf("failed to materialize bindings for %s: %w", project, err)
		}
	}
	return nil
}

// Binding returns a copy of the project's current binding.
func (c *Coordinator) Binding(project ProjectID) Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(project).Clone()
}

// Problems returns the problems from the project's last resolution.
func (c *Coordinator) Problems(project ProjectID) []Problem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Problems(project)
}

// Dependencies returns the dependencies the project was declared with.
func (c *Coordinator) Dependencies(project ProjectID) []Dependency {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Dependencies(project)
}

// Projects returns every declared project, sorted.
func (c *Coordinator) Projects() []ProjectID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Projects()
}

// Exports returns the locations project exports, sorted by path.
func (c *Coordinator) Exports(project ProjectID) []*Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedLocations(c.index.Exports(project))
}

// AllExports returns every exported location, sorted by path.
func (c *Coordinator) AllExports() []*Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.All()
}

// Repositories returns the repositories candidates are drawn from, the
// workspace index first.
func (c *Coordinator) Repositories() []Repository {
	return c.resolver.Repositories()
}

// projectSet is a set that remembers insertion order.
type projectSet struct {
	order []ProjectID
	index map[ProjectID]bool
}

func newProjectSet() *projectSet {
	return &projectSet{index: make(map[ProjectID]bool)}
}

func (s *projectSet) add(p ProjectID) {
	if s.index[p] {
		return
	}
	s.index[p] = true
	s.order = append(s.order, p)
}

func (s *projectSet) has(p ProjectID) bool {
	return s.index[p]
}

func (s *projectSet) remove(p ProjectID) {
	if !s.index[p] {
		return
	}
	delete(s.index, p)
	s.order = slices.DeleteFunc(s.order, func(q ProjectID) bool { return q == p })
}

func (s *projectSet) list() []ProjectID {
	return slices.Clone(s.order)
}
