package resolve

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/albertocavalcante/wsbind/internal/log"
)

// ReasonCycle is the rejection reason for candidates that would form a
// dependency cycle.
const ReasonCycle = "Possible dependency cycle"

// Resolver computes bindings for one project at a time. It never writes to
// the Store; persisting results is the caller's job.
type Resolver struct {
	repos  []Repository
	cycles *CycleDetector
	logger *slog.Logger
}

// NewResolver creates a resolver that merges candidates from every
// repository, in order.
func NewResolver(cycles *CycleDetector, repos ...Repository) *Resolver {
	return &Resolver{
		repos:  repos,
		cycles: cycles,
		logger: log.Component("resolver"),
	}
}

// Repositories returns the repositories the resolver queries.
func (r *Resolver) Repositories() []Repository {
	return slices.Clone(r.repos)
}

// Resolve binds each dependency to the lowest-version cycle-safe candidate
// within its range. Dependencies are resolved independently; problems come
// back in declaration order.
func (r *Resolver) Resolve(project ProjectID, deps []Dependency) (Binding, []Problem) {
	binding := make(Binding, len(deps))
	var problems []Problem
	seen := make(map[Dependency]bool, len(deps))

	for _, dep := range deps {
		if seen[dep] {
			continue
		}
		seen[dep] = true

		loc, rejections := r.resolveOne(project, dep)
		if loc != nil {
			binding[dep] = loc
			r.logger.Debug("bound dependency", "project", project, "dependency", dep, "location", loc.Path)
			continue
		}
		problems = append(problems, Problem{
			Dependency: dep,
			Message:    unresolvedMessage(dep, len(rejections)),
			Rejections: rejections,
		})
		r.logger.Debug("unresolved dependency", "project", project, "dependency", dep, "rejected", len(rejections))
	}
	return binding, problems
}

func (r *Resolver) resolveOne(project ProjectID, dep Dependency) (*Location, []Rejection) {
	var (
		safe       []*Location
		rejections []Rejection
	)
	for _, loc := range r.candidates(dep.Name) {
		if !dep.Range.Includes(loc.Version) {
			continue
		}
		if r.cycles.WouldCycle(project, loc) {
			rejections = append(rejections, Rejection{Location: loc, Reason: ReasonCycle, Cycle: true})
			continue
		}
		safe = append(safe, loc)
	}
	if len(safe) == 0 {
		return nil, rejections
	}
	// Lowest compatible version wins.
	return slices.MinFunc(safe, compareCandidates), rejections
}

// candidates merges every repository's locations for name, sorted by
// version then path. The first repository to report a path wins.
func (r *Resolver) candidates(name string) []*Location {
	var merged []*Location
	seen := make(map[string]bool)
	for _, repo := range r.repos {
		for _, loc := range repo.Candidates(name) {
			if seen[loc.Path] {
				continue
			}
			seen[loc.Path] = true
			merged = append(merged, loc)
		}
	}
	slices.SortFunc(merged, compareCandidates)
	return merged
}

func compareCandidates(a, b *Location) int {
	return cmp.Or(a.Version.Compare(b.Version), strings.Compare(a.Path, b.Path))
}

func unresolvedMessage(dep Dependency, rejected int) string {
	var count string
	switch rejected {
	case 0:
		count = "No candidates"
	case 1:
		count = "One candidate"
	default:
		count = fmt.Sprintf("%d candidates", rejected)
	}
	return fmt.Sprintf("No available exports matching the version range %q. %s rejected.", dep.Range.String(), count)
}
