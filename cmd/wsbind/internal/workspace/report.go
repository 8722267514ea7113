package workspace

import (
	"slices"
	"strings"

	"github.com/albertocavalcante/wsbind/pkg/resolve"
)

// ProjectReport is the serializable view of one project's resolution.
type ProjectReport struct {
	Project  string          `json:"project"`
	Bindings []BoundBundle   `json:"bindings"`
	Problems []ProblemReport `json:"problems,omitempty"`
}

// BoundBundle is one resolved dependency.
type BoundBundle struct {
	Dependency string `json:"dependency"`
	Bundle     string `json:"bundle"`
	Version    string `json:"version"`
	Path       string `json:"path"`
	Source     string `json:"source,omitempty"`
	Repository string `json:"repository"`
}

// ProblemReport is one unresolved dependency with the candidates that were
// turned down.
type ProblemReport struct {
	Dependency string           `json:"dependency"`
	Message    string           `json:"message"`
	Rejections []RejectedBundle `json:"rejections,omitempty"`
}

// RejectedBundle is a candidate that matched the range but was not chosen.
type RejectedBundle struct {
	Bundle string `json:"bundle"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Cycle  bool   `json:"cycle,omitempty"`
}

// Report returns the current resolution of project.
func (w *Workspace) Report(project resolve.ProjectID) ProjectReport {
	return NewProjectReport(project, w.coord.Binding(project), w.coord.Problems(project))
}

// Reports returns the resolution of every loaded project, sorted.
func (w *Workspace) Reports() []ProjectReport {
	projects := w.Projects()
	reports := make([]ProjectReport, 0, len(projects))
	for _, project := range projects {
		reports = append(reports, w.Report(project))
	}
	return reports
}

// NewProjectReport builds a report from a binding and its problems.
// Bindings are ordered by dependency.
func NewProjectReport(project resolve.ProjectID, binding resolve.Binding, problems []resolve.Problem) ProjectReport {
	r := ProjectReport{Project: string(project), Bindings: []BoundBundle{}}
	for dep, loc := range binding {
		r.Bindings = append(r.Bindings, BoundBundle{
			Dependency: dep.String(),
			Bundle:     loc.Name,
			Version:    loc.Version.String(),
			Path:       loc.Path,
			Source:     string(loc.SourceProject()),
			Repository: RepositoryName(loc),
		})
	}
	slices.SortFunc(r.Bindings, func(a, b BoundBundle) int {
		return strings.Compare(a.Dependency, b.Dependency)
	})

	for _, p := range problems {
		pr := ProblemReport{Dependency: p.Dependency.String(), Message: p.Message}
		for _, rej := range p.Rejections {
			pr.Rejections = append(pr.Rejections, RejectedBundle{
				Bundle: rej.Location.Identity.String(),
				Path:   rej.Location.Path,
				Reason: rej.Reason,
				Cycle:  rej.Cycle,
			})
		}
		r.Problems = append(r.Problems, pr)
	}
	return r
}

// RepositoryName names where loc came from. Workspace exports carry no
// repository and report as "workspace".
func RepositoryName(loc *resolve.Location) string {
	if loc.Repository == nil {
		return "workspace"
	}
	return loc.Repository.Name()
}
