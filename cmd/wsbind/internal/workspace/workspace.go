// Package workspace ties project manifests, prebuilt repositories and the
// resolution coordinator together for one workspace root.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"slices"
	"sync"

	"github.com/albertocavalcante/wsbind/internal/log"
	"github.com/albertocavalcante/wsbind/pkg/config"
	"github.com/albertocavalcante/wsbind/pkg/manifest"
	"github.com/albertocavalcante/wsbind/pkg/repository"
	"github.com/albertocavalcante/wsbind/pkg/resolve"
)

// Workspace is a loaded workspace: every project manifest under Root, bound
// through one Coordinator.
type Workspace struct {
	Root   string
	Config *config.Config

	fsys        fs.FS
	coord       *resolve.Coordinator
	classpath   *Classpath
	diagnostics *Diagnostics
	logger      *slog.Logger

	mu        sync.Mutex // serializes Load and Sync
	manifests map[resolve.ProjectID]*manifest.Manifest
}

type options struct {
	sinks  []resolve.DiagnosticsSink
	dryRun bool
}

// Option configures a Workspace.
type Option func(*options)

// WithDiagnostics forwards every problem report to sink as well.
func WithDiagnostics(sink resolve.DiagnosticsSink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sink)
	}
}

// WithDryRun keeps classpaths in memory instead of writing them.
func WithDryRun() Option {
	return func(o *options) {
		o.dryRun = true
	}
}

// SyncResult reports what a Sync did.
type SyncResult struct {
	Reloaded []resolve.ProjectID // projects whose manifest was re-read
	Affected []resolve.ProjectID // projects re-resolved, in order, may repeat
}

// Open prepares a workspace rooted at root. Nothing is resolved until Load.
func Open(root string, cfg *config.Config, opts ...Option) (*Workspace, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	repos, err := repository.OpenAll(root, cfg.Repositories)
	if err != nil {
		return nil, err
	}

	file := cfg.Workspace.Classpath
	if o.dryRun {
		file = ""
	}

	w := &Workspace{
		Root:        root,
		Config:      cfg,
		fsys:        os.DirFS(root),
		classpath:   NewClasspath(root, file),
		diagnostics: NewDiagnostics(o.sinks...),
		logger:      log.Component("workspace"),
		manifests:   make(map[resolve.ProjectID]*manifest.Manifest),
	}
	w.coord = resolve.New(
		resolve.WithRepositories(repos...),
		resolve.WithDiagnostics(w.diagnostics),
		resolve.WithMaterializer(w.classpath),
	)
	return w, nil
}

// Load discovers every project, publishes all exports and then resolves
// each project in sorted order. A broken manifest does not stop the others.
func (w *Workspace) Load(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	projects, err := manifest.Discover(w.fsys, w.Config.Workspace.Manifest, w.Config.Workspace.Ignore)
	if err != nil {
		return fmt.Errorf("failed to discover projects: %w", err)
	}
	w.logger.Debug("discovered projects", "count", len(projects))

	var errs []error
	loaded := make([]resolve.ProjectID, 0, len(projects))
	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, locs, err := w.read(project)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		w.manifests[project] = m
		if _, err := w.coord.ResetExports(project, locs); err != nil {
			errs = append(errs, err)
		}
		loaded = append(loaded, project)
	}

	for _, project := range loaded {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.coord.Declare(project, w.manifests[project].Requirements()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sync applies changes to workspace-relative paths. Manifest changes reload
// their project; other paths count as content changes of the exports at
// those paths.
func (w *Workspace) Sync(ctx context.Context, paths []string) (SyncResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	byProject := make(map[resolve.ProjectID][]string)
	for _, p := range paths {
		project := manifest.ProjectOf(p)
		if project == "" {
			continue
		}
		byProject[project] = append(byProject[project], path.Clean(p))
	}

	var (
		res  SyncResult
		errs []error
	)
	for _, project := range slices.Sorted(maps.Keys(byProject)) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		changed := byProject[project]
		manifestPath := path.Join(string(project), w.Config.Workspace.Manifest)
		if slices.Contains(changed, manifestPath) {
			res.Reloaded = append(res.Reloaded, project)
		}
		affected, err := w.sync(project, slices.Contains(changed, manifestPath), changed)
		res.Affected = append(res.Affected, affected...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func (w *Workspace) sync(project resolve.ProjectID, reload bool, changed []string) ([]resolve.ProjectID, error) {
	prior, known := w.manifests[project]
	if !known && !reload {
		return nil, nil
	}

	m, locs, err := w.read(project)
	if errors.Is(err, fs.ErrNotExist) {
		if !known {
			return nil, nil
		}
		w.logger.Info("project removed", "project", project)
		delete(w.manifests, project)
		w.diagnostics.Forget(project)
		w.classpath.Forget(project)
		res, err := w.coord.Forget(project)
		return res.Affected, err
	}
	if err != nil {
		// The last good manifest stays in effect.
		return nil, err
	}
	w.manifests[project] = m

	var (
		affected []resolve.ProjectID
		errs     []error
	)
	res, err := w.coord.ResetExports(project, locs)
	affected = append(affected, res.Affected...)
	if err != nil {
		errs = append(errs, err)
	}

	// Exports whose identity did not move still changed on disk.
	touched := touchedExports(locs, changed, res)
	if len(touched) > 0 {
		res, err := w.coord.Apply(resolve.Batch{Project: project, Changed: touched})
		affected = append(affected, res.Affected...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	deps := m.Requirements()
	if !known || !slices.Equal(deps, prior.Requirements()) {
		w.logger.Debug("dependencies changed", "project", project, "dependencies", len(deps))
		if err := w.coord.Declare(project, deps); err != nil {
			errs = append(errs, err)
		}
		affected = append(affected, project)
	}
	return affected, errors.Join(errs...)
}

// read loads a project's manifest and expands its exports.
func (w *Workspace) read(project resolve.ProjectID) (*manifest.Manifest, []*resolve.Location, error) {
	m, err := manifest.Load(w.fsys, project, w.Config.Workspace.Manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("project %s: %w", project, err)
	}
	locs, err := m.Locations(w.fsys)
	if err != nil {
		return nil, nil, fmt.Errorf("project %s: %w", project, err)
	}
	return m, locs, nil
}

// touchedExports returns the locations at changed paths that ResetExports
// left alone.
func touchedExports(locs []*resolve.Location, changed []string, res resolve.Result) []*resolve.Location {
	handled := make(map[string]bool)
	for _, group := range [][]*resolve.Location{res.Added, res.Changed, res.Removed} {
		for _, loc := range group {
			handled[loc.Path] = true
		}
	}
	var touched []*resolve.Location
	for _, loc := range locs {
		if !handled[loc.Path] && slices.Contains(changed, loc.Path) {
			touched = append(touched, loc)
		}
	}
	return touched
}

// Coordinator returns the coordinator owning the workspace bindings.
func (w *Workspace) Coordinator() *resolve.Coordinator {
	return w.coord
}

// Classpath returns the materialized classpaths.
func (w *Workspace) Classpath() *Classpath {
	return w.classpath
}

// Diagnostics returns the latest problems per project.
func (w *Workspace) Diagnostics() *Diagnostics {
	return w.diagnostics
}

// Projects returns the loaded projects, sorted.
func (w *Workspace) Projects() []resolve.ProjectID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Sorted(maps.Keys(w.manifests))
}

// Manifest returns the manifest project was last loaded from.
func (w *Workspace) Manifest(project resolve.ProjectID) (*manifest.Manifest, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.manifests[project]
	return m, ok
}
