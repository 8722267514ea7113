package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/incremental"
	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/watch"
	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/workspace"
)

type watchFlags struct {
	debounce int
	verbose  bool
	json     bool
	noColor  bool
	dryRun   bool
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	f := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep bindings current as manifests and artifacts change",
		Long: `Resolves the workspace, then watches it and rebinds only the projects
affected by each batch of changes.

Changing a manifest republishes that project's exports and re-resolves its
dependencies. Rebuilding a tracked artifact republishes the export at that
path so every project bound to it is refreshed.

Example output:

  $ wsbind watch

  wsbind: watching 12 projects (31 tracked files) in /path/to/workspace

  [14:32:15] ~ util/bundle.yaml
  [14:32:15] syncing 1 path...
  [14:32:15] ✓ rebound app, web

Press Ctrl+C to stop watching.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, g, f)
		},
	}
	cmd.Flags().IntVar(&f.debounce, "debounce", 0,
		"Debounce window in milliseconds (default from config, 500)")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "Show file-level changes")
	cmd.Flags().BoolVar(&f.json, "json", false, "Stream JSON events (for tooling integration)")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Resolve without writing classpath files")
	return cmd
}

func runWatch(cmd *cobra.Command, g *globalFlags, f *watchFlags) error {
	s, err := g.load(cmd)
	if err != nil {
		return err
	}

	// Include SIGHUP to handle terminal hangup.
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	logger := watch.NewLogger(watch.LoggerConfig{
		Writer:  cmd.OutOrStdout(),
		Verbose: f.verbose,
		NoColor: f.noColor,
		JSON:    f.json,
	})
	setup, err := startWatcher(ctx, s, logger, f, nil)
	if err != nil {
		return err
	}
	defer func() { _ = setup.watcher.Close() }()

	return setup.watcher.Run(ctx)
}

// watchSetup is a loaded workspace with its tracker and watcher.
type watchSetup struct {
	workspace *workspace.Workspace
	tracker   *incremental.Tracker
	watcher   *watch.Watcher
}

// startWatcher loads the workspace with problems reported through logger,
// records the current state and builds a watcher ready to Run. onSync
// may be nil.
func startWatcher(ctx context.Context, s *session, logger *watch.Logger, f *watchFlags, onSync func(watch.SyncEvent)) (*watchSetup, error) {
	opts := []workspace.Option{workspace.WithDiagnostics(logger)}
	if f.dryRun {
		opts = append(opts, workspace.WithDryRun())
	}
	ws, loadErr := s.open(ctx, opts...)
	if ws == nil {
		return nil, loadErr
	}
	if loadErr != nil {
		logger.Error(loadErr)
	}

	tracker := s.tracker()
	if err := tracker.Refresh(ctx); err != nil {
		logger.Error(err)
	}

	debounce := s.cfg.Debounce()
	if f.debounce > 0 {
		debounce = time.Duration(f.debounce) * time.Millisecond
	}
	w, err := watch.New(watch.Config{
		Workspace: ws,
		Tracker:   tracker,
		Logger:    logger,
		Debounce:  debounce,
		OnSync:    onSync,
	})
	if err != nil {
		return nil, err
	}
	return &watchSetup{workspace: ws, tracker: tracker, watcher: w}, nil
}
