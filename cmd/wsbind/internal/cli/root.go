// Package cli implements the wsbind command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/incremental"
	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/workspace"
	"github.com/albertocavalcante/wsbind/internal/log"
	"github.com/albertocavalcante/wsbind/pkg/config"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands.
type globalFlags struct {
	verbosity int
	logFormat string
	dir       string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "wsbind",
		Short: "Workspace bundle dependency resolver",
		Long: `wsbind binds each project's bundle dependencies to the lowest matching
version exported by the workspace or a prebuilt repository, and keeps the
bindings current as manifests and artifacts change.

Use 'wsbind resolve' for a one-shot resolution and 'wsbind watch' to stay
in sync.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initLogging(cmd, g.verbosity, g.logFormat)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addGlobalFlags(root.PersistentFlags(), g)

	root.AddCommand(
		newVersionCmd(),
		newResolveCmd(g),
		newStatusCmd(g),
		newWatchCmd(g),
		newExplainCmd(g),
		newDaemonCmd(g),
	)
	return root
}

func addGlobalFlags(fs *pflag.FlagSet, g *globalFlags) {
	fs.IntVarP(&g.verbosity, "verbosity", "v", 1,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	fs.StringVar(&g.logFormat, "log-format", "text",
		"Log format (text, json)")
	fs.StringVarP(&g.dir, "workspace", "C", "",
		"Workspace root (default: nearest directory with wsbind config or a VCS marker)")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wsbind %s (%s)\n", Version, GitCommit)
		},
	}
}

// initLogging applies CLI flags to the logger. Logs go to the command's
// stderr so stdout stays machine-readable.
func initLogging(cmd *cobra.Command, verbosity int, format string) {
	log.Configure(log.Options{
		Verbosity: verbosity,
		Format:    format,
		Output:    cmd.ErrOrStderr(),
	})
}

// session is the resolved root and configuration for one command run.
type session struct {
	root string
	cfg  *config.Config
}

// load finds the workspace root, reads its configuration and lets config
// log settings apply where the flags were left at their defaults.
func (g *globalFlags) load(cmd *cobra.Command) (*session, error) {
	root := g.dir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		root = config.FindRoot(wd)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace must be a directory: %s", root)
	}

	cfg, err := config.LoadFrom(root)
	if err != nil {
		return nil, err
	}

	verbosity, format := g.verbosity, g.logFormat
	flags := cmd.Flags()
	if !flags.Changed("verbosity") && cfg.Log.Verbosity != nil {
		verbosity = *cfg.Log.Verbosity
	}
	if !flags.Changed("log-format") && cfg.Log.Format != "" {
		format = cfg.Log.Format
	}
	initLogging(cmd, verbosity, format)

	log.Component("cli").Debug("loaded configuration", "root", root, "repositories", len(cfg.Repositories))
	return &session{root: root, cfg: cfg}, nil
}

// open loads every project of the workspace. Manifests that fail to load
// are reported in the error while the returned workspace holds the rest; a
// nil workspace means nothing could be loaded.
func (s *session) open(ctx context.Context, opts ...workspace.Option) (*workspace.Workspace, error) {
	ws, err := workspace.Open(s.root, s.cfg, opts...)
	if err != nil {
		return nil, err
	}
	return ws, ws.Load(ctx)
}

func (s *session) tracker() *incremental.Tracker {
	wcfg := s.cfg.Workspace
	return incremental.NewTracker(s.root, incremental.NewMatcher(wcfg.Manifest, wcfg.Track, wcfg.Ignore))
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
