package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/daemon"
	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/watch"
	"github.com/albertocavalcante/wsbind/internal/log"
)

// daemonFlags are shared by every daemon subcommand.
type daemonFlags struct {
	socket string
}

func (d *daemonFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&d.socket, "socket", "",
		"Custom socket path (default: <workspace>/.wsbind/daemon.sock)")
}

// paths returns the daemon files for the session's workspace.
func (d *daemonFlags) paths(s *session) *daemon.Paths {
	if d.socket != "" {
		return daemon.SocketPaths(d.socket)
	}
	return daemon.WorkspacePaths(s.root)
}

func newDaemonCmd(g *globalFlags) *cobra.Command {
	d := &daemonFlags{}
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the wsbind daemon",
		Long: `Manage the wsbind background daemon.

The daemon keeps one workspace resolved and watched, and answers binding
queries over a Unix socket. Editors and scripts connect to it instead of
resolving the workspace themselves. Subscribed clients receive an event
after every batch of changes.

Examples:
  wsbind daemon start              # Start daemon in background
  wsbind daemon start --foreground # Run daemon in foreground (for debugging)
  wsbind daemon binding app        # Query the current bindings of app
  wsbind daemon stop               # Stop the daemon`,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	d.register(cmd.PersistentFlags())

	cmd.AddCommand(
		newDaemonStartCmd(g, d),
		newDaemonStopCmd(g, d),
		newDaemonStatusCmd(g, d),
		newDaemonRestartCmd(g, d),
		newDaemonSyncCmd(g, d),
		newDaemonBindingCmd(g, d),
	)
	return cmd
}

type daemonStartFlags struct {
	foreground bool
	logFile    string
	dryRun     bool
}

func newDaemonStartCmd(g *globalFlags, d *daemonFlags) *cobra.Command {
	f := &daemonStartFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon process",
		Long: `Start the wsbind daemon for the current workspace.

By default, the daemon runs in the background. Use --foreground to run
in the foreground for debugging.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.load(cmd)
			if err != nil {
				return err
			}
			paths := d.paths(s)

			status := daemon.GetStatus(paths)
			if status.Running {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon already running (PID: %d)\n", status.PID)
				return nil
			}
			if status.Stale {
				if _, err := daemon.CleanupStale(paths); err != nil {
					log.Component("cli").Warn("failed to clean up stale files", "error", err)
				}
			}

			if f.foreground {
				return runDaemonForeground(cmd, s, paths, f)
			}
			return runDaemonBackground(cmd.OutOrStdout(), s, d, paths, f)
		},
	}
	cmd.Flags().BoolVar(&f.foreground, "foreground", false, "Run in foreground (don't daemonize)")
	cmd.Flags().StringVar(&f.logFile, "log", "", "Log file path (default: next to the socket)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Resolve without writing classpath files")
	return cmd
}

// runDaemonForeground serves the workspace until shutdown.
func runDaemonForeground(cmd *cobra.Command, s *session, paths *daemon.Paths, f *daemonStartFlags) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting daemon in foreground (PID: %d)\n", os.Getpid())
	fmt.Fprintf(out, "Socket: %s\n", paths.Socket)
	fmt.Fprintln(out, "Press Ctrl+C to stop")
	fmt.Fprintln(out)

	logger := watch.NewLogger(watch.LoggerConfig{Writer: out, NoColor: true})
	var handler *daemon.Handler
	setup, err := startWatcher(cmd.Context(), s, logger, &watchFlags{dryRun: f.dryRun},
		func(e watch.SyncEvent) { handler.OnSync(e) })
	if err != nil {
		return err
	}
	handler = daemon.NewHandler(daemon.HandlerConfig{
		Workspace: setup.workspace,
		Tracker:   setup.tracker,
		Watcher:   setup.watcher,
	})

	server := daemon.NewServer(daemon.ServerConfig{
		Paths:   paths,
		Version: Version,
		Handler: handler,
	})
	return server.Start(cmd.Context())
}

// runDaemonBackground re-executes wsbind in foreground mode, detached.
func runDaemonBackground(out io.Writer, s *session, d *daemonFlags, paths *daemon.Paths, f *daemonStartFlags) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"daemon", "start", "--foreground", "--workspace", s.root}
	if d.socket != "" {
		args = append(args, "--socket", d.socket)
	}
	if f.dryRun {
		args = append(args, "--dry-run")
	}

	if err := paths.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create daemon directory: %w", err)
	}
	logPath := paths.Log
	if f.logFile != "" {
		logPath = f.logFile
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	proc := exec.Command(executable, args...)
	proc.Dir = s.root
	proc.Stdout = logFile
	proc.Stderr = logFile
	proc.SysProcAttr = detachedProcAttr()

	if err := proc.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	// The child keeps its own handle.
	_ = logFile.Close()
	_ = proc.Process.Release()

	if !waitFor(5*time.Second, func() bool { return daemon.IsRunningAt(paths) && socketReady(paths) }) {
		return fmt.Errorf("daemon failed to start (check %s for details)", logPath)
	}

	status := daemon.GetStatus(paths)
	fmt.Fprintf(out, "Daemon started (PID: %d)\n", status.PID)
	fmt.Fprintf(out, "Socket: %s\n", paths.Socket)
	fmt.Fprintf(out, "Log: %s\n", logPath)
	return nil
}

func socketReady(paths *daemon.Paths) bool {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return false
	}
	_ = client.Close()
	return true
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return cond()
}
