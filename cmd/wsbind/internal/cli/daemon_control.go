package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/daemon"
)

// errShutdownTimeout is returned when the daemon ignores a shutdown request.
var errShutdownTimeout = errors.New("shutdown timed out")

func newDaemonStopCmd(g *globalFlags, d *daemonFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Stop the wsbind daemon.

By default, sends a graceful shutdown request via the socket. If the
daemon doesn't exit within 5 seconds, use --force to send SIGKILL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.load(cmd)
			if err != nil {
				return err
			}
			return stopDaemon(cmd.OutOrStdout(), d.paths(s), force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Force kill if graceful shutdown fails")
	return cmd
}

func stopDaemon(out io.Writer, paths *daemon.Paths, force bool) error {
	status := daemon.GetStatus(paths)
	if status.Stale {
		fmt.Fprintln(out, "Daemon not running (cleaning up stale files)")
		return paths.Cleanup()
	}
	if !status.Running {
		fmt.Fprintln(out, "Daemon not running")
		return nil
	}

	fmt.Fprintf(out, "Stopping daemon (PID: %d)...\n", status.PID)
	if err := requestShutdown(paths); err == nil {
		if waitForExit(status.PID, 5*time.Second) {
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		}
	}

	if !force {
		fmt.Fprintln(out, "Graceful shutdown timed out. Use --force to kill.")
		return errShutdownTimeout
	}

	fmt.Fprintln(out, "Forcing shutdown...")
	if err := daemon.KillProcess(status.PID); err != nil && daemon.IsProcessRunning(status.PID) {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	if !waitForExit(status.PID, 2*time.Second) {
		return fmt.Errorf("failed to stop daemon")
	}
	fmt.Fprintln(out, "Daemon stopped (forced)")
	return paths.Cleanup()
}

// requestShutdown asks the daemon to exit over its socket.
func requestShutdown(paths *daemon.Paths) error {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	_, err = client.Shutdown()
	return err
}

func waitForExit(pid int, timeout time.Duration) bool {
	return waitFor(timeout, func() bool { return !daemon.IsProcessRunning(pid) })
}

func newDaemonRestartCmd(g *globalFlags, d *daemonFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		Long: `Restart the wsbind daemon.

This is equivalent to running 'wsbind daemon stop' followed by
'wsbind daemon start'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.load(cmd)
			if err != nil {
				return err
			}
			paths := d.paths(s)
			if err := stopDaemon(cmd.OutOrStdout(), paths, force); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Starting daemon...")
			return runDaemonBackground(cmd.OutOrStdout(), s, d, paths, &daemonStartFlags{})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Force kill if graceful shutdown fails")
	return cmd
}

// DaemonStatusOutput is the JSON output format for daemon status.
type DaemonStatusOutput struct {
	Running    bool     `json:"running"`
	PID        int      `json:"pid,omitempty"`
	SocketPath string   `json:"socket_path"`
	Version    string   `json:"version,omitempty"`
	Uptime     string   `json:"uptime,omitempty"`
	StartTime  string   `json:"start_time,omitempty"`
	Root       string   `json:"root,omitempty"`
	Projects   []string `json:"projects,omitempty"`
	Problems   int      `json:"problems"`
	Watching   bool     `json:"watching"`
	LastSync   string   `json:"last_sync,omitempty"`
	Clients    int      `json:"connected_clients,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func newDaemonStatusCmd(g *globalFlags, d *daemonFlags) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Show whether the daemon is running, its PID, socket path and uptime,
and the workspace it serves.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.load(cmd)
			if err != nil {
				return err
			}
			paths := d.paths(s)
			status := daemon.GetStatus(paths)

			output := DaemonStatusOutput{
				Running:    status.Running,
				PID:        status.PID,
				SocketPath: paths.Socket,
			}
			if status.Running {
				if err := queryDaemonStatus(paths, &output); err != nil {
					output.Error = err.Error()
				}
			} else if status.Stale {
				output.Error = "stale PID file (daemon crashed)"
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), output)
			}
			printDaemonStatus(cmd.OutOrStdout(), output, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// queryDaemonStatus fills output from the running daemon.
func queryDaemonStatus(paths *daemon.Paths, output *DaemonStatusOutput) error {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = client.Close() }()

	ping, err := client.Ping()
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	output.Version = ping.Version
	output.Uptime = ping.Uptime
	output.StartTime = ping.StartTime

	st, err := client.Status()
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}
	output.Root = st.Root
	output.Projects = st.Projects
	output.Problems = st.Problems
	output.Watching = st.Watching
	output.LastSync = st.LastSync
	output.Clients = st.Clients
	return nil
}

func printDaemonStatus(out io.Writer, output DaemonStatusOutput, status *daemon.Status) {
	if !output.Running {
		fmt.Fprintln(out, "Daemon: not running")
		if status.Stale {
			fmt.Fprintf(out, "  (stale PID file found for PID %d)\n", status.PID)
			fmt.Fprintln(out, "  Run 'wsbind daemon start' to start the daemon")
		}
		return
	}

	fmt.Fprintf(out, "Daemon: running (PID: %d)\n", output.PID)
	fmt.Fprintf(out, "Socket: %s\n", output.SocketPath)
	if output.Version != "" {
		fmt.Fprintf(out, "Version: %s\n", output.Version)
	}
	if output.Uptime != "" {
		fmt.Fprintf(out, "Uptime: %s\n", formatUptime(output.Uptime))
	}
	if output.Root != "" {
		fmt.Fprintf(out, "Workspace: %s (%d projects, %s)\n", output.Root, len(output.Projects), plural(output.Problems, "problem"))
	}
	if output.Watching {
		fmt.Fprintln(out, "Watching: yes")
	} else {
		fmt.Fprintln(out, "Watching: no")
	}
	if output.LastSync != "" {
		fmt.Fprintf(out, "Last sync: %s\n", output.LastSync)
	}
	if output.Error != "" {
		fmt.Fprintf(out, "Warning: %s\n", output.Error)
	}
}

// formatUptime shortens a duration string for display.
func formatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}
