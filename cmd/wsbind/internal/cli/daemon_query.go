package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/daemon"
)

// connectDaemon connects to the daemon serving the session's workspace.
func connectDaemon(cmd *cobra.Command, g *globalFlags, d *daemonFlags) (*daemon.Client, error) {
	s, err := g.load(cmd)
	if err != nil {
		return nil, err
	}
	client, err := daemon.Connect(d.paths(s).Socket)
	if errors.Is(err, daemon.ErrDaemonNotRunning) {
		return nil, fmt.Errorf("%w (start it with 'wsbind daemon start')", err)
	}
	return client, err
}

func newDaemonSyncCmd(g *globalFlags, d *daemonFlags) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "sync [path...]",
		Short: "Apply changed paths through the daemon",
		Long: `Asks the daemon to apply changes now instead of waiting for its watcher.

Paths are workspace-relative. Without paths the daemon applies every
manifest and tracked artifact that changed since its last sync.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connectDaemon(cmd, g, d)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			result, err := client.Sync(args)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Applied %s in %s\n", plural(len(result.Paths), "path"), result.Duration)
			if len(result.Affected) == 0 {
				fmt.Fprintln(out, "No bindings changed")
			} else {
				fmt.Fprintf(out, "Rebound %s\n", strings.Join(result.Affected, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newDaemonBindingCmd(g *globalFlags, d *daemonFlags) *cobra.Command {
	var (
		jsonOutput bool
		noColor    bool
	)
	cmd := &cobra.Command{
		Use:   "binding <project>",
		Short: "Show a project's current bindings from the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connectDaemon(cmd, g, d)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			report, err := client.Binding(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			newPrinter(cmd.OutOrStdout(), noColor).bindings(*report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}
