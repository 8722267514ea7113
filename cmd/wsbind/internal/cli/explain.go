package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/workspace"
	"github.com/albertocavalcante/wsbind/internal/log"
	"github.com/albertocavalcante/wsbind/pkg/resolve"
)

type explainFlags struct {
	json    bool
	noColor bool
}

func newExplainCmd(g *globalFlags) *cobra.Command {
	f := &explainFlags{}
	cmd := &cobra.Command{
		Use:   "explain <project>",
		Short: "Explain why a project's dependencies are unresolved",
		Long: `Resolves the workspace without writing anything and lists, for each
unresolved dependency of the project, the candidates that matched its range
and why they were turned down.

A candidate is turned down when binding it would make the project depend
on itself through the bundles other projects already bound.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, g, f, resolve.ProjectID(args[0]))
		},
	}
	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	return cmd
}

func runExplain(cmd *cobra.Command, g *globalFlags, f *explainFlags, project resolve.ProjectID) error {
	s, err := g.load(cmd)
	if err != nil {
		return err
	}
	ws, loadErr := s.open(cmd.Context(), workspace.WithDryRun())
	if ws == nil {
		return loadErr
	}
	if loadErr != nil {
		log.Component("cli").Warn("some projects failed to load", "error", loadErr)
	}

	if _, ok := ws.Manifest(project); !ok {
		return fmt.Errorf("unknown project %q", project)
	}
	report := ws.Report(project)
	if f.json {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	newPrinter(cmd.OutOrStdout(), f.noColor).explain(report)
	return nil
}
