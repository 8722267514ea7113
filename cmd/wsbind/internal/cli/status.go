package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type statusFlags struct {
	verbose bool
	json    bool
}

// StatusOutput is the JSON output format for wsbind status.
type StatusOutput struct {
	Stale         bool     `json:"stale"`
	Projects      []string `json:"projects"`
	NewFiles      []string `json:"new_files,omitempty"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
	DeletedFiles  []string `json:"deleted_files,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	f := &statusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which projects changed since the last resolve",
		Long: `Compares manifests and tracked artifacts against the state recorded by
the last 'wsbind resolve' and lists the projects whose exports or
dependencies may have changed.

The --verbose flag shows individual file changes (new, modified, deleted).
The --json flag outputs the result as JSON for scripting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, g, f)
		},
	}
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "Show individual file changes")
	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, g *globalFlags, f *statusFlags) error {
	s, err := g.load(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	tracker := s.tracker()

	if !tracker.HasState() {
		if f.json {
			return writeJSON(out, StatusOutput{Stale: true, Projects: []string{}, Error: "no state found"})
		}
		fmt.Fprintln(out, "No state found. Run 'wsbind resolve' to record the initial state.")
		return nil
	}

	cs, err := tracker.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to detect changes: %w", err)
	}
	projects := make([]string, 0)
	for _, p := range cs.Projects() {
		projects = append(projects, string(p))
	}

	if f.json {
		return writeJSON(out, StatusOutput{
			Stale:         !cs.IsEmpty(),
			Projects:      projects,
			NewFiles:      cs.Added,
			ModifiedFiles: cs.Modified,
			DeletedFiles:  cs.Deleted,
		})
	}

	if cs.IsEmpty() {
		fmt.Fprintln(out, "Bindings are up to date")
		return nil
	}

	fmt.Fprintf(out, "Changed projects (%d):\n", len(projects))
	for _, p := range projects {
		fmt.Fprintf(out, "  %s\n", p)
	}

	if f.verbose {
		for _, group := range []struct {
			title string
			mark  string
			files []string
		}{
			{"New files", "+", cs.Added},
			{"Modified files", "~", cs.Modified},
			{"Deleted files", "-", cs.Deleted},
		} {
			if len(group.files) == 0 {
				continue
			}
			fmt.Fprintf(out, "\n%s (%d):\n", group.title, len(group.files))
			for _, file := range group.files {
				fmt.Fprintf(out, "  %s %s\n", group.mark, file)
			}
		}
	}

	fmt.Fprintln(out, "\nRun 'wsbind resolve' to rebind changed projects")
	return nil
}
