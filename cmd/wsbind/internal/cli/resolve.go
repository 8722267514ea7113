package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/workspace"
	"github.com/albertocavalcante/wsbind/internal/log"
)

// ErrUnresolved is returned by resolve --strict when a dependency is left
// unbound.
var ErrUnresolved = errors.New("unresolved dependencies")

type resolveFlags struct {
	json    bool
	dryRun  bool
	strict  bool
	noColor bool
}

// ResolveOutput is the JSON output format for wsbind resolve.
type ResolveOutput struct {
	Root     string                    `json:"root"`
	Projects []workspace.ProjectReport `json:"projects"`
	Problems int                       `json:"problems"`
	Errors   []string                  `json:"errors,omitempty"`
}

func newResolveCmd(g *globalFlags) *cobra.Command {
	f := &resolveFlags{}
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve every project and write classpath files",
		Long: `Resolves the dependencies of every project in the workspace.

Each dependency binds to the lowest version in range exported by another
project or a configured repository. Bound bundles are written to each
project's classpath file unless --dry-run is given.

The current manifests and artifacts are recorded so 'wsbind status' can
report what changed since.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResolve(cmd, g, f)
		},
	}
	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Resolve without writing classpath files or state")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Exit non-zero when a dependency is unresolved")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	return cmd
}

func runResolve(cmd *cobra.Command, g *globalFlags, f *resolveFlags) error {
	s, err := g.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var opts []workspace.Option
	if f.dryRun {
		opts = append(opts, workspace.WithDryRun())
	}
	ws, loadErr := s.open(ctx, opts...)
	if ws == nil {
		return loadErr
	}

	if !f.dryRun {
		if err := s.tracker().Refresh(ctx); err != nil {
			log.Component("cli").Warn("failed to record state", "error", err)
		}
	}

	reports := ws.Reports()
	problems := ws.Diagnostics().Count()

	if f.json {
		out := ResolveOutput{Root: s.root, Projects: reports, Problems: problems}
		for _, err := range unwrapJoined(loadErr) {
			out.Errors = append(out.Errors, err.Error())
		}
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		p := newPrinter(cmd.OutOrStdout(), f.noColor)
		for _, r := range reports {
			p.bindings(r)
		}
		p.printf("\nresolved %d projects, %s\n", len(reports), plural(problems, "problem"))
	}

	if loadErr != nil {
		return loadErr
	}
	if f.strict && problems > 0 {
		return fmt.Errorf("%w: %s", ErrUnresolved, plural(problems, "problem"))
	}
	return nil
}

// unwrapJoined flattens an errors.Join result.
func unwrapJoined(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
