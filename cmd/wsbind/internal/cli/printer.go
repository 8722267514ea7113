package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/albertocavalcante/wsbind/cmd/wsbind/internal/workspace"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

// printer writes human-readable reports, colored only on a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer, noColor bool) *printer {
	color := false
	if f, ok := w.(*os.File); ok && !noColor && os.Getenv("NO_COLOR") == "" {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &printer{w: w, color: color}
}

func (p *printer) paint(color, s string) string {
	if !p.color {
		return s
	}
	return color + s + colorReset
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

// bindings prints one project's bound bundles followed by its problems.
func (p *printer) bindings(r workspace.ProjectReport) {
	p.printf("%s\n", r.Project)
	if len(r.Bindings) == 0 && len(r.Problems) == 0 {
		p.printf("  %s\n", p.paint(colorDim, "(no dependencies)"))
		return
	}
	for _, b := range r.Bindings {
		p.printf("  %s %s -> %s %s %s\n",
			p.paint(colorGreen, "✓"), b.Dependency, b.Bundle, b.Version,
			p.paint(colorDim, "("+origin(b)+")"))
	}
	for _, pr := range r.Problems {
		p.printf("  %s %s: %s\n", p.paint(colorRed, "✗"), pr.Dependency, pr.Message)
	}
}

// explain prints why each unresolved dependency of a project failed.
func (p *printer) explain(r workspace.ProjectReport) {
	if len(r.Problems) == 0 {
		p.printf("%s: all %d dependencies bound\n", r.Project, len(r.Bindings))
		return
	}
	p.printf("%s: %d unresolved\n", r.Project, len(r.Problems))
	for _, pr := range r.Problems {
		p.printf("\n  %s\n", p.paint(colorRed, pr.Dependency))
		p.printf("    %s\n", pr.Message)
		for _, rej := range pr.Rejections {
			reason := rej.Reason
			if rej.Cycle {
				reason = p.paint(colorYellow, reason)
			}
			p.printf("    - %s at %s: %s\n", rej.Bundle, rej.Path, reason)
		}
	}
}

// origin names where a bound bundle comes from.
func origin(b workspace.BoundBundle) string {
	if b.Source != "" {
		return b.Path + ", project " + b.Source
	}
	return b.Path + ", " + b.Repository
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
