package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/engine/graph"
	"go.trai.ch/tern/internal/ui/output"
	"go.trai.ch/tern/internal/ui/style"
)

// List prints the resolved plan of the selected tests without running them.
func (a *App) List(_ context.Context, opts ListOptions) error {
	a.configureLogger(opts.Options)

	suite, err := a.load(opts.ConfigPath, opts.Patterns)
	if err != nil {
		return err
	}

	out := output.New(a.stdout)
	g := graph.Build(suite.Catalog)
	for n := range g.Nodes() {
		printNode(out, n)
	}

	excluded := len(g.Excluded())
	_, err = fmt.Fprintf(out, "\n%d tests, %d excluded\n", g.Len(), excluded)
	return err
}

func printNode(out *termenv.Output, n *graph.Node) {
	d := n.Descriptor
	icon := out.String(style.Dot).Foreground(out.Color(string(style.Iris)))
	var notes []string

	switch {
	case n.Verdict.Excluded:
		icon = out.String(style.Cross).Foreground(out.Color(string(style.Red)))
		note := "excluded: " + string(n.Verdict.Reason)
		if n.Verdict.Cause != nil {
			note += ": " + n.Verdict.Cause.Error()
		}
		notes = append(notes, note)
	case d.Skip != "":
		icon = out.String(style.Circle).Foreground(out.Color(string(style.Slate)))
		notes = append(notes, "skip: "+d.Skip)
	}

	if d.Constraint.Kind != domain.ConstraintNone {
		notes = append(notes, d.Constraint.String())
	}
	if d.Limiter != nil {
		notes = append(notes, fmt.Sprintf("limit(%s=%d)", d.Limiter.Name, d.Limiter.Limit))
	}
	if d.Priority != 0 {
		notes = append(notes, fmt.Sprintf("priority %d", d.Priority))
	}

	line := fmt.Sprintf("%s %s %s", icon, d.ID, out.String("("+d.Module.String()+"/"+d.Unit.String()+")").Faint())
	if len(notes) > 0 {
		line += " " + strings.Join(notes, ", ")
	}
	writeLine(out, line)

	for _, e := range n.Predecessors {
		kind := "after"
		switch {
		case e.Optional:
			kind = "after (optional)"
		case !e.Gating:
			kind = "after (proceed on failure)"
		}
		writeLine(out, fmt.Sprintf("    %s %s", out.String(kind).Faint(), e.To))
	}
}

func writeLine(w io.Writer, line string) {
	_, _ = io.WriteString(w, line+"\n")
}
