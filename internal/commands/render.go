package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/codescope/internal/daemon"
	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/pkg/types"
)

// Output formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ValidFormat reports whether f names an output format
func ValidFormat(f string) bool {
	return f == FormatJSON || f == FormatText
}

// palette holds the styles for one writer. Colors only appear when the
// writer is a terminal.
type palette struct {
	path  lipgloss.Style
	loc   lipgloss.Style
	dim   lipgloss.Style
	added lipgloss.Style
	gone  lipgloss.Style
	warn  lipgloss.Style
	err   lipgloss.Style
	title lipgloss.Style
}

func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		path:  r.NewStyle().Foreground(lipgloss.Color("111")),
		loc:   r.NewStyle().Foreground(lipgloss.Color("245")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("241")),
		added: r.NewStyle().Foreground(lipgloss.Color("78")),
		gone:  r.NewStyle().Foreground(lipgloss.Color("196")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("214")),
		err:   r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		title: r.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
	}
}

// Render writes a command result in the given format. Text output covers
// every result type the commands produce and falls back to JSON otherwise.
func Render(w io.Writer, format string, v any) error {
	if format != FormatText {
		return writeJSON(w, v)
	}
	p := newPalette(w)
	var b strings.Builder
	switch r := v.(type) {
	case []types.MatchResult:
		p.matches(&b, r)
	case *types.BlameRecord:
		p.blame(&b, r)
	case *types.Graph:
		p.graph(&b, r)
	case []types.Finding:
		p.findings(&b, r)
	case []types.Signature:
		p.signatures(&b, r)
	case *indexer.Statistics:
		p.stats(&b, r)
	case *daemon.Status:
		p.status(&b, r)
	case daemon.Status:
		p.status(&b, &r)
	default:
		return writeJSON(w, v)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError writes err with its taxonomy kind
func RenderError(w io.Writer, format string, err error) error {
	kind := types.ErrorKind(err)
	if format == FormatJSON {
		return writeJSON(w, map[string]any{
			"error": map[string]string{"kind": kind, "message": err.Error()},
		})
	}
	p := newPalette(w)
	_, werr := fmt.Fprintf(w, "%s %s: %s\n", p.err.Render("error:"), kind, err.Error())
	return werr
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p palette) matches(b *strings.Builder, ms []types.MatchResult) {
	if len(ms) == 0 {
		b.WriteString(p.dim.Render("no matches") + "\n")
		return
	}
	for _, m := range ms {
		loc := fmt.Sprintf(":%d:%d", m.Line, m.Column)
		fmt.Fprintf(b, "%s%s ", p.path.Render(m.File), p.loc.Render(loc))
		switch m.LineType {
		case "added":
			b.WriteString(p.added.Render("+") + " ")
		case "removed":
			b.WriteString(p.gone.Render("-") + " ")
		}
		if m.Symbol != nil {
			fmt.Fprintf(b, "%s %s ", m.Symbol.Kind, m.Symbol.Name)
		}
		fmt.Fprintf(b, "%s\n", p.dim.Render(fmt.Sprintf("[%s %.3f]", m.Engine, m.Score)))
		if text := strings.TrimSpace(m.Text); text != "" {
			for _, line := range strings.Split(text, "\n") {
				b.WriteString("    " + line + "\n")
			}
		}
	}
}

func (p palette) blame(b *strings.Builder, r *types.BlameRecord) {
	commit := r.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	fmt.Fprintf(b, "%s%s\n", p.path.Render(r.File), p.loc.Render(fmt.Sprintf(":%d", r.Line)))
	fmt.Fprintf(b, "commit  %s\n", p.warn.Render(commit))
	author := r.Author
	if r.AuthorMail != "" {
		author += " <" + r.AuthorMail + ">"
	}
	fmt.Fprintf(b, "author  %s\n", author)
	if !r.AuthorTime.IsZero() {
		fmt.Fprintf(b, "date    %s\n", r.AuthorTime.Format("2006-01-02 15:04:05 -0700"))
	}
	fmt.Fprintf(b, "summary %s\n", r.Summary)
	fmt.Fprintf(b, "    %s\n", r.Content)
}

func (p palette) graph(b *strings.Builder, g *types.Graph) {
	fmt.Fprintf(b, "%s %s\n", p.title.Render(string(g.Kind)+" graph"),
		p.dim.Render(fmt.Sprintf("(%d nodes, %d edges)", len(g.Nodes), len(g.Edges))))
	for _, n := range g.Nodes {
		if n.External {
			fmt.Fprintf(b, "  %s %s\n", p.dim.Render(n.Kind), n.Name)
			continue
		}
		loc := n.File
		if n.Line > 0 {
			loc += fmt.Sprintf(":%d", n.Line)
		}
		fmt.Fprintf(b, "  %s %s %s\n", p.dim.Render(n.Kind), n.Name, p.path.Render(loc))
	}
	if len(g.Edges) > 0 {
		b.WriteString(p.title.Render("edges") + "\n")
	}
	for _, e := range g.Edges {
		arrow := "->"
		if e.Kind == types.EdgeUnresolvedCall {
			arrow = p.warn.Render("-?")
		}
		fmt.Fprintf(b, "  %s %s %s", e.From, arrow, e.To)
		if e.Line > 0 {
			b.WriteString(p.loc.Render(fmt.Sprintf(" :%d", e.Line)))
		}
		b.WriteString("\n")
	}
	for _, c := range g.Cycles {
		fmt.Fprintf(b, "%s %s\n", p.gone.Render("cycle:"), strings.Join(c, " -> "))
	}
}

func (p palette) findings(b *strings.Builder, fs []types.Finding) {
	if len(fs) == 0 {
		b.WriteString(p.dim.Render("no findings") + "\n")
		return
	}
	for _, f := range fs {
		sev := p.dim
		switch f.Severity {
		case types.SeverityWarning:
			sev = p.warn
		case types.SeverityError:
			sev = p.gone
		}
		fmt.Fprintf(b, "%s%s %s %s %s: %s\n",
			p.path.Render(f.File), p.loc.Render(fmt.Sprintf(":%d", f.Span.StartLine)),
			sev.Render(string(f.Severity)), f.Rule, f.Symbol, f.Message)
	}
}

func (p palette) signatures(b *strings.Builder, sigs []types.Signature) {
	if len(sigs) == 0 {
		b.WriteString(p.dim.Render("no signatures") + "\n")
		return
	}
	for _, s := range sigs {
		fmt.Fprintf(b, "%s%s %s\n", p.path.Render(s.File), p.loc.Render(fmt.Sprintf(":%d", s.Line)), s.Text)
	}
}

func (p palette) stats(b *strings.Builder, s *indexer.Statistics) {
	fmt.Fprintf(b, "%s generation %d\n", p.title.Render("indexed"), s.Generation)
	fmt.Fprintf(b, "  files     %d indexed, %d skipped, %d removed, %d failed\n",
		s.FilesIndexed, s.FilesSkipped, s.FilesRemoved, s.FilesFailed)
	fmt.Fprintf(b, "  symbols   %d\n", s.SymbolsExtracted)
	if s.Duration > 0 {
		fmt.Fprintf(b, "  duration  %s\n", s.Duration)
	}
	for _, msg := range s.ErrorMessages {
		fmt.Fprintf(b, "  %s %s\n", p.warn.Render("error"), msg)
	}
}

func (p palette) status(b *strings.Builder, s *daemon.Status) {
	fmt.Fprintf(b, "%s %s\n", p.title.Render("daemon"), s.State)
	fmt.Fprintf(b, "  root        %s\n", p.path.Render(s.Root))
	fmt.Fprintf(b, "  addr        %s\n", s.Addr)
	fmt.Fprintf(b, "  generation  %d\n", s.Generation)
	fmt.Fprintf(b, "  files       %d\n", s.Files)
	fmt.Fprintf(b, "  symbols     %d\n", s.Symbols)
	if len(s.Languages) > 0 {
		fmt.Fprintf(b, "  languages   %s\n", strings.Join(s.Languages, ", "))
	}
	fmt.Fprintf(b, "  restarts    %d\n", s.Restarts)
	fmt.Fprintf(b, "  uptime      %.0fs\n", s.Uptime)
}
