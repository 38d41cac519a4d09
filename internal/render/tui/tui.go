package tui

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"

	"github.com/mickamy/scanprof/internal/analyzer"
	"github.com/mickamy/scanprof/internal/insight"
	"github.com/mickamy/scanprof/internal/report"
)

// Options controls how the TUI renderer behaves.
type Options struct {
	EnableColor bool
	// MaxDepth is the number of plan levels shown; 1 keeps only first-level
	// nodes and 0 shows every level.
	MaxDepth int
	BarWidth int
	// Indent is repeated once per depth level in the plan column.
	Indent string
}

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	cell     lipgloss.Style
	muted    lipgloss.Style
	critical lipgloss.Style
	warning  lipgloss.Style
	notice   lipgloss.Style
}

func newStyles(w io.Writer, color bool) styles {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return styles{
		title:    r.NewStyle().Bold(true),
		header:   r.NewStyle().Bold(true).Padding(0, 1),
		cell:     r.NewStyle().Padding(0, 1),
		muted:    r.NewStyle().Faint(true),
		critical: r.NewStyle().Foreground(lipgloss.Color("1")),
		warning:  r.NewStyle().Foreground(lipgloss.Color("3")),
		notice:   r.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

// Render prints every selected group: its statement, summed statistics,
// insights and the plan tree annotated with cycle and visit shares.
func Render(w io.Writer, rep *report.Report, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if rep == nil {
		return errors.New("tui: empty report")
	}

	if opts.BarWidth <= 0 {
		opts.BarWidth = 20
	}
	if opts.Indent == "" {
		opts.Indent = "  "
	}
	st := newStyles(w, opts.EnableColor)

	_, _ = fmt.Fprintf(w, "Records %s | Groups %s | Selected %d | Rejected %d | Sort %s\n",
		humanize.Comma(int64(rep.Records)), humanize.Comma(int64(rep.Groups)),
		len(rep.Selected), rep.Rejected, rep.SortKey)

	for i := range rep.Selected {
		_, _ = fmt.Fprintln(w)
		renderGroup(w, i+1, &rep.Selected[i], st, opts)
	}
	return nil
}

func renderGroup(w io.Writer, n int, g *report.GroupReport, st styles, opts Options) {
	title := fmt.Sprintf("#%d  %s  (%s executions, %.6fs)", n, g.Fingerprint,
		humanize.Comma(int64(g.Executions)), g.TookSeconds)
	_, _ = fmt.Fprintln(w, st.title.Render(title))

	renderQuery(w, g.Query, opts.EnableColor)
	_, _ = fmt.Fprintln(w, statsTable(g, st))
	renderInsights(w, g.Insights, st)

	if len(g.Nodes) == 0 {
		_, _ = fmt.Fprintln(w, st.muted.Render("(no plan nodes)"))
		return
	}
	rows, hidden := planRows(g, opts)
	_, _ = fmt.Fprintln(w, planTable(rows, st))
	if hidden > 0 {
		_, _ = fmt.Fprintln(w, st.muted.Render(fmt.Sprintf("... %d nodes below level %d hidden", hidden, opts.MaxDepth)))
	}
	if g.Unreachable > 0 {
		_, _ = fmt.Fprintln(w, st.warning.Render(fmt.Sprintf("%d nodes unreachable from the root were dropped", g.Unreachable)))
	}
}

func renderQuery(w io.Writer, query string, color bool) {
	if color {
		if err := quick.Highlight(w, query, "sql", "terminal256", "monokai"); err == nil {
			_, _ = fmt.Fprintln(w)
			return
		}
	}
	_, _ = fmt.Fprintln(w, query)
}

func statsTable(g *report.GroupReport, st styles) string {
	s := g.Stats
	rows := [][]string{
		{"sum(vm_step)", humanize.Comma(s.VMStep)},
		{"sum(ncycle)", counterText(g.Totals.Cycles.Int64())},
		{"sum(run)", humanize.Comma(s.Run)},
		{"sum(fullscan_step)", humanize.Comma(s.FullscanStep)},
		{"sum(sort)", humanize.Comma(s.Sort)},
		{"sum(autoindex)", humanize.Comma(s.AutoIndex)},
		{"sum(reprepare)", humanize.Comma(s.Reprepare)},
		{"sum(filter_miss)", humanize.Comma(s.FilterMiss)},
		{"sum(filter_hit)", humanize.Comma(s.FilterHit)},
		{"sum(nvisit)", counterText(g.Totals.Visits.Int64())},
		{"sum(est)", counterText(g.Totals.Estimate.Int64())},
		{"sum(nloop)", counterText(g.Totals.Loops.Int64())},
		{"sum(took_seconds)", fmt.Sprintf("%.6f", g.TookSeconds)},
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.muted).
		Headers("stat", "value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := st.cell
			if row == table.HeaderRow {
				style = st.header
			}
			if col == 1 {
				style = style.Align(lipgloss.Right)
			}
			return style
		})
	return t.String()
}

type planRow struct {
	cycle string
	visit string
	bar   string
	share float64
	plan  string
}

func planRows(g *report.GroupReport, opts Options) ([]planRow, int) {
	rows := make([]planRow, 0, len(g.Nodes))
	hidden := 0
	for _, node := range g.Nodes {
		if opts.MaxDepth > 0 && node.Depth >= opts.MaxDepth {
			hidden++
			continue
		}
		share := 0.0
		if node.CyclePercent != nil {
			share = *node.CyclePercent
		}
		rows = append(rows, planRow{
			cycle: percentText(node.CyclePercent),
			visit: percentText(node.VisitPercent),
			bar:   drawBar(share/100, opts.BarWidth),
			share: share,
			plan:  analyzer.Indent(node.Depth, opts.Indent) + planText(node),
		})
	}
	return rows, hidden
}

func planTable(rows []planRow, st styles) string {
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{r.cycle, r.visit, r.bar, r.plan})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.muted).
		Headers("ncycle%", "nvisit%", "cycles", "plan").
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.header
			}
			style := st.cell
			switch col {
			case 0, 1:
				style = style.Align(lipgloss.Right)
			case 2:
				if row >= 0 && row < len(rows) {
					style = shareStyle(st, rows[row].share)
				}
			}
			return style
		})
	return t.String()
}

// planText renders the node's detail and appends only the counters that were
// reported; a counter that was never reported is omitted instead of shown as 0.
func planText(node report.NodeReport) string {
	label := insight.NormalizeWhitespace(node.Explain)
	if label == "" {
		label = node.Name
	}
	var details []string
	if v, ok := node.Loops.Int64(); ok {
		details = append(details, "nloop="+humanize.Comma(v))
	}
	if v, ok := node.Visits.Int64(); ok {
		details = append(details, "nvisit="+humanize.Comma(v))
	}
	if v, ok := node.Estimate.Int64(); ok {
		details = append(details, "est="+humanize.Comma(v))
	}
	if len(details) == 0 {
		return label
	}
	return label + "  " + strings.Join(details, " ")
}

func counterText(v int64, ok bool) string {
	if !ok {
		return "-"
	}
	return humanize.Comma(v)
}

func percentText(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *p)
}

func renderInsights(w io.Writer, messages []insight.Message, st styles) {
	if len(messages) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "Insights:")
	for _, msg := range messages {
		icon := severityIcon(msg.Severity)
		text := msg.Text
		switch msg.Severity {
		case insight.SeverityCritical:
			text = st.critical.Render(text)
		case insight.SeverityWarning:
			text = st.warning.Render(text)
		}
		_, _ = fmt.Fprintf(w, "  - %s %s\n", icon, text)
	}
}

func drawBar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	clamped := math.Max(0, math.Min(1, ratio))
	fill := int(math.Round(clamped * float64(width)))
	if clamped > 0 && fill == 0 {
		fill = 1
	}
	return strings.Repeat("#", fill) + strings.Repeat("-", width-fill)
}

func shareStyle(st styles, percent float64) lipgloss.Style {
	switch {
	case percent >= 40:
		return st.critical.Padding(0, 1)
	case percent >= 20:
		return st.warning.Padding(0, 1)
	case percent >= 10:
		return st.notice.Padding(0, 1)
	default:
		return st.cell
	}
}

func severityIcon(sev insight.Severity) string {
	switch sev {
	case insight.SeverityCritical:
		return "🔥"
	case insight.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
