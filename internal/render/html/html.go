package html

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mickamy/scanprof/internal/analyzer"
	"github.com/mickamy/scanprof/internal/insight"
	"github.com/mickamy/scanprof/internal/report"
)

// Options configures the HTML renderer.
type Options struct {
	Title         string
	IncludeStyles bool
}

// Render writes an HTML report with one section per selected group.
func Render(w io.Writer, rep *report.Report, opts Options) error {
	if rep == nil {
		return fmt.Errorf("html render: empty report")
	}
	if opts.Title == "" {
		opts.Title = "scanprof report"
	}
	data := buildTemplateData(rep, opts)
	tpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return fmt.Errorf("html render: compile template: %w", err)
	}
	if err := tpl.Execute(w, data); err != nil {
		return fmt.Errorf("html render: execute template: %w", err)
	}
	return nil
}

type templateData struct {
	Title         string
	IncludeStyles bool
	Records       string
	Groups        string
	Rejected      int
	SortKey       string
	Selected      []groupView
}

type groupView struct {
	ID          string
	Query       string
	Fingerprint string
	Executions  string
	Took        string
	Stats       []statView
	Insights    []insightView
	HotNodes    []listView
	Roots       []*nodeView
	Unreachable int
}

type statView struct {
	Label string
	Value string
}

type listView struct {
	Label string
	Share string
	Extra string
}

type insightView struct {
	Icon     string
	Severity string
	Text     string
	Anchor   string
}

type nodeView struct {
	Label    string
	Anchor   string
	Share    string
	Visits   string
	BarWidth float64
	Heat     float64
	Counters string
	Children []*nodeView
}

func buildTemplateData(rep *report.Report, opts Options) templateData {
	data := templateData{
		Title:         opts.Title,
		IncludeStyles: opts.IncludeStyles,
		Records:       humanize.Comma(int64(rep.Records)),
		Groups:        humanize.Comma(int64(rep.Groups)),
		Rejected:      rep.Rejected,
		SortKey:       string(rep.SortKey),
	}
	for i := range rep.Selected {
		data.Selected = append(data.Selected, buildGroupView(i+1, &rep.Selected[i]))
	}
	return data
}

func buildGroupView(n int, g *report.GroupReport) groupView {
	prefix := fmt.Sprintf("g%d-", n)
	view := groupView{
		ID:          fmt.Sprintf("group-%d", n),
		Query:       g.Query,
		Fingerprint: g.Fingerprint,
		Executions:  humanize.Comma(int64(g.Executions)),
		Took:        fmt.Sprintf("%.6f s", g.TookSeconds),
		Stats:       buildStats(g),
		Unreachable: g.Unreachable,
	}

	for _, msg := range g.Insights {
		anchor := ""
		if msg.Anchor != "" {
			anchor = prefix + msg.Anchor
		}
		view.Insights = append(view.Insights, insightView{
			Icon:     severityIcon(msg.Severity),
			Severity: string(msg.Severity),
			Text:     msg.Text,
			Anchor:   anchor,
		})
	}

	if g.Analysis == nil {
		return view
	}
	for _, node := range g.Analysis.HotNodes {
		view.HotNodes = append(view.HotNodes, listView{
			Label: insight.NodeLabel(node),
			Share: formatPercent(node.CyclePercent),
			Extra: formatCounters(node),
		})
	}
	for _, root := range g.Analysis.Roots {
		view.Roots = append(view.Roots, buildNodeView(root, prefix))
	}
	return view
}

func buildStats(g *report.GroupReport) []statView {
	s := g.Stats
	return []statView{
		{"vm_step", humanize.Comma(s.VMStep)},
		{"ncycle", formatCounter(g.Totals.Cycles.Int64())},
		{"run", humanize.Comma(s.Run)},
		{"fullscan_step", humanize.Comma(s.FullscanStep)},
		{"sort", humanize.Comma(s.Sort)},
		{"autoindex", humanize.Comma(s.AutoIndex)},
		{"reprepare", humanize.Comma(s.Reprepare)},
		{"filter_miss", humanize.Comma(s.FilterMiss)},
		{"filter_hit", humanize.Comma(s.FilterHit)},
		{"nvisit", formatCounter(g.Totals.Visits.Int64())},
		{"est", formatCounter(g.Totals.Estimate.Int64())},
		{"nloop", formatCounter(g.Totals.Loops.Int64())},
		{"took", fmt.Sprintf("%.6f s", g.TookSeconds)},
	}
}

func buildNodeView(node *analyzer.NodeStats, prefix string) *nodeView {
	share := 0.0
	if node.CyclePercent != nil {
		share = *node.CyclePercent
	}
	view := &nodeView{
		Label:    insight.NodeLabel(node),
		Anchor:   prefix + insight.AnchorID(node),
		Share:    formatPercent(node.CyclePercent),
		Visits:   formatPercent(node.VisitPercent),
		BarWidth: math.Min(100, math.Max(0, share)),
		Heat:     clamp(share/100*2.5, 0, 1),
		Counters: formatCounters(node),
	}
	for _, child := range node.Children {
		view.Children = append(view.Children, buildNodeView(child, prefix))
	}
	return view
}

func formatPercent(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *p)
}

func formatCounter(v int64, ok bool) string {
	if !ok {
		return "-"
	}
	return humanize.Comma(v)
}

// formatCounters lists the reported node counters; unreported ones are left out.
func formatCounters(node *analyzer.NodeStats) string {
	var parts []string
	if v, ok := node.Node.Loops.Int64(); ok {
		parts = append(parts, "nloop="+humanize.Comma(v))
	}
	if v, ok := node.Node.Visits.Int64(); ok {
		parts = append(parts, "nvisit="+humanize.Comma(v))
	}
	if v, ok := node.Node.Cycles.Int64(); ok {
		parts = append(parts, "ncycle="+humanize.Comma(v))
	}
	if v, ok := node.Node.Estimate.Int64(); ok {
		parts = append(parts, "est="+humanize.Comma(v))
	}
	return strings.Join(parts, " ")
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
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

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	{{- if .IncludeStyles }}
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif; margin: 0; padding: 0; background: #f7f7f8; color: #202124; }
		main { max-width: 960px; margin: 0 auto; padding: 32px 24px 48px; }
		header { background: #212a3b; color: #f7f7f8; padding: 32px 24px; }
		header h1 { margin: 0 0 8px; font-size: 28px; }
		header p { margin: 4px 0; opacity: 0.8; }
		section { margin-top: 32px; }
		section h2 { margin-bottom: 12px; font-size: 20px; }
		.summary-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 12px; }
		.summary-tile { background: #fff; border-radius: 10px; padding: 16px; box-shadow: 0 6px 18px rgba(13,28,39,0.12); }
		.summary-tile strong { display: block; font-size: 14px; text-transform: uppercase; letter-spacing: 0.04em; color: #5b7083; margin-bottom: 6px; }
		.summary-tile span { font-size: 18px; font-weight: 600; }
		.flex-list { display: flex; flex-direction: column; gap: 10px; }
		.list-card { background: #fff; border-radius: 12px; padding: 16px; box-shadow: 0 4px 12px rgba(13,28,39,0.10); }
		.list-card header { display: flex; justify-content: space-between; align-items: baseline; }
		.list-card header h3 { margin: 0; font-size: 16px; color: #253043; }
		.list-card header span { font-size: 13px; color: #5b7083; }
		.list-card ul { list-style: none; padding: 0; margin: 12px 0 0; }
		.list-card li { display: grid; grid-template-columns: 1fr auto auto; gap: 12px; font-size: 14px; padding: 8px 0; border-bottom: 1px solid rgba(91,112,131,0.16); }
		.list-card li:last-child { border-bottom: none; }
		.plan-tree { list-style: none; margin: 0; padding: 0; }
		.plan-tree > li { margin-bottom: 12px; }
		.node-card { background: #fff; border-radius: 12px; margin-bottom: 12px; position: relative; padding: 16px 18px 14px 18px; box-shadow: 0 8px 20px rgba(16,37,58,0.12); border-left: 6px solid rgba(33,42,59,0.1); }
		.node-card::after { content: ""; position: absolute; inset: 0; border-radius: inherit; background: linear-gradient(90deg, rgba(244,71,71,var(--heat)) 0%, rgba(244,71,71,0) 72%); opacity: 0.35; pointer-events: none; }
		.node-header { position: relative; z-index: 1; display: flex; justify-content: space-between; gap: 12px; align-items: baseline; }
		.node-label { font-weight: 600; font-size: 15px; }
		.node-metrics { font-size: 13px; color: #5b7083; }
		.node-bar { position: relative; z-index: 1; margin-top: 10px; background: rgba(33,42,59,0.08); border-radius: 999px; height: 8px; overflow: hidden; }
		.node-bar span { display: block; height: 100%; border-radius: inherit; background: linear-gradient(90deg, #f44747 0%, #faae32 100%); width: calc(var(--width) * 1%); }
		.node-meta { position: relative; z-index: 1; margin-top: 10px; font-size: 13px; color: #364a63; display: flex; flex-wrap: wrap; gap: 12px 18px; }
		.node-warning { color: #b25600; font-weight: 600; }
		.query { background: #fff; border-radius: 10px; padding: 14px 16px; overflow-x: auto; font-size: 13px; box-shadow: 0 4px 12px rgba(13,28,39,0.10); white-space: pre-wrap; }
		.group { border-top: 2px solid rgba(33,42,59,0.12); padding-top: 8px; }
		.node-children { margin-left: 24px; border-left: 1px dashed rgba(33,42,59,0.15); padding-left: 20px; }
		.insight-list { list-style: none; margin: 0; padding: 0; display: flex; flex-direction: column; gap: 10px; }
		.insight-list li { background: #fff; border-radius: 12px; padding: 14px 16px; box-shadow: 0 4px 12px rgba(13,28,39,0.10); font-size: 14px; color: #253043; display: flex; align-items: center; gap: 10px; }
		.insight-list li span.icon { font-size: 18px; }
		.insight-list li span.insight-text a { color: inherit; text-decoration: none; position: relative; }
		.insight-list li span.insight-text a::after { content: ""; position: absolute; left: 0; bottom: -2px; width: 100%; height: 1px; background: currentColor; opacity: 0.35; transition: opacity 0.2s; }
		.insight-list li span.insight-text a:hover::after { opacity: 0.65; }
		.insight-list li.severity-critical { border-left: 4px solid #f44747; }
		.insight-list li.severity-warning { border-left: 4px solid #faae32; }
		.insight-list li.severity-info { border-left: 4px solid rgba(33,42,59,0.15); }
		@media (max-width: 640px) {
			main { padding: 24px 16px 32px; }
			.list-card li { grid-template-columns: 1fr auto; grid-template-areas: "label share" "extra extra"; }
			.list-card li span:nth-child(3) { grid-area: share; }
			.list-card li span:nth-child(4) { grid-area: extra; }
		}
	</style>
	{{- end }}
</head>
<body>
	<header>
		<h1>{{.Title}}</h1>
		<p>Records {{.Records}} · Groups {{.Groups}} · Rejected {{.Rejected}}</p>
		<p>Ranked by {{.SortKey}}</p>
	</header>
	<main>
		{{- range .Selected }}
		<section class="group" id="{{.ID}}">
			<h2>{{.Fingerprint}} · {{.Executions}} executions · {{.Took}}</h2>
			<pre class="query">{{.Query}}</pre>

			<div class="summary-grid">
				{{- range .Stats }}
				<div class="summary-tile">
					<strong>{{.Label}}</strong>
					<span>{{.Value}}</span>
				</div>
				{{- end }}
			</div>

			{{- if .Insights }}
			<h2>Insights</h2>
			<ul class="insight-list">
				{{- range .Insights }}
				<li class="severity-{{.Severity}}"><span class="icon">{{.Icon}}</span><span class="insight-text">
					{{- if .Anchor -}}
						<a href="#{{.Anchor}}">{{.Text}}</a>
					{{- else -}}
						{{.Text}}
					{{- end -}}
				</span></li>
				{{- end }}
			</ul>
			{{- end }}

			<div class="flex-list">
				<div class="list-card">
					<header>
						<h3>Hot nodes</h3>
						<span>Highest cycle share</span>
					</header>
					<ul>
						{{- if .HotNodes }}
							{{- range .HotNodes }}
							<li>
								<span>{{.Label}}</span>
								<span>{{.Share}}</span>
								<span>{{.Extra}}</span>
							</li>
							{{- end }}
						{{- else }}
							<li><span>No cycle counters reported</span></li>
						{{- end }}
					</ul>
				</div>
			</div>

			<h2>Plan Tree</h2>
			<ul class="plan-tree">
				{{- range .Roots }}
				{{ template "node" . }}
				{{- end }}
			</ul>
			{{- if .Unreachable }}
			<p class="node-warning">{{.Unreachable}} nodes unreachable from the root were dropped</p>
			{{- end }}
		</section>
		{{- end }}
	</main>

	{{ define "node" }}
	<li>
		<div class="node-card" id="{{.Anchor}}" style="--heat: {{printf "%.3f" .Heat}};">
		<div class="node-header">
			<span class="node-label">{{.Label}}</span>
			<span class="node-metrics">ncycle {{.Share}} · nvisit {{.Visits}}</span>
		</div>
			<div class="node-bar"><span style="--width: {{printf "%.2f" .BarWidth}};"></span></div>
			{{- if .Counters }}
			<div class="node-meta"><span>{{.Counters}}</span></div>
			{{- end }}
		</div>
		{{- if .Children }}
		<ul class="node-children">
			{{- range .Children }}
				{{ template "node" . }}
			{{- end }}
		</ul>
		{{- end }}
	</li>
	{{ end }}
</body>
</html>
`
