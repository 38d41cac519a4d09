package insight

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mickamy/scanprof/internal/analyzer"
	"github.com/mickamy/scanprof/internal/config"
)

// Severity expresses the urgency of an insight message.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message represents an actionable observation about a group.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
	Anchor   string   `json:"anchor,omitempty"`
}

// BuildMessages derives human-readable insight messages for an analyzed group.
func BuildMessages(analysis *analyzer.PlanAnalysis) []Message {
	if analysis == nil || analysis.Group == nil {
		return nil
	}
	var out []Message

	if msg := hotspotMessage(analysis); msg != nil {
		out = append(out, *msg)
	}
	if msg := fullscanMessage(analysis); msg != nil {
		out = append(out, *msg)
	}
	if msg := autoIndexMessage(analysis); msg != nil {
		out = append(out, *msg)
	}
	if msg := sortMessage(analysis); msg != nil {
		out = append(out, *msg)
	}
	if msg := reprepareMessage(analysis); msg != nil {
		out = append(out, *msg)
	}
	if msg := filterMessage(analysis); msg != nil {
		out = append(out, *msg)
	}

	return out
}

func hotspotMessage(analysis *analyzer.PlanAnalysis) *Message {
	if len(analysis.HotNodes) == 0 {
		return nil
	}
	cfg := config.Active().Insights
	hot := analysis.HotNodes[0]
	share := *hot.CyclePercent

	text := fmt.Sprintf("Hot spot: %s takes %.2f%% of cycles", CompactLabel(hot), share)
	if v, ok := hot.Node.Loops.Int64(); ok && v > 1 {
		text += fmt.Sprintf(" over %s loops", humanize.Comma(v))
	}
	if strings.HasPrefix(hot.Node.Explain, "SCAN ") {
		text += "; full scan, consider an index"
	}

	severity := SeverityInfo
	switch {
	case share >= cfg.HotspotCriticalPercent:
		severity = SeverityCritical
	case share >= cfg.HotspotWarningPercent:
		severity = SeverityWarning
	}
	return &Message{Severity: severity, Text: text, Anchor: AnchorID(hot)}
}

func fullscanMessage(analysis *analyzer.PlanAnalysis) *Message {
	stats := analysis.Group.Stats
	if stats.FullscanStep == 0 || stats.VMStep == 0 {
		return nil
	}
	cfg := config.Active().Insights
	ratio := float64(stats.FullscanStep) / float64(stats.VMStep)
	if ratio < cfg.FullscanWarningRatio {
		return nil
	}
	text := fmt.Sprintf("Full table scans account for %s of %s VM steps (%.0f%%)",
		humanize.Comma(stats.FullscanStep), humanize.Comma(stats.VMStep), ratio*100)
	return &Message{Severity: SeverityWarning, Text: text}
}

func autoIndexMessage(analysis *analyzer.PlanAnalysis) *Message {
	stats := analysis.Group.Stats
	cfg := config.Active().Insights
	if stats.AutoIndex == 0 || stats.AutoIndex < cfg.AutoIndexWarning {
		return nil
	}
	text := fmt.Sprintf("Automatic index built %s times; a permanent index would avoid the rebuild",
		humanize.Comma(stats.AutoIndex))
	return &Message{Severity: SeverityWarning, Text: text}
}

func sortMessage(analysis *analyzer.PlanAnalysis) *Message {
	stats := analysis.Group.Stats
	if stats.Sort == 0 {
		return nil
	}
	cfg := config.Active().Insights
	runs := max(stats.Run, 1)
	perRun := float64(stats.Sort) / float64(runs)
	if perRun < cfg.SortWarningPerRun {
		return nil
	}
	text := fmt.Sprintf("%s sort operations (%.1f per run); an index matching ORDER BY could remove them",
		humanize.Comma(stats.Sort), perRun)
	return &Message{Severity: SeverityInfo, Text: text}
}

func reprepareMessage(analysis *analyzer.PlanAnalysis) *Message {
	stats := analysis.Group.Stats
	cfg := config.Active().Insights
	if stats.Reprepare == 0 || stats.Reprepare < cfg.ReprepareWarning {
		return nil
	}
	text := fmt.Sprintf("Statement re-prepared %s times; schema changes or bound parameter changes invalidated it",
		humanize.Comma(stats.Reprepare))
	return &Message{Severity: SeverityWarning, Text: text}
}

func filterMessage(analysis *analyzer.PlanAnalysis) *Message {
	stats := analysis.Group.Stats
	total := stats.FilterHit + stats.FilterMiss
	if total == 0 {
		return nil
	}
	cfg := config.Active().Insights
	ratio := float64(stats.FilterMiss) / float64(total)
	if ratio < cfg.FilterMissWarningRatio {
		return nil
	}
	text := fmt.Sprintf("Bloom filter missed %.0f%% of %s probes", ratio*100, humanize.Comma(total))
	return &Message{Severity: SeverityInfo, Text: text}
}

// NodeLabel builds a descriptive label for a plan node.
func NodeLabel(node *analyzer.NodeStats) string {
	if node == nil {
		return ""
	}
	label := strings.TrimSpace(node.Node.Explain)
	if label == "" {
		label = node.Node.Name
	}
	return label
}

// CompactLabel shortens long labels for inline summaries.
func CompactLabel(node *analyzer.NodeStats) string {
	label := NodeLabel(node)
	if len(label) > 60 {
		return label[:57] + "..."
	}
	return label
}

// NormalizeWhitespace collapses whitespace for use in HTML or text.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// AnchorID derives a stable HTML anchor for a node.
func AnchorID(node *analyzer.NodeStats) string {
	if node == nil {
		return ""
	}
	return fmt.Sprintf("node-%d-%d", node.Node.SelectID, node.Node.Idx)
}
