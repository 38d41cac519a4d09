// Package report runs the aggregation pipeline and assembles the typed,
// ordered result consumed by renderers.
package report

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mickamy/scanprof/internal/aggregator"
	"github.com/mickamy/scanprof/internal/analyzer"
	"github.com/mickamy/scanprof/internal/insight"
	"github.com/mickamy/scanprof/internal/model"
	"github.com/mickamy/scanprof/internal/rank"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures Build.
type Options struct {
	Rank    rank.Options
	Workers int
	Logger  *zap.Logger
}

// Report is the outcome of one analysis run.
type Report struct {
	Records  int           `json:"records"`
	Groups   int           `json:"groups"`
	Rejected int           `json:"rejected"`
	SortKey  rank.SortKey  `json:"sort_key"`
	Selected []GroupReport `json:"selected"`
}

// GroupReport is one selected group with its reconstructed plan.
type GroupReport struct {
	Query       string            `json:"query"`
	Fingerprint string            `json:"fingerprint"`
	Executions  int               `json:"executions"`
	Stats       model.Stats       `json:"stats"`
	Totals      aggregator.Totals `json:"totals"`
	TookSeconds float64           `json:"took_seconds"`
	Nodes       []NodeReport      `json:"nodes"`
	Unreachable int               `json:"unreachable"`
	Insights    []insight.Message `json:"insights,omitempty"`

	Analysis *analyzer.PlanAnalysis `json:"-"`
}

// NodeReport is one plan node in display order.
type NodeReport struct {
	Idx            int           `json:"idx"`
	SelectID       int           `json:"selectid"`
	ParentID       int           `json:"parentid"`
	Name           string        `json:"name"`
	Explain        string        `json:"explain"`
	Depth          int           `json:"depth"`
	SiblingIndex   int           `json:"sibling_index"`
	TraversalOrder int           `json:"traversal_order"`
	Loops          model.Counter `json:"nloop"`
	Visits         model.Counter `json:"nvisit"`
	Cycles         model.Counter `json:"ncycle"`
	Estimate       model.Counter `json:"est"`
	CyclePercent   *float64      `json:"ncycle_percent"`
	VisitPercent   *float64      `json:"nvisit_percent"`
}

// Build aggregates records, selects groups and analyzes the selection. Only
// selected groups get a reconstructed plan. It returns aggregator.ErrNoData
// (wrapped) when nothing could be grouped.
func Build(ctx context.Context, records []model.ExecutionRecord, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	result, err := aggregator.Aggregate(ctx, records, aggregator.Options{Workers: opts.Workers, Logger: logger})
	if err != nil {
		return nil, err
	}

	selected, err := rank.Select(result.Groups, opts.Rank)
	if err != nil {
		return nil, err
	}

	analyses, err := analyzer.AnalyzeAll(ctx, selected, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("report: analyze: %w", err)
	}

	key := opts.Rank.Key
	if key == "" {
		key = rank.KeyVMStep
	}
	rep := &Report{
		Records:  result.Records,
		Groups:   len(result.Groups),
		Rejected: result.Rejected,
		SortKey:  key,
		Selected: make([]GroupReport, 0, len(analyses)),
	}
	for _, analysis := range analyses {
		rep.Selected = append(rep.Selected, groupReport(analysis))
	}

	logger.Info("report built",
		zap.Int("records", rep.Records),
		zap.Int("groups", rep.Groups),
		zap.Int("selected", len(rep.Selected)),
		zap.Int("rejected", rep.Rejected),
	)
	return rep, nil
}

func groupReport(analysis *analyzer.PlanAnalysis) GroupReport {
	g := analysis.Group
	nodes := make([]NodeReport, 0, len(analysis.Nodes))
	for _, n := range analysis.Nodes {
		nodes = append(nodes, NodeReport{
			Idx:            n.Node.Idx,
			SelectID:       n.Node.SelectID,
			ParentID:       n.Node.ParentID,
			Name:           n.Node.Name,
			Explain:        n.Node.Explain,
			Depth:          n.Depth,
			SiblingIndex:   n.SiblingIndex,
			TraversalOrder: n.TraversalOrder,
			Loops:          n.Node.Loops,
			Visits:         n.Node.Visits,
			Cycles:         n.Node.Cycles,
			Estimate:       n.Node.Estimate,
			CyclePercent:   n.CyclePercent,
			VisitPercent:   n.VisitPercent,
		})
	}
	return GroupReport{
		Query:       g.Key.Query,
		Fingerprint: g.Key.Fingerprint.String(),
		Executions:  g.Executions,
		Stats:       g.Stats,
		Totals:      g.Totals,
		TookSeconds: g.Stats.TookSeconds(),
		Nodes:       nodes,
		Unreachable: analysis.Unreachable,
		Insights:    insight.BuildMessages(analysis),
		Analysis:    analysis,
	}
}

// JSON returns the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
