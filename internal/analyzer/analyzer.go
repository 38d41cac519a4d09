package analyzer

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mickamy/scanprof/internal/aggregator"
	"github.com/mickamy/scanprof/internal/model"
)

// PlanAnalysis is the reconstructed, annotated plan of one group.
type PlanAnalysis struct {
	Group *aggregator.Group
	// Nodes holds the reachable nodes ordered by TraversalOrder.
	Nodes       []*NodeStats
	Roots       []*NodeStats
	NodeCount   int
	Unreachable int
	HotNodes    []*NodeStats
}

// NodeStats augments a merged plan node with its tree position and shares.
type NodeStats struct {
	Node           model.PlanNode
	Depth          int
	SiblingIndex   int
	TraversalOrder int
	CyclePercent   *float64
	VisitPercent   *float64
	Parent         *NodeStats
	Children       []*NodeStats
}

// Analyze reconstructs the plan of a merged group and computes node shares.
func Analyze(group *aggregator.Group) (*PlanAnalysis, error) {
	if group == nil {
		return nil, fmt.Errorf("analyze: missing group")
	}

	nodes, unreachable := Reconstruct(group.Nodes)
	Contribute(nodes, group.Totals)

	var roots []*NodeStats
	for _, n := range nodes {
		if n.Parent == nil {
			roots = append(roots, n)
		}
	}

	return &PlanAnalysis{
		Group:       group,
		Nodes:       nodes,
		Roots:       roots,
		NodeCount:   len(nodes),
		Unreachable: unreachable,
		HotNodes:    selectHotNodes(nodes),
	}, nil
}

// AnalyzeAll runs Analyze for every group on up to workers goroutines. The
// result is index-aligned with groups.
func AnalyzeAll(ctx context.Context, groups []*aggregator.Group, workers int) ([]*PlanAnalysis, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]*PlanAnalysis, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, group := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			analysis, err := Analyze(group)
			if err != nil {
				return err
			}
			out[i] = analysis
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func selectHotNodes(nodes []*NodeStats) []*NodeStats {
	candidates := make([]*NodeStats, 0, len(nodes))
	for _, n := range nodes {
		if n.CyclePercent != nil && *n.CyclePercent > 0 {
			candidates = append(candidates, n)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return *candidates[i].CyclePercent > *candidates[j].CyclePercent
	})

	limit := 5
	if len(candidates) < limit {
		limit = len(candidates)
	}
	return candidates[:limit]
}
