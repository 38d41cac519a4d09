package analyzer

import (
	"math"

	"github.com/mickamy/scanprof/internal/aggregator"
	"github.com/mickamy/scanprof/internal/model"
)

// Contribute sets each node's share of the group-wide cycle and visit totals.
// Shares are taken against the whole group, not the parent subtree, and are left
// nil when the node did not report the counter or the total is zero.
func Contribute(nodes []*NodeStats, totals aggregator.Totals) {
	for _, n := range nodes {
		n.CyclePercent = share(n.Node.Cycles, totals.Cycles)
		n.VisitPercent = share(n.Node.Visits, totals.Visits)
	}
}

func share(v, total model.Counter) *float64 {
	if !v.Valid || !total.Valid || total.Value == 0 {
		return nil
	}
	p := math.Round(100*float64(v.Value)/float64(total.Value)*100) / 100
	return &p
}
