// Package rank selects and orders groups for display.
package rank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mickamy/scanprof/internal/aggregator"
)

// SortKey names the group figure used for ranking.
type SortKey string

const (
	KeyVMStep       SortKey = "vm_step"
	KeyTook         SortKey = "took"
	KeyRun          SortKey = "run"
	KeyExecutions   SortKey = "executions"
	KeyFullscanStep SortKey = "fullscan_step"
	KeySort         SortKey = "sort"
	KeyAutoIndex    SortKey = "autoindex"
	KeyReprepare    SortKey = "reprepare"
	KeyFilterMiss   SortKey = "filter_miss"
	KeyFilterHit    SortKey = "filter_hit"
	KeyMemUsed      SortKey = "memused"
	KeyLoops        SortKey = "nloop"
	KeyVisits       SortKey = "nvisit"
	KeyCycles       SortKey = "ncycle"
	KeyEstimate     SortKey = "est"
)

// Keys lists every supported sort key.
var Keys = []SortKey{
	KeyVMStep, KeyTook, KeyRun, KeyExecutions, KeyFullscanStep, KeySort, KeyAutoIndex,
	KeyReprepare, KeyFilterMiss, KeyFilterHit, KeyMemUsed, KeyLoops, KeyVisits, KeyCycles, KeyEstimate,
}

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Options configures Select.
type Options struct {
	Key SortKey
	// Limit caps the number of selected groups; <= 0 keeps all.
	Limit int
	// Order picks which end of the ranking is kept.
	Order Order
	// Display is the order of the returned groups.
	Display Order
}

// ParseKey validates a sort key name.
func ParseKey(s string) (SortKey, error) {
	key := SortKey(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Keys {
		if k == key {
			return key, nil
		}
	}
	return "", fmt.Errorf("rank: unknown sort key %q", s)
}

// ParseOrder validates a sort direction.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case Asc, Desc:
		return o, nil
	default:
		return "", fmt.Errorf("rank: unknown order %q (expected asc or desc)", s)
	}
}

// Value extracts the ranking figure of g. The bool is false when the figure is
// not applicable, which only happens for node-counter keys.
func Value(g *aggregator.Group, key SortKey) (int64, bool) {
	switch key {
	case KeyVMStep:
		return g.Stats.VMStep, true
	case KeyTook:
		return g.Stats.TookNs, true
	case KeyRun:
		return g.Stats.Run, true
	case KeyExecutions:
		return int64(g.Executions), true
	case KeyFullscanStep:
		return g.Stats.FullscanStep, true
	case KeySort:
		return g.Stats.Sort, true
	case KeyAutoIndex:
		return g.Stats.AutoIndex, true
	case KeyReprepare:
		return g.Stats.Reprepare, true
	case KeyFilterMiss:
		return g.Stats.FilterMiss, true
	case KeyFilterHit:
		return g.Stats.FilterHit, true
	case KeyMemUsed:
		return g.Stats.MemUsed, true
	case KeyLoops:
		return g.Totals.Loops.Int64()
	case KeyVisits:
		return g.Totals.Visits.Int64()
	case KeyCycles:
		return g.Totals.Cycles.Int64()
	case KeyEstimate:
		return g.Totals.Estimate.Int64()
	default:
		return 0, false
	}
}

// Select keeps the top Limit groups by Key in Order and returns them in Display
// order. Not-applicable values sort last when descending and first when
// ascending. Ties keep the order in which groups were first seen.
func Select(groups []*aggregator.Group, opts Options) ([]*aggregator.Group, error) {
	if opts.Key == "" {
		opts.Key = KeyVMStep
	}
	if _, err := ParseKey(string(opts.Key)); err != nil {
		return nil, err
	}
	if opts.Order == "" {
		opts.Order = Desc
	}
	if opts.Display == "" {
		opts.Display = Asc
	}

	ranked := append([]*aggregator.Group(nil), groups...)
	sortGroups(ranked, opts.Key, opts.Order)
	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	if opts.Display != opts.Order {
		sortGroups(ranked, opts.Key, opts.Display)
	}
	return ranked, nil
}

func sortGroups(groups []*aggregator.Group, key SortKey, order Order) {
	sort.SliceStable(groups, func(i, j int) bool {
		return less(groups[i], groups[j], key, order)
	})
}

func less(a, b *aggregator.Group, key SortKey, order Order) bool {
	av, aok := Value(a, key)
	bv, bok := Value(b, key)

	if aok != bok {
		if order == Desc {
			return aok
		}
		return !aok
	}
	if aok && av != bv {
		if order == Desc {
			return av > bv
		}
		return av < bv
	}
	return a.Ordinal < b.Ordinal
}
