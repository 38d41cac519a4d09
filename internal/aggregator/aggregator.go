// Package aggregator groups execution records by query text and plan shape and
// merges their counters.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mickamy/scanprof/internal/fingerprint"
	"github.com/mickamy/scanprof/internal/model"
)

var (
	// ErrNoData is returned when no record could be grouped.
	ErrNoData = errors.New("aggregator: no data")
	// ErrInconsistentRecord marks a record whose plan rows do not match its group.
	ErrInconsistentRecord = errors.New("aggregator: inconsistent record")
)

// Key identifies a group.
type Key struct {
	Query       string
	Fingerprint fingerprint.Fingerprint
}

// Totals sums the merged node counters of a group. A total is not applicable
// when no node of the group reports that counter.
type Totals struct {
	Loops    model.Counter `json:"nloop"`
	Visits   model.Counter `json:"nvisit"`
	Cycles   model.Counter `json:"ncycle"`
	Estimate model.Counter `json:"est"`
}

// Group is the merged view of all executions sharing a Key. Groups are read-only
// once Aggregate returns.
type Group struct {
	Key Key
	// Ordinal is the position at which the group's first record was seen.
	Ordinal    int
	Executions int
	Rejected   int
	Stats      model.Stats
	Nodes      []model.PlanNode
	Totals     Totals
}

// Options tunes Aggregate.
type Options struct {
	// Workers bounds the number of groups merged concurrently; <= 0 uses GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

// Result is the outcome of one aggregation run.
type Result struct {
	Groups   []*Group
	Records  int
	Rejected int
}

type partition struct {
	key     Key
	records []*model.ExecutionRecord
}

// Aggregate groups records and merges each group. Groups come back in the
// order their first record appears, independent of Workers.
func Aggregate(ctx context.Context, records []model.ExecutionRecord, opts Options) (*Result, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrNoData)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	parts := partitionRecords(records)
	groups := make([]*Group, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, part := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			group := merge(part, logger)
			group.Ordinal = i
			groups[i] = group
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregator: merge groups: %w", err)
	}

	result := &Result{Records: len(records)}
	for _, group := range groups {
		result.Rejected += group.Rejected
		if group.Executions == 0 {
			continue
		}
		result.Groups = append(result.Groups, group)
	}
	if len(result.Groups) == 0 {
		return nil, fmt.Errorf("%w: all %d records rejected", ErrNoData, len(records))
	}

	logger.Debug("aggregated records",
		zap.Int("records", result.Records),
		zap.Int("groups", len(result.Groups)),
		zap.Int("rejected", result.Rejected),
	)
	return result, nil
}

func partitionRecords(records []model.ExecutionRecord) []*partition {
	index := make(map[Key]int)
	var parts []*partition
	for i := range records {
		rec := &records[i]
		key := Key{Query: rec.Query, Fingerprint: fingerprint.Compute(rec.Nodes)}
		pos, ok := index[key]
		if !ok {
			pos = len(parts)
			index[key] = pos
			parts = append(parts, &partition{key: key})
		}
		parts[pos].records = append(parts[pos].records, rec)
	}
	return parts
}

type accumulator struct {
	index map[model.NodeKey]int
	nodes []model.PlanNode
}

func newAccumulator(shape []model.PlanNode) *accumulator {
	acc := &accumulator{
		index: make(map[model.NodeKey]int, len(shape)),
		nodes: make([]model.PlanNode, len(shape)),
	}
	for i, n := range shape {
		acc.index[n.Key()] = i
		acc.nodes[i] = model.PlanNode{
			Idx:      n.Idx,
			SelectID: n.SelectID,
			ParentID: n.ParentID,
			Name:     n.Name,
			Explain:  n.Explain,
		}
	}
	return acc
}

// positions maps each node of nodes to its merged slot, or fails when the node
// key set differs from the accumulator's.
func (a *accumulator) positions(nodes []model.PlanNode) ([]int, error) {
	if len(nodes) != len(a.nodes) {
		return nil, fmt.Errorf("%w: %d plan rows, group has %d", ErrInconsistentRecord, len(nodes), len(a.nodes))
	}
	seen := make([]bool, len(a.nodes))
	out := make([]int, len(nodes))
	for i, n := range nodes {
		pos, ok := a.index[n.Key()]
		if !ok {
			return nil, fmt.Errorf("%w: unknown plan row idx=%d selectid=%d", ErrInconsistentRecord, n.Idx, n.SelectID)
		}
		if seen[pos] {
			return nil, fmt.Errorf("%w: repeated plan row idx=%d", ErrInconsistentRecord, n.Idx)
		}
		seen[pos] = true
		out[i] = pos
	}
	return out, nil
}

func (a *accumulator) add(nodes []model.PlanNode, positions []int) {
	for i, n := range nodes {
		m := &a.nodes[positions[i]]
		m.Loops = m.Loops.Add(n.Loops)
		m.Visits = m.Visits.Add(n.Visits)
		m.Cycles = m.Cycles.Add(n.Cycles)
		m.Estimate = m.Estimate.Add(n.Estimate)
	}
}

func merge(part *partition, logger *zap.Logger) *Group {
	group := &Group{Key: part.key}
	acc := newAccumulator(part.records[0].Nodes)

	for _, rec := range part.records {
		positions, err := acc.positions(rec.Nodes)
		if err != nil {
			group.Rejected++
			logger.Warn("skipping record",
				zap.String("fingerprint", part.key.Fingerprint.String()),
				zap.String("session", rec.Session),
				zap.Int64("counter", rec.Counter),
				zap.Error(err),
			)
			continue
		}
		acc.add(rec.Nodes, positions)
		group.Stats = group.Stats.Add(rec.Stats)
		group.Executions++
	}

	group.Nodes = acc.nodes
	group.Totals = totals(acc.nodes)
	return group
}

func totals(nodes []model.PlanNode) Totals {
	var t Totals
	for _, n := range nodes {
		t.Loops = t.Loops.Add(n.Loops)
		t.Visits = t.Visits.Add(n.Visits)
		t.Cycles = t.Cycles.Add(n.Cycles)
		t.Estimate = t.Estimate.Add(n.Estimate)
	}
	return t
}
