// Package normalize turns raw profiler log lines into execution records.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mickamy/scanprof/internal/model"
)

var (
	// ErrEmptyQuery is returned for lines without statement text.
	ErrEmptyQuery = errors.New("normalize: empty query text")
	// ErrDuplicateIdx is returned when two plan rows of one execution share an idx.
	ErrDuplicateIdx = errors.New("normalize: duplicate plan idx")
)

// Record validates a raw trace line and converts it to an ExecutionRecord.
// A node counter that is missing, null or negative is treated as not applicable.
func Record(line model.TraceLine) (model.ExecutionRecord, error) {
	if strings.TrimSpace(line.Unexpanded) == "" {
		return model.ExecutionRecord{}, ErrEmptyQuery
	}

	nodes, err := Nodes(line.ScanStatus)
	if err != nil {
		return model.ExecutionRecord{}, err
	}

	return model.ExecutionRecord{
		Session:    line.Session,
		Counter:    line.Counter,
		Timestamp:  line.Timestamp,
		Query:      line.Unexpanded,
		Expanded:   line.Expanded,
		Normalized: line.Normalized,
		Stats: model.Stats{
			FullscanStep: line.FullscanStep,
			Sort:         line.Sort,
			AutoIndex:    line.AutoIndex,
			VMStep:       line.VMStep,
			Reprepare:    line.Reprepare,
			Run:          line.Run,
			FilterMiss:   line.FilterMiss,
			FilterHit:    line.FilterHit,
			MemUsed:      line.MemUsed,
			TookNs:       line.TookNs,
		},
		Nodes: nodes,
	}, nil
}

// Nodes converts raw scanstatus rows, preserving their order.
func Nodes(rows []model.ScanStatus) ([]model.PlanNode, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	seen := make(map[int]struct{}, len(rows))
	out := make([]model.PlanNode, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.Idx]; dup {
			return nil, fmt.Errorf("%w: idx %d", ErrDuplicateIdx, row.Idx)
		}
		seen[row.Idx] = struct{}{}
		out = append(out, model.PlanNode{
			Idx:      row.Idx,
			SelectID: row.SelectID,
			ParentID: row.ParentID,
			Name:     row.Name,
			Explain:  row.Explain,
			Loops:    counter(row.NLoop),
			Visits:   counter(row.NVisit),
			Cycles:   counter(row.NCycle),
			Estimate: estimate(row.Est),
		})
	}
	return out, nil
}

func counter(raw *int64) model.Counter {
	if raw == nil || *raw < 0 {
		return model.NotApplicable()
	}
	return model.Reported(*raw)
}

func estimate(raw *float64) model.Counter {
	if raw == nil {
		return model.NotApplicable()
	}
	v := *raw
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return model.NotApplicable()
	}
	if v >= math.MaxInt64 {
		return model.Reported(math.MaxInt64)
	}
	return model.Reported(int64(math.Round(v)))
}
