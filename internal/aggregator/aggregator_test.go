package aggregator

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mickamy/scanprof/internal/model"
)

func node(idx, selectID, parentID int, explain string, cycles model.Counter) model.PlanNode {
	return model.PlanNode{
		Idx:      idx,
		SelectID: selectID,
		ParentID: parentID,
		Name:     fmt.Sprintf("n%d", idx),
		Explain:  explain,
		Cycles:   cycles,
		Loops:    model.Reported(1),
	}
}

func record(query string, stats model.Stats, nodes ...model.PlanNode) model.ExecutionRecord {
	return model.ExecutionRecord{Query: query, Stats: stats, Nodes: nodes}
}

func TestAggregateMergeSummation(t *testing.T) {
	const q = "SELECT * FROM a JOIN b"
	records := []model.ExecutionRecord{
		record(q, model.Stats{VMStep: 10, Run: 1, TookNs: 100},
			node(0, 1, 0, "SCAN a", model.Reported(100)),
			node(1, 2, 0, "SCAN b", model.Reported(50)),
		),
		record(q, model.Stats{VMStep: 30, Run: 1, TookNs: 300},
			node(0, 1, 0, "SCAN a", model.NotApplicable()),
			node(1, 2, 0, "SCAN b", model.Reported(30)),
		),
	}

	res, err := Aggregate(context.Background(), records, Options{})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)

	g := res.Groups[0]
	assert.Equal(t, 2, g.Executions)
	assert.Equal(t, model.Reported(100), g.Nodes[0].Cycles)
	assert.Equal(t, model.Reported(80), g.Nodes[1].Cycles)
	assert.Equal(t, model.Reported(180), g.Totals.Cycles)
	assert.Equal(t, model.Reported(4), g.Totals.Loops)
	assert.Equal(t, int64(40), g.Stats.VMStep)
	assert.Equal(t, int64(2), g.Stats.Run)
	assert.Equal(t, int64(400), g.Stats.TookNs)
}

func TestAggregateSentinelPropagation(t *testing.T) {
	const q = "SELECT 1"
	records := []model.ExecutionRecord{
		record(q, model.Stats{}, node(0, 1, 0, "SCAN x", model.NotApplicable())),
		record(q, model.Stats{}, node(0, 1, 0, "SCAN x", model.NotApplicable())),
	}

	res, err := Aggregate(context.Background(), records, Options{})
	require.NoError(t, err)
	g := res.Groups[0]
	assert.False(t, g.Nodes[0].Cycles.Valid, "never reported must stay not applicable, not zero")
	assert.False(t, g.Totals.Cycles.Valid)
	assert.False(t, g.Nodes[0].Visits.Valid)
	assert.Equal(t, model.Reported(2), g.Nodes[0].Loops)
}

func TestAggregateGroupingKey(t *testing.T) {
	records := []model.ExecutionRecord{
		record("SELECT a", model.Stats{VMStep: 1}, node(0, 1, 0, "SCAN t", model.Reported(1))),
		record("SELECT b", model.Stats{VMStep: 1}, node(0, 1, 0, "SCAN t", model.Reported(1))),
		record("SELECT a", model.Stats{VMStep: 1}, node(0, 1, 0, "SEARCH t USING INDEX i", model.Reported(1))),
		record("SELECT a", model.Stats{VMStep: 1}, node(0, 1, 0, "SCAN t", model.Reported(1))),
	}

	res, err := Aggregate(context.Background(), records, Options{Workers: 2})
	require.NoError(t, err)
	require.Len(t, res.Groups, 3)

	assert.Equal(t, "SELECT a", res.Groups[0].Key.Query)
	assert.Equal(t, 2, res.Groups[0].Executions)
	assert.Equal(t, "SELECT b", res.Groups[1].Key.Query)
	assert.Equal(t, "SELECT a", res.Groups[2].Key.Query)
	assert.NotEqual(t, res.Groups[0].Key.Fingerprint, res.Groups[2].Key.Fingerprint)
	for i, g := range res.Groups {
		assert.Equal(t, i, g.Ordinal)
	}
}

func TestAggregateIndependentOfWorkers(t *testing.T) {
	var records []model.ExecutionRecord
	for i := 0; i < 200; i++ {
		q := fmt.Sprintf("SELECT %d", i%17)
		records = append(records, record(q, model.Stats{VMStep: int64(i), Run: 1},
			node(0, 1, 0, "SCAN t", model.Reported(int64(i))),
			node(1, 2, 1, "SEARCH u", model.Reported(int64(2*i))),
		))
	}

	serial, err := Aggregate(context.Background(), records, Options{Workers: 1})
	require.NoError(t, err)
	parallel, err := Aggregate(context.Background(), records, Options{Workers: 8})
	require.NoError(t, err)

	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Fatalf("parallel aggregation differs (-serial +parallel):\n%s", diff)
	}
}

func TestAggregateNoData(t *testing.T) {
	_, err := Aggregate(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestAggregateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Aggregate(ctx, []model.ExecutionRecord{record("SELECT 1", model.Stats{})}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeRejectsInconsistentRecord(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	good := record("q", model.Stats{VMStep: 5},
		node(0, 1, 0, "SCAN a", model.Reported(10)),
		node(1, 2, 1, "SCAN b", model.Reported(20)),
	)
	missing := record("q", model.Stats{VMStep: 7},
		node(0, 1, 0, "SCAN a", model.Reported(10)),
	)
	foreign := record("q", model.Stats{VMStep: 9},
		node(0, 1, 0, "SCAN a", model.Reported(10)),
		node(1, 2, 1, "SCAN c", model.Reported(20)),
	)

	group := merge(&partition{records: []*model.ExecutionRecord{&good, &missing, &foreign, &good}}, zap.New(core))

	assert.Equal(t, 2, group.Executions)
	assert.Equal(t, 2, group.Rejected)
	assert.Equal(t, int64(10), group.Stats.VMStep)
	assert.Equal(t, model.Reported(40), group.Nodes[1].Cycles)
	assert.Equal(t, 2, logs.Len())
}
