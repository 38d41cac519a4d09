package report_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/scanprof/internal/aggregator"
	"github.com/mickamy/scanprof/internal/model"
	"github.com/mickamy/scanprof/internal/rank"
	"github.com/mickamy/scanprof/internal/report"
	"github.com/mickamy/scanprof/test"
)

const joinQuery = "SELECT u.name, (SELECT count(*) FROM items i WHERE i.order_id = o.id) FROM users u JOIN orders o ON o.user_id = u.id"

func TestBuildSample(t *testing.T) {
	records := test.LoadSampleRecords(t, "trace.ndjson")

	rep, err := report.Build(context.Background(), records, report.Options{Rank: rank.Options{Limit: 40}})
	require.NoError(t, err)

	assert.Equal(t, 5, rep.Records)
	assert.Equal(t, 2, rep.Groups)
	require.Len(t, rep.Selected, 2)

	// ascending display: the join (3,000 VM steps) before the count (10,000).
	join, count := rep.Selected[0], rep.Selected[1]
	assert.Equal(t, joinQuery, join.Query)
	assert.Equal(t, "SELECT count(*) FROM events", count.Query)

	assert.Equal(t, 3, join.Executions)
	assert.Equal(t, int64(3000), join.Stats.VMStep)
	assert.InDelta(t, 0.006, join.TookSeconds, 1e-12)
	assert.Equal(t, model.Reported(26000), join.Totals.Cycles)
	assert.Equal(t, model.Reported(3300), join.Totals.Visits)

	require.Len(t, join.Nodes, 4)
	var (
		explains []string
		depths   []int
		orders   []int
		cycles   []float64
		visits   []float64
	)
	for _, n := range join.Nodes {
		explains = append(explains, n.Explain)
		depths = append(depths, n.Depth)
		orders = append(orders, n.TraversalOrder)
		require.NotNil(t, n.CyclePercent)
		require.NotNil(t, n.VisitPercent)
		cycles = append(cycles, *n.CyclePercent)
		visits = append(visits, *n.VisitPercent)
	}
	assert.Equal(t, []string{
		"SCAN u",
		"SEARCH o USING INDEX orders_user (user_id=?)",
		"CORRELATED SCALAR SUBQUERY 1",
		"SEARCH i USING INDEX items_order (order_id=?)",
	}, explains)
	assert.Equal(t, []int{0, 0, 1, 2}, depths)
	assert.Equal(t, []int{0, 2, 3, 4}, orders)
	assert.Equal(t, []float64{57.69, 19.23, 11.54, 11.54}, cycles)
	assert.Equal(t, []float64{9.09, 22.73, 22.73, 45.45}, visits)

	assert.Equal(t, model.Reported(5000), join.Nodes[1].Cycles)
	assert.False(t, join.Nodes[2].Estimate.Valid)
	assert.Equal(t, model.Reported(15), join.Nodes[3].Estimate)

	require.Len(t, count.Nodes, 1)
	assert.False(t, count.Totals.Cycles.Valid)
	assert.Nil(t, count.Nodes[0].CyclePercent)
	require.NotNil(t, count.Nodes[0].VisitPercent)
	assert.Equal(t, 100.0, *count.Nodes[0].VisitPercent)
	assert.NotEmpty(t, count.Insights, "full scan of events should be flagged")
}

func TestBuildLimitAndKey(t *testing.T) {
	records := test.LoadSampleRecords(t, "trace.ndjson")

	rep, err := report.Build(context.Background(), records, report.Options{
		Rank:    rank.Options{Key: rank.KeyCycles, Limit: 1},
		Workers: 1,
	})
	require.NoError(t, err)
	require.Len(t, rep.Selected, 1)
	assert.Equal(t, joinQuery, rep.Selected[0].Query, "groups without cycles rank last")
	assert.Equal(t, rank.KeyCycles, rep.SortKey)
}

func TestBuildNoData(t *testing.T) {
	_, err := report.Build(context.Background(), nil, report.Options{})
	assert.ErrorIs(t, err, aggregator.ErrNoData)
}

func TestReportJSON(t *testing.T) {
	records := test.LoadSampleRecords(t, "trace.ndjson")
	rep, err := report.Build(context.Background(), records, report.Options{})
	require.NoError(t, err)

	payload, err := rep.JSON()
	require.NoError(t, err)

	var decoded struct {
		Selected []struct {
			Query string `json:"query"`
			Nodes []struct {
				Cycles       *int64   `json:"ncycle"`
				CyclePercent *float64 `json:"ncycle_percent"`
			} `json:"nodes"`
		} `json:"selected"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Len(t, decoded.Selected, 2)

	events := decoded.Selected[1]
	require.Len(t, events.Nodes, 1)
	assert.Nil(t, events.Nodes[0].Cycles, "not applicable must encode as null, not 0")
	assert.Nil(t, events.Nodes[0].CyclePercent)
}
