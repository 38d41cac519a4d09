package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/scanprof/test"
)

func TestPlanRows(t *testing.T) {
	rep := test.LoadSampleReport(t, "trace.ndjson")
	require.Len(t, rep.Selected, 2)

	rows, hidden := planRows(&rep.Selected[0], Options{Indent: "  ", BarWidth: 10})
	require.Len(t, rows, 4)
	assert.Zero(t, hidden)

	assert.Equal(t, "SCAN u  nloop=3 nvisit=300 est=300", rows[0].plan)
	assert.Equal(t, "  CORRELATED SCALAR SUBQUERY 1  nloop=750 nvisit=750", rows[2].plan)
	assert.Equal(t, "    SEARCH i USING INDEX items_order (order_id=?)  nloop=750 nvisit=1,500 est=15", rows[3].plan)
	assert.Equal(t, "57.69%", rows[0].cycle)
	assert.Equal(t, "######----", rows[0].bar)

	events, _ := planRows(&rep.Selected[1], Options{Indent: "  ", BarWidth: 10})
	require.Len(t, events, 1)
	assert.Equal(t, "-", events[0].cycle)
	assert.Equal(t, "100.00%", events[0].visit)
	assert.Equal(t, "----------", events[0].bar)
}

func TestPlanRowsMaxDepth(t *testing.T) {
	rep := test.LoadSampleReport(t, "trace.ndjson")
	require.NotEmpty(t, rep.Selected)
	group := &rep.Selected[0]

	tests := []struct {
		name     string
		maxDepth int
		shown    int
		hidden   int
	}{
		{name: "unlimited", maxDepth: 0, shown: 4, hidden: 0},
		{name: "first level only", maxDepth: 1, shown: 2, hidden: 2},
		{name: "two levels", maxDepth: 2, shown: 3, hidden: 1},
		{name: "deeper than plan", maxDepth: 5, shown: 4, hidden: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, hidden := planRows(group, Options{Indent: "  ", BarWidth: 10, MaxDepth: tt.maxDepth})
			assert.Len(t, rows, tt.shown)
			assert.Equal(t, tt.hidden, hidden)
		})
	}

	rows, _ := planRows(group, Options{Indent: "  ", BarWidth: 10, MaxDepth: 1})
	assert.Equal(t, "SCAN u  nloop=3 nvisit=300 est=300", rows[0].plan)
	assert.Contains(t, rows[1].plan, "SEARCH o USING INDEX orders_user")
}

func TestDrawBar(t *testing.T) {
	assert.Equal(t, "#---", drawBar(0.01, 4))
	assert.Equal(t, "####", drawBar(2, 4))
	assert.Equal(t, "", drawBar(0.5, 0))
}
