package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAdd(t *testing.T) {
	tests := []struct {
		name string
		a, b Counter
		want Counter
	}{
		{name: "both missing", a: NotApplicable(), b: NotApplicable(), want: NotApplicable()},
		{name: "left missing", a: NotApplicable(), b: Reported(7), want: Reported(7)},
		{name: "right missing", a: Reported(7), b: NotApplicable(), want: Reported(7)},
		{name: "both reported", a: Reported(7), b: Reported(3), want: Reported(10)},
		{name: "reported zero stays reported", a: NotApplicable(), b: Reported(0), want: Reported(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Add(tt.b))
		})
	}
}

func TestCounterJSON(t *testing.T) {
	payload, err := json.Marshal(struct {
		A Counter `json:"a"`
		B Counter `json:"b"`
	}{A: Reported(0), B: NotApplicable()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0,"b":null}`, string(payload))

	var decoded struct {
		A Counter `json:"a"`
		B Counter `json:"b"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, Reported(0), decoded.A)
	assert.False(t, decoded.B.Valid)
}

func TestStatsAdd(t *testing.T) {
	a := Stats{VMStep: 10, Run: 1, TookNs: 1_500_000_000}
	b := Stats{VMStep: 5, Run: 1, Sort: 2, TookNs: 500_000_000}
	sum := a.Add(b)
	assert.Equal(t, int64(15), sum.VMStep)
	assert.Equal(t, int64(2), sum.Run)
	assert.Equal(t, int64(2), sum.Sort)
	assert.InDelta(t, 2.0, sum.TookSeconds(), 1e-9)
}
