package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/scanprof/internal/aggregator"
	"github.com/mickamy/scanprof/internal/config"
	"github.com/mickamy/scanprof/internal/model"
	"github.com/mickamy/scanprof/internal/parser"
	"github.com/mickamy/scanprof/internal/rank"
	"github.com/mickamy/scanprof/test"
)

func TestReportCommandJSON(t *testing.T) {
	t.Setenv("SCANPROF_CONFIG", "")
	out := filepath.Join(t.TempDir(), "report.json")

	rootCmd.SetArgs([]string{"report", "--mode", "json", "--out", out, "--limit", "1", test.SamplePath(t, "trace.ndjson")})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var decoded struct {
		Records  int `json:"records"`
		Groups   int `json:"groups"`
		Selected []struct {
			Query string `json:"query"`
		} `json:"selected"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 5, decoded.Records)
	assert.Equal(t, 2, decoded.Groups)
	require.Len(t, decoded.Selected, 1)
	assert.Equal(t, "SELECT count(*) FROM events", decoded.Selected[0].Query)
}

func TestReportCommandNoData(t *testing.T) {
	t.Setenv("SCANPROF_CONFIG", "")
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.ndjson")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o644))

	rootCmd.SetArgs([]string{"report", "--mode", "json", "--out", filepath.Join(dir, "out.json"), empty})
	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, aggregator.ErrNoData)
}

func TestResolveReportSettings(t *testing.T) {
	cfg := config.Default().Report
	cfg.SortKey = "took"
	cfg.Limit = 12

	var opts reportFlags
	flags := pflag.NewFlagSet("report", pflag.ContinueOnError)
	bindReportFlags(flags, &opts)
	require.NoError(t, flags.Parse([]string{"--limit", "3", "--display", "desc"}))

	rankOpts, workers, indentUnit, err := resolveReportSettings(flags, opts, cfg)
	require.NoError(t, err)
	assert.Equal(t, rank.Options{Key: rank.KeyTook, Limit: 3, Order: rank.Desc, Display: rank.Desc}, rankOpts)
	assert.Zero(t, workers)
	assert.Equal(t, "  ", indentUnit)

	require.NoError(t, flags.Parse([]string{"--sort-key", "rows"}))
	_, _, _, err = resolveReportSettings(flags, opts, cfg)
	assert.Error(t, err)
}

func TestWriteTraceLinesRoundTrip(t *testing.T) {
	lines := []model.TraceLine{{
		Session:    "pg",
		Counter:    1,
		Unexpanded: "SELECT 1",
		Run:        1,
		ScanStatus: []model.ScanStatus{{
			Idx: 0, SelectID: 1, Explain: "Result",
			NLoop: model.Raw(1), NVisit: model.Raw(1), NCycle: model.Raw(model.Sentinel), Est: model.RawEstimate(1),
		}},
	}}

	var buf bytes.Buffer
	require.NoError(t, writeTraceLines(&buf, lines))

	got, err := parser.NewReader(&buf).Next()
	require.NoError(t, err)
	assert.Equal(t, lines[0], got)
}

func TestCloseOutput(t *testing.T) {
	flushFailed := errors.New("disk full")
	failing := func() error { return flushFailed }

	var err error
	closeOutput(failing, &err)
	assert.ErrorIs(t, err, flushFailed)
	assert.ErrorContains(t, err, "close output")

	renderFailed := errors.New("render failed")
	err = renderFailed
	closeOutput(failing, &err)
	assert.Same(t, renderFailed, err, "an earlier error wins")

	err = nil
	closeOutput(func() error { return nil }, &err)
	assert.NoError(t, err)
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf, true)
	assert.Equal(t, "dev\n", buf.String())
}
