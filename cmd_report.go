package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mickamy/scanprof/internal/config"
	"github.com/mickamy/scanprof/internal/parser"
	"github.com/mickamy/scanprof/internal/rank"
	"github.com/mickamy/scanprof/internal/render/html"
	"github.com/mickamy/scanprof/internal/render/tui"
	"github.com/mickamy/scanprof/internal/report"
)

type reportFlags struct {
	inputs     []string
	mode       string
	out        string
	title      string
	css        bool
	color      bool
	maxDepth   int
	sortKey    string
	limit      int
	order      string
	display    string
	workers    int
	indentUnit string
}

var reportOpts reportFlags

var reportCmd = &cobra.Command{
	Use:   "report [trace.ndjson ...]",
	Short: "Aggregate trace logs and render the top groups",
	Long: `Reads one or more NDJSON trace logs (plain, gzip or zstd; "-" is stdin),
groups executions by query text and plan fingerprint, merges their counters
and renders the selected groups as a terminal table, HTML or JSON.

Example:
  scanprof report --sort-key ncycle --limit 10 trace.ndjson.gz`,
	RunE: runReport,
}

func init() {
	bindReportFlags(reportCmd.Flags(), &reportOpts)
}

func bindReportFlags(f *pflag.FlagSet, opts *reportFlags) {
	f.StringSliceVarP(&opts.inputs, "input", "i", nil, "Trace log to read (repeatable; positional arguments work too)")
	f.StringVar(&opts.mode, "mode", "tui", "Output mode: tui, html or json")
	f.StringVarP(&opts.out, "out", "o", "", "Output path (stdout if omitted)")
	f.StringVar(&opts.title, "title", "scanprof report", "Report title (HTML)")
	f.BoolVar(&opts.css, "css", true, "Include inline styles (HTML)")
	f.BoolVar(&opts.color, "color", true, "Enable ANSI colors and SQL highlighting (TUI)")
	f.IntVar(&opts.maxDepth, "max-depth", 0, "Plan levels to show, 1 for first-level nodes only; 0 shows all (TUI)")
	f.StringVar(&opts.sortKey, "sort-key", "", "Ranking figure (default from config: vm_step)")
	f.IntVar(&opts.limit, "limit", 0, "Number of groups to keep (default from config: 40)")
	f.StringVar(&opts.order, "order", "", "Ranking direction asc|desc (default from config: desc)")
	f.StringVar(&opts.display, "display", "", "Display order asc|desc (default from config: asc)")
	f.IntVar(&opts.workers, "workers", 0, "Parallel merge workers (default from config; 0 uses all CPUs)")
	f.StringVar(&opts.indentUnit, "indent", "", "Indentation unit per plan depth (default from config: two spaces)")
}

func runReport(cmd *cobra.Command, args []string) (err error) {
	paths := append(append([]string(nil), reportOpts.inputs...), args...)
	if len(paths) == 0 {
		return fmt.Errorf("--input or a trace path is required")
	}

	rankOpts, workers, indentUnit, err := resolveReportSettings(cmd.Flags(), reportOpts, config.Active().Report)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	records, stats, err := parser.ReadAll(ctx, paths, parser.Options{Logger: logger})
	if err != nil {
		return err
	}
	logger.Info("trace read",
		zap.Int("files", stats.Files),
		zap.Int("lines", stats.Lines),
		zap.Int("records", stats.Records),
		zap.Int("malformed", stats.Malformed),
		zap.Int("rejected", stats.Rejected),
	)

	rep, err := report.Build(ctx, records, report.Options{Rank: rankOpts, Workers: workers, Logger: logger})
	if err != nil {
		return err
	}

	target, closeOut, err := openOutput(reportOpts.out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return err
	}
	defer closeOutput(closeOut, &err)

	switch reportOpts.mode {
	case "tui":
		return tui.Render(target, rep, tui.Options{
			EnableColor: reportOpts.color && reportOpts.out == "",
			MaxDepth:    reportOpts.maxDepth,
			Indent:      indentUnit,
		})
	case "html":
		return html.Render(target, rep, html.Options{
			Title:         reportOpts.title,
			IncludeStyles: reportOpts.css,
		})
	case "json":
		payload, err := rep.JSON()
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		_, err = target.Write(append(payload, '\n'))
		return err
	default:
		return fmt.Errorf("unknown mode %q (expected tui, html or json)", reportOpts.mode)
	}
}

// resolveReportSettings layers explicitly set flags over the config file.
func resolveReportSettings(flags *pflag.FlagSet, opts reportFlags, cfg config.ReportConfig) (rank.Options, int, string, error) {
	changed := flags.Changed

	keyName, limit := cfg.SortKey, cfg.Limit
	orderName, displayName := cfg.Order, cfg.Display
	workers, indentUnit := cfg.Workers, cfg.Indent
	if changed("sort-key") {
		keyName = opts.sortKey
	}
	if changed("limit") {
		limit = opts.limit
	}
	if changed("order") {
		orderName = opts.order
	}
	if changed("display") {
		displayName = opts.display
	}
	if changed("workers") {
		workers = opts.workers
	}
	if changed("indent") {
		indentUnit = opts.indentUnit
	}

	key, err := rank.ParseKey(keyName)
	if err != nil {
		return rank.Options{}, 0, "", err
	}
	order, err := rank.ParseOrder(orderName)
	if err != nil {
		return rank.Options{}, 0, "", err
	}
	display, err := rank.ParseOrder(displayName)
	if err != nil {
		return rank.Options{}, 0, "", err
	}
	return rank.Options{Key: key, Limit: limit, Order: order, Display: display}, workers, indentUnit, nil
}
