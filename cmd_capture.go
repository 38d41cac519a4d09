package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mickamy/scanprof/internal/model"
	"github.com/mickamy/scanprof/internal/runner"
)

type captureFlags struct {
	url     string
	sqlPath []string
	queries []string
	repeat  int
	session string
	out     string
	timeout time.Duration
}

var captureOpts captureFlags

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run statements on PostgreSQL and append trace records",
	Long: `Runs each statement with EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) and appends
one NDJSON trace record per run, so PostgreSQL workloads can be fed to
"scanprof report".

Example:
  scanprof capture --url $DATABASE_URL --query "SELECT * FROM users" --repeat 5 --out trace.ndjson`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	f := captureCmd.Flags()
	f.StringVar(&captureOpts.url, "url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string; defaults to $DATABASE_URL")
	f.StringSliceVar(&captureOpts.sqlPath, "sql", nil, "SQL file holding one statement (repeatable)")
	f.StringArrayVar(&captureOpts.queries, "query", nil, "Inline SQL statement (repeatable)")
	f.IntVar(&captureOpts.repeat, "repeat", 1, "Runs per statement")
	f.StringVar(&captureOpts.session, "session", "pg", "Session label written to each record")
	f.StringVarP(&captureOpts.out, "out", "o", "", "Trace log to append to (stdout if omitted)")
	f.DurationVar(&captureOpts.timeout, "timeout", 0, "Optional overall timeout, e.g. 45s")
}

func runCapture(cmd *cobra.Command, args []string) (err error) {
	connection := strings.TrimSpace(captureOpts.url)
	if connection == "" {
		return fmt.Errorf("--url is required or set $DATABASE_URL")
	}

	statements, err := collectStatements(captureOpts.sqlPath, captureOpts.queries)
	if err != nil {
		return err
	}
	if len(statements) == 0 {
		return fmt.Errorf("--sql or --query is required")
	}

	lines, err := runner.Capture(cmd.Context(), connection, statements, runner.Options{
		Timeout: captureOpts.timeout,
		Repeat:  captureOpts.repeat,
		Session: captureOpts.session,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	target, closeOut, err := openOutput(captureOpts.out, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
	if err != nil {
		return err
	}
	defer closeOutput(closeOut, &err)

	if err := writeTraceLines(target, lines); err != nil {
		return err
	}
	logger.Info("capture complete", zap.Int("records", len(lines)), zap.String("out", captureOpts.out))
	return nil
}

func collectStatements(paths, inline []string) ([]string, error) {
	statements := make([]string, 0, len(paths)+len(inline))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sql file: %w", err)
		}
		statements = append(statements, string(data))
	}
	for _, q := range inline {
		if strings.TrimSpace(q) != "" {
			statements = append(statements, q)
		}
	}
	return statements, nil
}

func writeTraceLines(w io.Writer, lines []model.TraceLine) error {
	encoder := json.NewEncoder(w)
	for i := range lines {
		if err := encoder.Encode(&lines[i]); err != nil {
			return fmt.Errorf("write trace line: %w", err)
		}
	}
	return nil
}
