package runner

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/mickamy/scanprof/internal/model"
	"github.com/mickamy/scanprof/internal/parser"
)

// Options customises how EXPLAIN is executed.
type Options struct {
	Timeout time.Duration
	// Repeat is the number of times each statement is captured; <= 0 means once.
	Repeat int
	// Session labels the captured trace lines.
	Session string
	Logger  *zap.Logger
}

// Run executes EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) for the provided SQL statement.
func Run(ctx context.Context, dsn, sqlStatement string, opts Options) ([]byte, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("runner: empty DSN")
	}
	query := strings.TrimSpace(sqlStatement)
	if query == "" {
		return nil, fmt.Errorf("runner: empty sql statement")
	}

	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("runner: connect: %w", err)
	}
	defer conn.Close(ctx)

	return explain(ctx, conn, query)
}

// Capture runs every statement Repeat times on one connection and converts
// each EXPLAIN ANALYZE result into a trace line. Counters on the returned
// lines continue from 0 in capture order.
func Capture(ctx context.Context, dsn string, statements []string, opts Options) ([]model.TraceLine, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("runner: empty DSN")
	}
	if len(statements) == 0 {
		return nil, fmt.Errorf("runner: no statements to capture")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	repeat := max(opts.Repeat, 1)

	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("runner: connect: %w", err)
	}
	defer conn.Close(ctx)

	lines := make([]model.TraceLine, 0, len(statements)*repeat)
	for _, stmt := range statements {
		query := strings.TrimSpace(stmt)
		if query == "" {
			continue
		}
		for i := 0; i < repeat; i++ {
			payload, err := explain(ctx, conn, query)
			if err != nil {
				return nil, err
			}
			plan, err := parser.ParseExplain(bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("runner: parse explain: %w", err)
			}
			line := ToTraceLine(query, plan, opts.Session, int64(len(lines)))
			line.Timestamp = float64(time.Now().UnixNano()) / 1e9
			lines = append(lines, line)
			logger.Debug("captured statement",
				zap.Int64("counter", line.Counter),
				zap.Int("nodes", len(line.ScanStatus)),
				zap.Float64("execution_ms", plan.ExecutionTime),
			)
		}
	}
	return lines, nil
}

func explain(ctx context.Context, conn *pgx.Conn, query string) ([]byte, error) {
	explainSQL := fmt.Sprintf("EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) %s", query)

	var payload []byte
	if err := conn.QueryRow(ctx, explainSQL).Scan(&payload); err != nil {
		return nil, fmt.Errorf("runner: query: %w", err)
	}
	return payload, nil
}

// ToTraceLine maps a flattened PostgreSQL plan onto the profiler log format.
// Statement counters the server does not expose stay zero; vm_step is
// approximated by the total rows visited and sort by the number of Sort nodes.
func ToTraceLine(query string, plan *parser.Explain, session string, counter int64) model.TraceLine {
	line := model.TraceLine{
		Session:    session,
		Counter:    counter,
		Unexpanded: query,
		Expanded:   query,
		Run:        1,
		TookNs:     int64(math.Round(plan.ExecutionTime * 1e6)),
		ScanStatus: make([]model.ScanStatus, 0, len(plan.Rows)),
	}
	for _, row := range plan.Rows {
		line.ScanStatus = append(line.ScanStatus, row.Clone())
		var visits int64
		if row.NVisit != nil && *row.NVisit > 0 {
			visits = *row.NVisit
		}
		line.VMStep += visits
		if strings.HasPrefix(row.Name, "Seq Scan") {
			line.FullscanStep += visits
		}
		if row.Name == "Sort" || row.Name == "Incremental Sort" {
			line.Sort++
		}
	}
	return line
}
