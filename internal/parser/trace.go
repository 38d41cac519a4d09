package parser

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/mickamy/scanprof/internal/model"
	"github.com/mickamy/scanprof/internal/normalize"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// LineError reports a trace line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Open opens a trace log. "-" reads stdin. gzip and zstd streams are detected by
// their magic bytes and decompressed transparently.
func Open(path string) (io.ReadCloser, error) {
	var file io.ReadCloser
	if path == "-" {
		file = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		file = f
	}

	rc, err := Decompress(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return rc, nil
}

// Decompress wraps rc with a gzip or zstd decoder when its content calls for one.
// Closing the result closes rc.
func Decompress(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	head, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("peek header: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, rc}}, nil
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		dec := zr.IOReadCloser()
		return &stackedCloser{Reader: dec, closers: []io.Closer{dec, rc}}, nil
	default:
		return &stackedCloser{Reader: br, closers: []io.Closer{rc}}, nil
	}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reader streams trace lines from an NDJSON log.
type Reader struct {
	r    *bufio.Reader
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 1<<16)}
}

// Next returns the next non-blank trace line. A malformed line yields a *LineError
// and the reader stays usable; io.EOF marks the end of the stream.
func (r *Reader) Next() (model.TraceLine, error) {
	for {
		raw, err := r.r.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			return model.TraceLine{}, err
		}
		r.line++

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			if err != nil {
				return model.TraceLine{}, err
			}
			continue
		}

		var line model.TraceLine
		if uerr := json.Unmarshal(raw, &line); uerr != nil {
			return model.TraceLine{}, &LineError{Line: r.line, Err: uerr}
		}
		return line, nil
	}
}

// Stats counts what happened while reading trace logs.
type Stats struct {
	Files     int
	Lines     int
	Records   int
	Malformed int
	Rejected  int
}

// Options configures ReadAll.
type Options struct {
	Logger *zap.Logger
}

// ReadAll decodes and normalizes every record of the given logs, in order.
// Malformed lines and records rejected by normalization are skipped and counted.
func ReadAll(ctx context.Context, paths []string, opts Options) ([]model.ExecutionRecord, Stats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		records []model.ExecutionRecord
		stats   Stats
	)
	for _, path := range paths {
		rc, err := Open(path)
		if err != nil {
			return nil, stats, err
		}
		stats.Files++

		err = readOne(ctx, rc, path, logger, &stats, &records)
		_ = rc.Close()
		if err != nil {
			return nil, stats, err
		}
	}

	logger.Debug("read trace logs",
		zap.Int("files", stats.Files),
		zap.Int("lines", stats.Lines),
		zap.Int("records", stats.Records),
		zap.Int("malformed", stats.Malformed),
		zap.Int("rejected", stats.Rejected),
	)
	return records, stats, nil
}

func readOne(ctx context.Context, r io.Reader, path string, logger *zap.Logger, stats *Stats, out *[]model.ExecutionRecord) error {
	reader := NewReader(r)
	for {
		if stats.Lines%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var lineErr *LineError
		if errors.As(err, &lineErr) {
			stats.Lines++
			stats.Malformed++
			logger.Debug("skipping malformed line", zap.String("path", path), zap.Int("line", lineErr.Line), zap.Error(lineErr.Err))
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		stats.Lines++

		rec, err := normalize.Record(line)
		if err != nil {
			stats.Rejected++
			logger.Debug("skipping record", zap.String("path", path), zap.Int("line", reader.line), zap.Error(err))
			continue
		}
		stats.Records++
		*out = append(*out, rec)
	}
}
