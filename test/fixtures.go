package test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mickamy/scanprof/internal/model"
	"github.com/mickamy/scanprof/internal/parser"
	"github.com/mickamy/scanprof/internal/report"
)

var (
	rootPath string
	once     sync.Once
)

// RootPath resolves the repository root (where go.mod resides).
func RootPath(t *testing.T) string {
	t.Helper()
	once.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("getwd: %v", err)
		}
		for {
			if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
				rootPath = wd
				break
			}
			next := filepath.Dir(wd)
			if next == wd {
				t.Fatalf("go.mod not found from %s", wd)
			}
			wd = next
		}
	})
	return rootPath
}

// SamplePath returns the path of a fixture under samples/.
func SamplePath(t *testing.T, rel string) string {
	t.Helper()
	return filepath.Join(RootPath(t), "samples", rel)
}

// LoadSampleRecords reads and normalizes a trace log under samples/.
func LoadSampleRecords(t *testing.T, rel string) []model.ExecutionRecord {
	t.Helper()
	records, _, err := parser.ReadAll(context.Background(), []string{SamplePath(t, rel)}, parser.Options{})
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	return records
}

// LoadSampleReport builds a report with default ranking from a trace log
// under samples/.
func LoadSampleReport(t *testing.T, rel string) *report.Report {
	t.Helper()
	rep, err := report.Build(context.Background(), LoadSampleRecords(t, rel), report.Options{})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	return rep
}
