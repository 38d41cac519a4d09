package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds tunable thresholds for insights and defaults for report selection.
type Config struct {
	Insights InsightConfig `json:"insights" yaml:"insights"`
	Report   ReportConfig  `json:"report" yaml:"report"`
}

// InsightConfig defines thresholds for insight generation.
type InsightConfig struct {
	HotspotCriticalPercent float64 `json:"hotspot_critical_percent" yaml:"hotspot_critical_percent"`
	HotspotWarningPercent  float64 `json:"hotspot_warning_percent" yaml:"hotspot_warning_percent"`
	FullscanWarningRatio   float64 `json:"fullscan_warning_ratio" yaml:"fullscan_warning_ratio"`
	AutoIndexWarning       int64   `json:"autoindex_warning" yaml:"autoindex_warning"`
	SortWarningPerRun      float64 `json:"sort_warning_per_run" yaml:"sort_warning_per_run"`
	ReprepareWarning       int64   `json:"reprepare_warning" yaml:"reprepare_warning"`
	FilterMissWarningRatio float64 `json:"filter_miss_warning_ratio" yaml:"filter_miss_warning_ratio"`
}

// ReportConfig defines how groups are selected and laid out.
type ReportConfig struct {
	SortKey string `json:"sort_key" yaml:"sort_key"`
	Limit   int    `json:"limit" yaml:"limit"`
	Order   string `json:"order" yaml:"order"`
	Display string `json:"display" yaml:"display"`
	Workers int    `json:"workers" yaml:"workers"`
	Indent  string `json:"indent" yaml:"indent"`
}

var (
	mu     sync.RWMutex
	active = Default()
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Insights: InsightConfig{
			HotspotCriticalPercent: 40,
			HotspotWarningPercent:  20,
			FullscanWarningRatio:   0.5,
			AutoIndexWarning:       1,
			SortWarningPerRun:      1,
			ReprepareWarning:       1,
			FilterMissWarningRatio: 0.5,
		},
		Report: ReportConfig{
			SortKey: "vm_step",
			Limit:   40,
			Order:   "desc",
			Display: "asc",
			Workers: 0,
			Indent:  "  ",
		},
	}
}

// Active returns the currently applied configuration.
func Active() Config {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Use replaces the active configuration.
func Use(cfg Config) {
	mu.Lock()
	active = cfg
	mu.Unlock()
}

// Apply loads configuration from path, YAML for .yaml/.yml and JSON otherwise.
// Values missing from the file keep their defaults. Empty path resets to default.
func Apply(path string) error {
	if path == "" {
		Use(Default())
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	Use(cfg)
	return nil
}
