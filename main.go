package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mickamy/scanprof/internal/aggregator"
	"github.com/mickamy/scanprof/internal/config"
	"github.com/mickamy/scanprof/internal/logging"
)

var version = "dev"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	verbose    bool
	logJSON    bool
	configPath string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "scanprof",
	Short: "scanprof - statement profile aggregator",
	Long: `scanprof reads the NDJSON trace log written by a statement profiler,
groups executions by query text and plan shape, merges their per-node
counters, rebuilds each plan tree and reports the most expensive groups.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.Options{Verbose: verbose, JSON: logJSON})
		if err != nil {
			return err
		}
		return applyConfigPath(configPath)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		short, _ := cmd.Flags().GetBool("short")
		printVersion(cmd.OutOrStdout(), short)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON instead of console text")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (JSON or YAML). Falls back to $SCANPROF_CONFIG")

	versionCmd.Flags().Bool("short", false, "Print only the version number")

	rootCmd.AddCommand(reportCmd, captureCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if errors.Is(err, aggregator.ErrNoData) {
		_, _ = fmt.Fprintf(os.Stderr, "no data: %v\n", err)
		os.Exit(2)
	}
	_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func applyConfigPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("SCANPROF_CONFIG"))
	}
	return config.Apply(path)
}

// openOutput returns stdout when path is empty. flags are passed to os.OpenFile
// otherwise.
func openOutput(path string, flags int) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return file, file.Close, nil
}

// closeOutput reports the close error through errp unless an earlier error is
// already set there.
func closeOutput(closeOut func() error, errp *error) {
	if cerr := closeOut(); cerr != nil && *errp == nil {
		*errp = fmt.Errorf("close output: %w", cerr)
	}
}

func printVersion(w io.Writer, short bool) {
	v, meta := resolveVersion()
	if short {
		_, _ = fmt.Fprintln(w, v)
		return
	}
	if meta != "" {
		_, _ = fmt.Fprintf(w, "scanprof %s (%s)\n", v, meta)
	} else {
		_, _ = fmt.Fprintf(w, "scanprof %s\n", v)
	}
}

func resolveVersion() (string, string) {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}

	var commit, buildTime string
	var dirty bool
	if info, ok := debug.ReadBuildInfo(); ok {
		if (v == "dev" || v == "(devel)") &&
			info.Main.Version != "" &&
			info.Main.Version != "(devel)" &&
			!strings.HasPrefix(info.Main.Version, "v0.0.0-") {
			v = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				buildTime = setting.Value
			case "vcs.modified":
				dirty = setting.Value == "true"
			}
		}
	}

	var details []string
	if commit != "" {
		short := commit
		if len(short) > 12 {
			short = short[:12]
		}
		if dirty {
			short += "*"
			dirty = false
		}
		details = append(details, fmt.Sprintf("commit %s", short))
	}
	if buildTime != "" {
		details = append(details, fmt.Sprintf("built %s", buildTime))
	}
	if dirty {
		details = append(details, "modified workspace")
	}

	return v, strings.Join(details, ", ")
}
