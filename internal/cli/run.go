package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/terrorizer1980/jetstream/internal/config"
	"github.com/terrorizer1980/jetstream/internal/datasource"
	"github.com/terrorizer1980/jetstream/internal/experiment"
	"github.com/terrorizer1980/jetstream/internal/export"
	"github.com/terrorizer1980/jetstream/internal/metric"
	"github.com/terrorizer1980/jetstream/internal/output"
	"github.com/terrorizer1980/jetstream/internal/run"
)

var (
	runConfigPath string
	runDate       string
	runDBPath     string
	runOutDir     string
	runNoColor    bool
	runVerbose    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run experiment analysis as of a date",
	Long: `Run computes all due analysis windows for the configured experiment as of
the given date, applies statistical treatments, and exports one result table
per window.

Windows fail independently: a failed window is reported and retried on the
next scheduled run while its siblings still export.

Example:
  jetstream run --config experiment.yaml --db events.db --date 2024-01-08`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return err
		}

		asOf := time.Now().UTC()
		if runDate != "" {
			asOf, err = time.Parse("2006-01-02", runDate)
			if err != nil {
				return fmt.Errorf("invalid --date %q (want YYYY-MM-DD): %w", runDate, err)
			}
		}

		exp, err := experiment.FromConfig(&cfg.Experiment)
		if err != nil {
			return err
		}
		reg, err := metric.RegistryFromConfig(cfg.Metrics)
		if err != nil {
			return err
		}

		store, err := datasource.OpenSQLite(runDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		exporter, err := export.NewJSONExporter(runOutDir)
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if runVerbose {
			level = slog.LevelInfo
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		// Cancellation is cooperative between windows; an interrupt lets
		// in-flight windows finish and skips the rest.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch := run.New(store, exporter, cfg.Analysis, logger)
		result, err := orch.Run(ctx, exp, reg, asOf)
		if err != nil {
			return err
		}

		formatter := output.NewFormatter(os.Stdout, runNoColor)
		formatter.FormatRun(result)

		if result.Status == run.StatusFailed {
			return fmt.Errorf("analysis failed for all %d windows", len(result.Windows))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Path to the experiment analysis config (YAML or JSON)")
	runCmd.Flags().StringVar(&runDate, "date", "", "As-of date (YYYY-MM-DD, default: today UTC)")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "Path to the SQLite raw dataset")
	runCmd.Flags().StringVarP(&runOutDir, "out", "o", "results", "Directory for exported result tables")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "Disable colored output")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose logging")
	runCmd.MarkFlagRequired("config")
	runCmd.MarkFlagRequired("db")
}
