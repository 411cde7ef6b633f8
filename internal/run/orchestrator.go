package run

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terrorizer1980/jetstream/internal/compute"
	"github.com/terrorizer1980/jetstream/internal/config"
	"github.com/terrorizer1980/jetstream/internal/datasource"
	"github.com/terrorizer1980/jetstream/internal/experiment"
	"github.com/terrorizer1980/jetstream/internal/export"
	"github.com/terrorizer1980/jetstream/internal/metric"
	"github.com/terrorizer1980/jetstream/internal/stats"
)

// Orchestrator composes the window policy, the metric computation engine,
// and the statistical treatment engine for one experiment run.
//
// Windows are independent: each reads immutable inputs and produces an
// independent output, so they run concurrently with no shared mutable state.
// The only mutable state is the per-run outcome slice, partitioned by window
// index so workers never contend.
type Orchestrator struct {
	dataset  datasource.RawDataset
	exporter export.Exporter
	cfg      config.AnalysisConfig
	logger   *slog.Logger

	// resampleSem caps concurrent heavy resampling tasks to bound peak
	// memory; resampling materializes repeated copies of the metric table.
	resampleSem chan struct{}
}

// New creates an Orchestrator. The dataset is wrapped with the configured
// per-query timeout; a nil logger discards output.
func New(ds datasource.RawDataset, exporter export.Exporter, cfg config.AnalysisConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		dataset:     datasource.WithTimeout(ds, time.Duration(cfg.QueryTimeout)),
		exporter:    exporter,
		cfg:         cfg,
		logger:      logger,
		resampleSem: make(chan struct{}, cfg.MaxConcurrentResamples),
	}
}

// Run executes one analysis run for the experiment as of asOf.
//
// Each due window is processed independently: a window failure is recorded
// and its siblings continue. Successful windows are exported even when the
// run ends in partial failure; failed windows are picked up again on the
// next scheduled run. Cancellation is cooperative between windows — window
// results are all-or-nothing, so mid-window cancellation is not supported.
func (o *Orchestrator) Run(
	ctx context.Context,
	exp *experiment.Experiment,
	reg *metric.Registry,
	asOf time.Time,
) (*Result, error) {
	result := &Result{
		RunID:        uuid.NewString(),
		ExperimentID: exp.ID,
		AsOf:         asOf,
		StartedAt:    time.Now().UTC(),
	}

	windows := experiment.DueWindows(exp, asOf)
	o.logger.Info("windows resolved",
		"experiment", exp.ID, "run", result.RunID,
		"asOf", asOf.Format("2006-01-02"), "due", len(windows))

	if len(windows) == 0 {
		result.Status = StatusSucceeded
		result.FinishedAt = time.Now().UTC()
		return result, nil
	}

	outcomes := make([]WindowOutcome, len(windows))

	workers := o.cfg.MaxConcurrentWindows
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, w := range windows {
		wg.Add(1)
		go func(i int, w experiment.AnalysisWindow) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// Cooperative checkpoint: once a window starts it runs to
			// completion, but cancelled runs start no further windows.
			if err := ctx.Err(); err != nil {
				outcomes[i] = WindowOutcome{Window: w, State: StateFailed, Error: err.Error()}
				return
			}
			outcomes[i] = o.processWindow(ctx, exp, reg, w, asOf, result.RunID)
		}(i, w)
	}
	wg.Wait()

	result.Windows = outcomes
	result.Status = aggregateStatus(outcomes)
	result.FinishedAt = time.Now().UTC()

	o.logger.Info("run finished",
		"experiment", exp.ID, "run", result.RunID, "status", result.Status)
	return result, nil
}

// processWindow walks one window through compute, treatment, and export.
// All-or-nothing: any failure discards the window's partial output.
func (o *Orchestrator) processWindow(
	ctx context.Context,
	exp *experiment.Experiment,
	reg *metric.Registry,
	window experiment.AnalysisWindow,
	asOf time.Time,
	runID string,
) WindowOutcome {
	outcome := WindowOutcome{Window: window, State: StateComputing}
	log := o.logger.With("experiment", exp.ID, "window", window.Key())

	computed, err := compute.ComputeMetrics(ctx, exp, window, o.dataset, reg, asOf)
	if err != nil {
		log.Error("metric computation failed", "error", err)
		return WindowOutcome{Window: window, State: StateFailed, Error: err.Error()}
	}

	var results []stats.Result
	for _, def := range reg.Definitions() {
		treated, err := o.applyTreatment(computed.Rows, def, exp, window)
		if err != nil {
			// A statistical failure in any metric fails the window:
			// exports are all-or-nothing per window.
			log.Error("statistical treatment failed", "metric", def.Name, "error", err)
			return WindowOutcome{Window: window, State: StateFailed, Error: err.Error()}
		}
		results = append(results, treated...)
	}
	outcome.State = StateTreatmentApplied
	outcome.Results = results
	outcome.Distributions = computed.Distributions

	err = o.exporter.ExportWindow(ctx, &export.WindowResults{
		RunID:         runID,
		ExperimentID:  exp.ID,
		AsOf:          asOf,
		GeneratedAt:   time.Now().UTC(),
		Window:        window,
		Results:       results,
		Distributions: computed.Distributions,
	})
	if err != nil {
		log.Error("export failed", "error", err)
		return WindowOutcome{Window: window, State: StateFailed, Error: err.Error()}
	}

	outcome.State = StateExported
	log.Info("window exported", "results", len(results))
	return outcome
}

// applyTreatment runs the treatment engine under the resampling concurrency
// cap.
func (o *Orchestrator) applyTreatment(
	rows []metric.Row,
	def metric.Definition,
	exp *experiment.Experiment,
	window experiment.AnalysisWindow,
) ([]stats.Result, error) {
	o.resampleSem <- struct{}{}
	defer func() { <-o.resampleSem }()
	return stats.ApplyTreatment(rows, def, exp, window, o.cfg)
}
