// Package run orchestrates an analysis run: window resolution, metric
// computation, statistical treatment, and export, with per-window failure
// isolation.
package run

import (
	"time"

	"github.com/terrorizer1980/jetstream/internal/compute"
	"github.com/terrorizer1980/jetstream/internal/experiment"
	"github.com/terrorizer1980/jetstream/internal/stats"
)

// WindowState tracks one window through the run state machine.
type WindowState string

const (
	StatePending          WindowState = "pending"
	StateComputing        WindowState = "computing"
	StateTreatmentApplied WindowState = "treatment_applied"
	StateExported         WindowState = "exported"
	StateFailed           WindowState = "failed"
)

// RunStatus is the aggregate status of a run across its windows.
type RunStatus string

const (
	// StatusSucceeded means every due window was computed and exported.
	StatusSucceeded RunStatus = "succeeded"

	// StatusPartialFailure means some windows failed; the successful ones
	// were still exported and the failed ones will be retried on the next
	// scheduled run.
	StatusPartialFailure RunStatus = "partial_failure"

	// StatusFailed means no window succeeded.
	StatusFailed RunStatus = "failed"
)

// WindowOutcome is the terminal record for one window in a run.
type WindowOutcome struct {
	Window experiment.AnalysisWindow `json:"window"`
	State  WindowState               `json:"state"`

	// Error is the failure reason when State is StateFailed.
	Error string `json:"error,omitempty"`

	// Results and Distributions are present for exported windows.
	Results       []stats.Result         `json:"results,omitempty"`
	Distributions []compute.Distribution `json:"distributions,omitempty"`
}

// Result is the versioned outcome of one orchestrated run.
type Result struct {
	RunID        string          `json:"runId"`
	ExperimentID string          `json:"experimentId"`
	AsOf         time.Time       `json:"asOf"`
	StartedAt    time.Time       `json:"startedAt"`
	FinishedAt   time.Time       `json:"finishedAt"`
	Status       RunStatus       `json:"status"`
	Windows      []WindowOutcome `json:"windows"`
}

// aggregateStatus folds window outcomes into the run-level status.
func aggregateStatus(outcomes []WindowOutcome) RunStatus {
	if len(outcomes) == 0 {
		return StatusSucceeded
	}
	var failed, exported int
	for _, o := range outcomes {
		switch o.State {
		case StateFailed:
			failed++
		case StateExported:
			exported++
		}
	}
	switch {
	case failed == 0:
		return StatusSucceeded
	case exported == 0:
		return StatusFailed
	default:
		return StatusPartialFailure
	}
}
