// Package errors defines the error taxonomy shared across the analysis
// pipeline.
//
// The taxonomy mirrors how failures propagate:
//   - ConfigError: the experiment definition is unusable. Fatal; no run is
//     attempted.
//   - DataSourceError: the raw dataset was unreachable or returned rows that
//     don't match the expected schema. Fails the affected window only.
//   - StatisticalComputationError: a numeric failure during resampling.
//     Fails the affected metric/window only.
//
// Insufficient data is deliberately NOT an error: it produces a suppressed
// result row instead (see the stats package).
package errors

import (
	"errors"
	"fmt"
)

// ConfigError indicates an unresolvable or invalid experiment definition.
type ConfigError struct {
	Experiment string
	Reason     string
}

func (e *ConfigError) Error() string {
	if e.Experiment != "" {
		return fmt.Sprintf("config error for experiment %q: %s", e.Experiment, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// NewConfigError creates a ConfigError for the given experiment.
func NewConfigError(experiment, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Experiment: experiment, Reason: fmt.Sprintf(format, args...)}
}

// DataSourceError indicates the raw dataset was unreachable or malformed.
// The whole window computation fails; a partially joined metric table would
// silently bias estimates.
type DataSourceError struct {
	Window string
	Err    error
}

func (e *DataSourceError) Error() string {
	if e.Window != "" {
		return fmt.Sprintf("data source error for window %s: %v", e.Window, e.Err)
	}
	return fmt.Sprintf("data source error: %v", e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// NewDataSourceError wraps err as a window-scoped data source failure.
func NewDataSourceError(window string, err error) *DataSourceError {
	return &DataSourceError{Window: window, Err: err}
}

// StatisticalComputationError indicates a numeric failure during resampling,
// e.g. a non-finite input value. It records the seed so the failure can be
// reproduced deterministically.
type StatisticalComputationError struct {
	Metric string
	Branch string
	Seed   int64
	Reason string
}

func (e *StatisticalComputationError) Error() string {
	return fmt.Sprintf("statistical computation failed for metric %q branch %q (seed %d): %s",
		e.Metric, e.Branch, e.Seed, e.Reason)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsDataSourceError reports whether err is (or wraps) a DataSourceError.
func IsDataSourceError(err error) bool {
	var de *DataSourceError
	return errors.As(err, &de)
}

// IsStatisticalError reports whether err is (or wraps) a
// StatisticalComputationError.
func IsStatisticalError(err error) bool {
	var se *StatisticalComputationError
	return errors.As(err, &se)
}
