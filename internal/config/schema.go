// Package config provides configuration parsing and validation for
// experiment analysis.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for an experiment analysis.
//
// Example YAML:
//
//	experiment:
//	  id: "pref-flip-search-defaults"
//	  startDate: 2024-01-01
//	  branches: [control, treatment]
//	  controlBranch: control
//	metrics:
//	  - name: search_clicks
//	    type: count
//	    aggregation: count
//	  - name: active_hours
//	    type: continuous
//	    aggregation: sum
//	    valuePath: active_hours
//	analysis:
//	  confidenceLevel: 0.95
//	  resamples: 1000
type Config struct {
	// Experiment describes the experiment under analysis
	Experiment ExperimentConfig `json:"experiment" yaml:"experiment"`

	// Metrics are the metric definitions to compute per window
	Metrics []MetricConfig `json:"metrics" yaml:"metrics"`

	// Analysis contains global analysis settings
	Analysis AnalysisConfig `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// ExperimentConfig describes the experiment under analysis.
//
// The experiment definition is owned by an external configuration service;
// it is read-only here and treated as immutable once a run begins.
type ExperimentConfig struct {
	// ID is the experiment slug (unique, stable)
	ID string `json:"id" yaml:"id"`

	// StartDate is the first enrollment date (YYYY-MM-DD)
	StartDate Date `json:"startDate" yaml:"startDate"`

	// EndDate is the last date of the experiment, if decided (YYYY-MM-DD)
	EndDate *Date `json:"endDate,omitempty" yaml:"endDate,omitempty"`

	// Branches is the ordered list of branch names (unique, at least two)
	Branches []string `json:"branches" yaml:"branches"`

	// ControlBranch designates the branch comparisons are made against.
	// If empty, branch-pair comparisons are omitted.
	ControlBranch string `json:"controlBranch,omitempty" yaml:"controlBranch,omitempty"`

	// EnrollmentCriteria references the enrollment filter applied by the
	// raw dataset collaborator (opaque here)
	EnrollmentCriteria string `json:"enrollmentCriteria,omitempty" yaml:"enrollmentCriteria,omitempty"`
}

// MetricConfig is the declarative definition of one metric.
type MetricConfig struct {
	// Name is the metric name (unique within the config)
	Name string `json:"name" yaml:"name"`

	// Type is the statistical type: "binary", "count", or "continuous"
	Type string `json:"type" yaml:"type"`

	// Aggregation turns a unit's raw events into one value:
	// "exists", "count", "sum", "mean", "min", or "max"
	Aggregation string `json:"aggregation" yaml:"aggregation"`

	// ValuePath is a gjson path into the event payload; required for
	// sum/mean/min/max aggregations
	ValuePath string `json:"valuePath,omitempty" yaml:"valuePath,omitempty"`

	// AbsenceDefault controls how units with no qualifying events appear:
	// "zero" (an explicit zero value) or "missing" (a no-data marker).
	// Defaults to "zero" for binary/count metrics and "missing" for
	// continuous metrics.
	AbsenceDefault string `json:"absenceDefault,omitempty" yaml:"absenceDefault,omitempty"`

	// MinSampleSize suppresses results for branches with fewer qualifying
	// units. Zero means use the analysis-level default.
	MinSampleSize int `json:"minSampleSize,omitempty" yaml:"minSampleSize,omitempty"`
}

// AnalysisConfig contains global analysis settings.
//
// It is threaded explicitly through every computation rather than read from
// ambient state, so runs are deterministic and testable in isolation.
type AnalysisConfig struct {
	// ConfidenceLevel for bootstrap intervals (default: 0.95)
	ConfidenceLevel float64 `json:"confidenceLevel,omitempty" yaml:"confidenceLevel,omitempty"`

	// Resamples is the bootstrap resample count (default: 1000)
	Resamples int `json:"resamples,omitempty" yaml:"resamples,omitempty"`

	// DefaultMinSampleSize is the suppression threshold used when a metric
	// does not declare its own (default: 5)
	DefaultMinSampleSize int `json:"defaultMinSampleSize,omitempty" yaml:"defaultMinSampleSize,omitempty"`

	// MaxConcurrentWindows caps how many windows are processed in parallel
	// (default: number of CPUs, resolved by the orchestrator)
	MaxConcurrentWindows int `json:"maxConcurrentWindows,omitempty" yaml:"maxConcurrentWindows,omitempty"`

	// MaxConcurrentResamples caps concurrent heavy resampling tasks to
	// bound peak memory (default: 2)
	MaxConcurrentResamples int `json:"maxConcurrentResamples,omitempty" yaml:"maxConcurrentResamples,omitempty"`

	// QueryTimeout applies per raw-dataset query, not per run (default: 30s)
	QueryTimeout Duration `json:"queryTimeout,omitempty" yaml:"queryTimeout,omitempty"`
}

// Default analysis settings.
const (
	DefaultConfidenceLevel        = 0.95
	DefaultResamples              = 1000
	DefaultMinSampleSize          = 5
	DefaultMaxConcurrentResamples = 2
	DefaultQueryTimeout           = 30 * time.Second
)

// ApplyDefaults fills zero-valued analysis settings with their defaults.
func (a *AnalysisConfig) ApplyDefaults() {
	if a.ConfidenceLevel == 0 {
		a.ConfidenceLevel = DefaultConfidenceLevel
	}
	if a.Resamples == 0 {
		a.Resamples = DefaultResamples
	}
	if a.DefaultMinSampleSize == 0 {
		a.DefaultMinSampleSize = DefaultMinSampleSize
	}
	if a.MaxConcurrentResamples == 0 {
		a.MaxConcurrentResamples = DefaultMaxConcurrentResamples
	}
	if a.QueryTimeout == 0 {
		a.QueryTimeout = Duration(DefaultQueryTimeout)
	}
}

// Duration is a time.Duration with YAML/JSON string marshalling ("30s", "2m").
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", time.Duration(d).String())), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// dateLayout is the wire format for dates.
const dateLayout = "2006-01-02"

// Date is a calendar date (no time component) with YAML/JSON marshalling
// in YYYY-MM-DD form. All dates are interpreted in UTC.
type Date struct {
	time.Time
}

// NewDate creates a Date for the given year, month, and day (UTC).
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", d.Format(dateLayout))), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Date) MarshalYAML() (interface{}, error) {
	return d.Format(dateLayout), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Date) parse(s string) error {
	if s == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	d.Time = t.UTC()
	return nil
}

// String returns the date in YYYY-MM-DD form.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Time.IsZero()
}
