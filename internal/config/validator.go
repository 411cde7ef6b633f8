package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire analysis configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation
// errors.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateExperiment(&c.Experiment, errs)

	if len(c.Metrics) == 0 {
		errs.Add("metrics", "at least one metric is required")
	}
	seen := make(map[string]bool, len(c.Metrics))
	for i, m := range c.Metrics {
		prefix := fmt.Sprintf("metrics[%d]", i)
		validateMetric(prefix, &m, errs)
		if seen[m.Name] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate metric name: %s", m.Name))
		}
		seen[m.Name] = true
	}

	validateAnalysis(&c.Analysis, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateExperiment validates the experiment definition.
func validateExperiment(exp *ExperimentConfig, errs *ValidationErrors) {
	if exp.ID == "" {
		errs.Add("experiment.id", "experiment id is required")
	}
	if exp.StartDate.IsZero() {
		errs.Add("experiment.startDate", "start date is required")
	}
	if exp.EndDate != nil && !exp.EndDate.IsZero() && !exp.StartDate.IsZero() {
		if exp.EndDate.Before(exp.StartDate.Time) {
			errs.Add("experiment.endDate", "end date precedes start date")
		}
	}

	if len(exp.Branches) < 2 {
		errs.Add("experiment.branches", "at least two branches are required")
	}
	branchSet := make(map[string]bool, len(exp.Branches))
	for _, b := range exp.Branches {
		if b == "" {
			errs.Add("experiment.branches", "branch names must be non-empty")
			continue
		}
		if branchSet[b] {
			errs.Add("experiment.branches", fmt.Sprintf("duplicate branch name: %s", b))
		}
		branchSet[b] = true
	}

	if exp.ControlBranch != "" && !branchSet[exp.ControlBranch] {
		errs.Add("experiment.controlBranch",
			fmt.Sprintf("control branch %q is not in the branch list", exp.ControlBranch))
	}
}

// validateMetric validates a single metric definition.
func validateMetric(prefix string, m *MetricConfig, errs *ValidationErrors) {
	if m.Name == "" {
		errs.Add(prefix+".name", "metric name is required")
	}

	validTypes := map[string]bool{"binary": true, "count": true, "continuous": true}
	if m.Type == "" {
		errs.Add(prefix+".type", "statistical type is required")
	} else if !validTypes[m.Type] {
		errs.Add(prefix+".type", fmt.Sprintf("unknown statistical type: %s", m.Type))
	}

	validAggs := map[string]bool{
		"exists": true, "count": true, "sum": true,
		"mean": true, "min": true, "max": true,
	}
	if m.Aggregation == "" {
		errs.Add(prefix+".aggregation", "aggregation is required")
	} else if !validAggs[m.Aggregation] {
		errs.Add(prefix+".aggregation", fmt.Sprintf("unknown aggregation: %s", m.Aggregation))
	}

	// Value-based aggregations need a payload path to extract from.
	switch m.Aggregation {
	case "sum", "mean", "min", "max":
		if m.ValuePath == "" {
			errs.Add(prefix+".valuePath",
				fmt.Sprintf("valuePath is required for %s aggregation", m.Aggregation))
		}
	}

	// A binary metric is a yes/no per unit; only exists makes sense.
	if m.Type == "binary" && m.Aggregation != "" && m.Aggregation != "exists" {
		errs.Add(prefix+".aggregation",
			fmt.Sprintf("binary metrics require the exists aggregation, got %s", m.Aggregation))
	}

	if m.AbsenceDefault != "" && m.AbsenceDefault != "zero" && m.AbsenceDefault != "missing" {
		errs.Add(prefix+".absenceDefault",
			fmt.Sprintf("absenceDefault must be zero or missing, got %s", m.AbsenceDefault))
	}

	if m.MinSampleSize < 0 {
		errs.Add(prefix+".minSampleSize", "minSampleSize must be non-negative")
	}
}

// validateAnalysis validates the global analysis settings.
func validateAnalysis(a *AnalysisConfig, errs *ValidationErrors) {
	if a.ConfidenceLevel < 0 || a.ConfidenceLevel >= 1 {
		errs.Add("analysis.confidenceLevel", "confidence level must be in (0, 1)")
	}
	if a.Resamples < 0 {
		errs.Add("analysis.resamples", "resamples must be non-negative")
	}
	if a.MaxConcurrentWindows < 0 {
		errs.Add("analysis.maxConcurrentWindows", "maxConcurrentWindows must be non-negative")
	}
	if a.MaxConcurrentResamples < 0 {
		errs.Add("analysis.maxConcurrentResamples", "maxConcurrentResamples must be non-negative")
	}
}
