// Package metric defines declarative metric definitions and their
// aggregation rules.
//
// Metrics form a closed set of tagged variants (binary, count, continuous)
// rather than open-ended dynamic dispatch: every statistical-treatment
// decision downstream switches over this finite set.
package metric

import (
	"github.com/terrorizer1980/jetstream/internal/config"
	jserrors "github.com/terrorizer1980/jetstream/internal/errors"
)

// StatisticalType tags a metric with the statistical treatment it is
// compatible with.
type StatisticalType string

const (
	// TypeBinary is a yes/no outcome per unit (conversion-style).
	TypeBinary StatisticalType = "binary"

	// TypeCount is a non-negative event count per unit.
	TypeCount StatisticalType = "count"

	// TypeContinuous is a real-valued measurement per unit.
	TypeContinuous StatisticalType = "continuous"
)

// Aggregation identifies how a unit's raw events collapse into one value.
type Aggregation string

const (
	// AggExists yields 1 if the unit has any qualifying event, else 0.
	AggExists Aggregation = "exists"

	// AggCount yields the number of qualifying events.
	AggCount Aggregation = "count"

	// AggSum sums the extracted payload values.
	AggSum Aggregation = "sum"

	// AggMean averages the extracted payload values.
	AggMean Aggregation = "mean"

	// AggMin takes the minimum extracted payload value.
	AggMin Aggregation = "min"

	// AggMax takes the maximum extracted payload value.
	AggMax Aggregation = "max"
)

// AbsenceDefault controls how a unit with no qualifying events appears in
// the metric table. Absence is never silent: a unit either contributes an
// explicit zero or an explicit missing marker.
type AbsenceDefault string

const (
	// AbsenceZero includes the unit with an explicit zero value.
	AbsenceZero AbsenceDefault = "zero"

	// AbsenceMissing includes the unit with a no-data marker; it is
	// excluded from the statistical sample.
	AbsenceMissing AbsenceDefault = "missing"
)

// Definition is one declarative metric specification.
type Definition struct {
	// Name is unique within a registry.
	Name string

	// Type selects the statistical treatment.
	Type StatisticalType

	// Aggregation collapses a unit's events into one value.
	Aggregation Aggregation

	// ValuePath is a gjson path into the event payload, required for
	// sum/mean/min/max.
	ValuePath string

	// Absence decides zero-fill vs missing for units with no events.
	Absence AbsenceDefault

	// MinSampleSize suppresses results for branches with fewer qualifying
	// units; 0 means use the analysis-level default.
	MinSampleSize int
}

// DefinitionFromConfig builds a Definition from a validated metric config,
// applying the type-dependent absence default (zero for binary/count,
// missing for continuous).
func DefinitionFromConfig(cfg config.MetricConfig) (Definition, error) {
	def := Definition{
		Name:          cfg.Name,
		Type:          StatisticalType(cfg.Type),
		Aggregation:   Aggregation(cfg.Aggregation),
		ValuePath:     cfg.ValuePath,
		Absence:       AbsenceDefault(cfg.AbsenceDefault),
		MinSampleSize: cfg.MinSampleSize,
	}

	switch def.Type {
	case TypeBinary, TypeCount, TypeContinuous:
	default:
		return Definition{}, jserrors.NewConfigError("", "metric %q: unknown statistical type %q", cfg.Name, cfg.Type)
	}

	switch def.Aggregation {
	case AggExists, AggCount, AggSum, AggMean, AggMin, AggMax:
	default:
		return Definition{}, jserrors.NewConfigError("", "metric %q: unknown aggregation %q", cfg.Name, cfg.Aggregation)
	}

	if def.Absence == "" {
		switch def.Type {
		case TypeContinuous:
			def.Absence = AbsenceMissing
		default:
			def.Absence = AbsenceZero
		}
	}

	return def, nil
}

// Threshold returns the effective suppression threshold for this metric.
func (d Definition) Threshold(defaultMin int) int {
	if d.MinSampleSize > 0 {
		return d.MinSampleSize
	}
	return defaultMin
}

// Row is one cell of the per-unit metric table for a window: one analysis
// unit, one branch, one metric. Rows are derived data, recomputed wholesale
// for a (experiment, window) pair rather than patched incrementally.
type Row struct {
	UnitID string  `json:"unitId"`
	Branch string  `json:"branch"`
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`

	// Missing marks a unit with no qualifying events under the missing
	// absence default. Missing rows are kept in the table (absence must be
	// visible) but excluded from the statistical sample.
	Missing bool `json:"missing,omitempty"`

	// ZeroFilled marks a unit with no qualifying events under the zero
	// absence default. Zero-filled rows are part of the statistical sample
	// but do not count toward the qualifying-unit suppression threshold.
	ZeroFilled bool `json:"zeroFilled,omitempty"`
}
