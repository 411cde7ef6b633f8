package stats

import (
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/terrorizer1980/jetstream/internal/config"
	jserrors "github.com/terrorizer1980/jetstream/internal/errors"
	"github.com/terrorizer1980/jetstream/internal/experiment"
	"github.com/terrorizer1980/jetstream/internal/metric"
)

func testConfig() config.AnalysisConfig {
	cfg := config.AnalysisConfig{}
	cfg.ApplyDefaults()
	return cfg
}

func testExperiment() *experiment.Experiment {
	return &experiment.Experiment{
		ID:            "test-experiment",
		StartDate:     time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Branches:      []string{"control", "treatment"},
		ControlBranch: "control",
	}
}

func dayWindow(index int) experiment.AnalysisWindow {
	return experiment.AnalysisWindow{Kind: experiment.WindowDaily, Index: index}
}

// valueRows builds qualifying rows for one branch, one per value.
func valueRows(metricName, branch string, values ...float64) []metric.Row {
	rows := make([]metric.Row, len(values))
	for i, v := range values {
		rows[i] = metric.Row{
			UnitID: fmt.Sprintf("%s-%d", branch, i),
			Branch: branch,
			Metric: metricName,
			Value:  v,
		}
	}
	return rows
}

// conversionRows builds a binary metric sample: converting units qualify
// with value 1, the rest are zero-filled.
func conversionRows(metricName, branch string, converting, total int) []metric.Row {
	rows := make([]metric.Row, total)
	for i := 0; i < total; i++ {
		rows[i] = metric.Row{
			UnitID: fmt.Sprintf("%s-%d", branch, i),
			Branch: branch,
			Metric: metricName,
		}
		if i < converting {
			rows[i].Value = 1
		} else {
			rows[i].ZeroFilled = true
		}
	}
	return rows
}

func continuousDef(name string) metric.Definition {
	return metric.Definition{
		Name:        name,
		Type:        metric.TypeContinuous,
		Aggregation: metric.AggSum,
		ValuePath:   "v",
		Absence:     metric.AbsenceMissing,
	}
}

func binaryDef(name string, minSample int) metric.Definition {
	return metric.Definition{
		Name:          name,
		Type:          metric.TypeBinary,
		Aggregation:   metric.AggExists,
		Absence:       metric.AbsenceZero,
		MinSampleSize: minSample,
	}
}

func TestApplyTreatmentBounds(t *testing.T) {
	rows := append(
		valueRows("hours", "control", 1.2, 3.4, 2.2, 0.5, 4.1, 2.8, 1.9, 3.3),
		valueRows("hours", "treatment", 2.1, 4.0, 3.2, 1.5, 5.1, 3.8, 2.9, 4.3)...,
	)

	results, err := ApplyTreatment(rows, continuousDef("hours"), testExperiment(), dayWindow(1), testConfig())
	if err != nil {
		t.Fatalf("ApplyTreatment failed: %v", err)
	}

	for _, r := range results {
		if r.Status != StatusOK {
			t.Fatalf("unexpected status %s for %s/%s", r.Status, r.Branch, r.Comparison)
		}
		if r.Point == nil || r.Lower == nil || r.Upper == nil {
			t.Fatalf("missing estimates on %+v", r)
		}
		if *r.Lower > *r.Point || *r.Point > *r.Upper {
			t.Errorf("interval violated for %s %s: %.4f [%.4f, %.4f]",
				r.Branch, r.Comparison, *r.Point, *r.Lower, *r.Upper)
		}
		// Non-degenerate samples must not collapse the interval.
		if r.Comparison == "" && *r.Lower == *r.Upper {
			t.Errorf("degenerate interval for varying sample: %+v", r)
		}
	}
}

func TestApplyTreatmentDeterministic(t *testing.T) {
	rows := append(
		valueRows("hours", "control", 1.2, 3.4, 2.2, 0.5, 4.1),
		valueRows("hours", "treatment", 2.1, 4.0, 3.2, 1.5, 5.1)...,
	)

	first, err := ApplyTreatment(rows, continuousDef("hours"), testExperiment(), dayWindow(1), testConfig())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := ApplyTreatment(rows, continuousDef("hours"), testExperiment(), dayWindow(1), testConfig())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	// Seeded resampling: reruns on unchanged data are bit-identical.
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated runs produced different results")
	}
}

func TestApplyTreatmentSeedVariesByBranchAndWindow(t *testing.T) {
	if SeedFor("exp", "day_1", "m", "control") == SeedFor("exp", "day_1", "m", "treatment") {
		t.Error("branch must contribute to the seed")
	}
	if SeedFor("exp", "day_1", "m", "control") == SeedFor("exp", "day_2", "m", "control") {
		t.Error("window must contribute to the seed")
	}
}

func TestApplyTreatmentZeroVariance(t *testing.T) {
	rows := append(
		valueRows("hours", "control", 2, 2, 2, 2, 2),
		valueRows("hours", "treatment", 3, 3, 3, 3, 3)...,
	)

	results, err := ApplyTreatment(rows, continuousDef("hours"), testExperiment(), dayWindow(1), testConfig())
	if err != nil {
		t.Fatalf("ApplyTreatment failed: %v", err)
	}

	for _, r := range results {
		if *r.Lower != *r.Point || *r.Point != *r.Upper {
			t.Errorf("constant sample must yield a degenerate interval, got %+v", r)
		}
	}

	// The difference is exact: 3 - 2 = 1.
	for _, r := range results {
		if r.Comparison == ComparisonDifference && *r.Point != 1 {
			t.Errorf("difference point = %v, want 1", *r.Point)
		}
		if r.Comparison == ComparisonRelativeUplift && *r.Point != 0.5 {
			t.Errorf("uplift point = %v, want 0.5", *r.Point)
		}
	}
}

func TestApplyTreatmentSuppression(t *testing.T) {
	// 3 converting units out of 10 in control with threshold 5: the branch
	// is suppressed and must carry no numeric interval.
	rows := append(
		conversionRows("retained", "control", 3, 10),
		conversionRows("retained", "treatment", 6, 10)...,
	)

	results, err := ApplyTreatment(rows, binaryDef("retained", 5), testExperiment(), dayWindow(1), testConfig())
	if err != nil {
		t.Fatalf("ApplyTreatment failed: %v", err)
	}

	var control, treatment *Result
	comparisons := 0
	for i := range results {
		r := &results[i]
		if r.Comparison != "" {
			comparisons++
			continue
		}
		switch r.Branch {
		case "control":
			control = r
		case "treatment":
			treatment = r
		}
	}

	if control == nil || treatment == nil {
		t.Fatal("expected one per-branch result per branch")
	}
	if control.Status != StatusInsufficientData {
		t.Errorf("control status = %s, want %s", control.Status, StatusInsufficientData)
	}
	if control.Point != nil || control.Lower != nil || control.Upper != nil {
		t.Error("suppressed result must not carry numeric estimates")
	}
	if control.SampleSize != 10 {
		t.Errorf("control sample size = %d, want 10", control.SampleSize)
	}
	if treatment.Status != StatusOK {
		t.Errorf("treatment status = %s, want ok", treatment.Status)
	}

	// With the control suppressed there is nothing to compare against.
	if comparisons != 0 {
		t.Errorf("expected no comparisons against a suppressed control, got %d", comparisons)
	}
}

func TestApplyTreatmentNoControl(t *testing.T) {
	exp := testExperiment()
	exp.ControlBranch = ""

	rows := append(
		valueRows("hours", "control", 1, 2, 3, 4, 5),
		valueRows("hours", "treatment", 2, 3, 4, 5, 6)...,
	)

	results, err := ApplyTreatment(rows, continuousDef("hours"), exp, dayWindow(1), testConfig())
	if err != nil {
		t.Fatalf("ApplyTreatment failed: %v", err)
	}

	for _, r := range results {
		if r.Comparison != "" {
			t.Errorf("comparisons must be omitted without a designated control, got %+v", r)
		}
	}
	if len(results) != 2 {
		t.Errorf("expected 2 per-branch results, got %d", len(results))
	}
}

func TestApplyTreatmentUpliftOmittedForZeroControl(t *testing.T) {
	rows := append(
		valueRows("hours", "control", 0, 0, 0, 0, 0),
		valueRows("hours", "treatment", 1, 2, 3, 4, 5)...,
	)

	results, err := ApplyTreatment(rows, continuousDef("hours"), testExperiment(), dayWindow(1), testConfig())
	if err != nil {
		t.Fatalf("ApplyTreatment failed: %v", err)
	}

	sawDifference := false
	for _, r := range results {
		if r.Comparison == ComparisonRelativeUplift {
			t.Error("relative uplift must be omitted when the control estimate is zero")
		}
		if r.Comparison == ComparisonDifference {
			sawDifference = true
		}
	}
	if !sawDifference {
		t.Error("expected a difference comparison")
	}
}

func TestApplyTreatmentNonFiniteInput(t *testing.T) {
	rows := append(
		valueRows("hours", "control", 1, 2, math.NaN(), 4, 5),
		valueRows("hours", "treatment", 2, 3, 4, 5, 6)...,
	)

	_, err := ApplyTreatment(rows, continuousDef("hours"), testExperiment(), dayWindow(1), testConfig())
	if err == nil {
		t.Fatal("expected statistical computation error")
	}
	if !jserrors.IsStatisticalError(err) {
		t.Errorf("expected StatisticalComputationError, got %T: %v", err, err)
	}
}

func TestApplyTreatmentOrdering(t *testing.T) {
	rows := append(
		valueRows("hours", "control", 1, 2, 3, 4, 5),
		valueRows("hours", "treatment", 2, 3, 4, 5, 6)...,
	)

	results, err := ApplyTreatment(rows, continuousDef("hours"), testExperiment(), dayWindow(1), testConfig())
	if err != nil {
		t.Fatalf("ApplyTreatment failed: %v", err)
	}

	// Branch point estimates come before any comparison that needs them.
	seenComparison := false
	for _, r := range results {
		if r.Comparison != "" {
			seenComparison = true
		} else if seenComparison {
			t.Fatal("per-branch estimate emitted after a comparison")
		}
	}
}
