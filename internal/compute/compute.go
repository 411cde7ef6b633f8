// Package compute joins enrollment records with raw events and produces the
// per-unit metric table for one analysis window.
package compute

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/terrorizer1980/jetstream/internal/datasource"
	jserrors "github.com/terrorizer1980/jetstream/internal/errors"
	"github.com/terrorizer1980/jetstream/internal/experiment"
	"github.com/terrorizer1980/jetstream/internal/metric"
)

// Result is the metric table for one (experiment, window) pair, plus
// per-(metric, branch) value distributions for reporting.
//
// Results are recomputed wholesale on every run; given identical inputs the
// row sequence is identical, which is what makes recomputation idempotent.
type Result struct {
	Window        experiment.AnalysisWindow
	Rows          []metric.Row
	Distributions []Distribution
}

// ComputeMetrics computes the per-unit metric table for one window.
//
// For day/week/growth windows, window k of period length L covers the
// per-unit interval [enrollment+(k-1)·L, enrollment+k·L); a unit is included
// only if that interval has fully elapsed by asOf. The overall window covers
// [enrollment, asOf) and includes every unit enrolled before asOf. Units
// outside a window are excluded entirely, not included with nulls, so
// per-window sample sizes stay meaningful.
//
// Any dataset failure or schema mismatch fails the whole window with a
// data-source error: a partially joined table would silently bias estimates.
func ComputeMetrics(
	ctx context.Context,
	exp *experiment.Experiment,
	window experiment.AnalysisWindow,
	ds datasource.RawDataset,
	reg *metric.Registry,
	asOf time.Time,
) (*Result, error) {
	enrollments, err := ds.Enrollments(ctx, exp.ID)
	if err != nil {
		return nil, jserrors.NewDataSourceError(window.Key(), err)
	}

	included, err := includedUnits(exp, window, enrollments, asOf)
	if err != nil {
		return nil, err
	}
	if len(included) == 0 {
		return &Result{Window: window}, nil
	}

	// One envelope query for the window; per-unit bounds are applied while
	// grouping. Enrollments never precede the experiment start, so the
	// envelope lower bound is safe.
	from := exp.StartDate
	if period := window.PeriodLength(); period > 0 {
		from = exp.StartDate.Add(time.Duration(window.Index-1) * period)
	}
	events, err := ds.Events(ctx, exp.ID, from, asOf)
	if err != nil {
		return nil, jserrors.NewDataSourceError(window.Key(), err)
	}

	payloadsByUnit := groupEvents(window, included, events, asOf)

	res := &Result{Window: window}
	hists := newDistributionSet()

	for _, def := range reg.Definitions() {
		for _, unit := range included {
			payloads := payloadsByUnit[unit.UnitID]
			value, absent, aggErr := def.Aggregate(payloads)
			if aggErr != nil {
				// Schema mismatch in a payload poisons the whole window.
				return nil, jserrors.NewDataSourceError(window.Key(), aggErr)
			}
			row := metric.Row{
				UnitID: unit.UnitID,
				Branch: unit.Branch,
				Metric: def.Name,
				Value:  value,
			}
			if absent {
				if def.Absence == metric.AbsenceMissing {
					row.Missing = true
				} else {
					row.ZeroFilled = true
				}
			}
			res.Rows = append(res.Rows, row)
			if !row.Missing {
				hists.record(def.Name, unit.Branch, row.Value)
			}
		}
	}

	sort.Slice(res.Rows, func(i, j int) bool {
		a, b := res.Rows[i], res.Rows[j]
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		return a.UnitID < b.UnitID
	})

	res.Distributions = hists.snapshots()
	return res, nil
}

// includedUnits filters enrollments down to the units whose personal window
// has fully elapsed, validating branch assignments against the experiment.
func includedUnits(
	exp *experiment.Experiment,
	window experiment.AnalysisWindow,
	enrollments []experiment.Enrollment,
	asOf time.Time,
) ([]experiment.Enrollment, error) {
	period := window.PeriodLength()

	var included []experiment.Enrollment
	for _, e := range enrollments {
		if !exp.HasBranch(e.Branch) {
			return nil, jserrors.NewDataSourceError(window.Key(),
				fmt.Errorf("enrollment for unit %s references unknown branch %q", e.UnitID, e.Branch))
		}

		if period > 0 {
			windowEnd := e.EnrolledAt.Add(time.Duration(window.Index) * period)
			if windowEnd.After(asOf) {
				continue
			}
		} else if !e.EnrolledAt.Before(asOf) {
			continue
		}
		included = append(included, e)
	}

	sort.Slice(included, func(i, j int) bool {
		return included[i].UnitID < included[j].UnitID
	})
	return included, nil
}

// groupEvents buckets event payloads by unit, keeping only events inside
// each unit's personal window interval.
func groupEvents(
	window experiment.AnalysisWindow,
	included []experiment.Enrollment,
	events []datasource.Event,
	asOf time.Time,
) map[string][]string {
	period := window.PeriodLength()

	bounds := make(map[string][2]time.Time, len(included))
	for _, e := range included {
		if period > 0 {
			start := e.EnrolledAt.Add(time.Duration(window.Index-1) * period)
			bounds[e.UnitID] = [2]time.Time{start, start.Add(period)}
		} else {
			bounds[e.UnitID] = [2]time.Time{e.EnrolledAt, asOf}
		}
	}

	payloads := make(map[string][]string, len(included))
	for _, ev := range events {
		b, ok := bounds[ev.UnitID]
		if !ok {
			continue // unit not in this window
		}
		if ev.Timestamp.Before(b[0]) || !ev.Timestamp.Before(b[1]) {
			continue
		}
		payloads[ev.UnitID] = append(payloads[ev.UnitID], ev.Payload)
	}
	return payloads
}
