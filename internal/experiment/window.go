package experiment

import (
	"fmt"
	"time"
)

// WindowKind identifies the kind of analysis window.
type WindowKind string

const (
	// WindowDaily is a 1-day window relative to each unit's enrollment.
	WindowDaily WindowKind = "day"

	// WindowWeekly is a 7-day window.
	WindowWeekly WindowKind = "week"

	// WindowGrowth is a 28-day window used for longer-term growth metrics.
	WindowGrowth WindowKind = "28_day"

	// WindowOverall spans from enrollment to the as-of date. It is
	// recomputed on every run while the experiment is active.
	WindowOverall WindowKind = "overall"
)

// PeriodDays returns the window period length in days, or 0 for the overall
// window.
func (k WindowKind) PeriodDays() int {
	switch k {
	case WindowDaily:
		return 1
	case WindowWeekly:
		return 7
	case WindowGrowth:
		return 28
	default:
		return 0
	}
}

// AnalysisWindow is one due (kind, offset) analysis window.
//
// Index is the 1-based period offset since enrollment start (day 1, week 2,
// ...); the overall window uses index 0 as a sentinel.
type AnalysisWindow struct {
	Kind  WindowKind `json:"kind"`
	Index int        `json:"index"`

	// Final marks the overall window's terminal recomputation: set once the
	// experiment's end date has passed, after which the overall result is
	// immutable.
	Final bool `json:"final,omitempty"`
}

// Key returns a stable identifier for the window, e.g. "day_3" or "overall".
func (w AnalysisWindow) Key() string {
	if w.Kind == WindowOverall {
		return string(WindowOverall)
	}
	return fmt.Sprintf("%s_%d", w.Kind, w.Index)
}

// PeriodLength returns the per-unit window length, or 0 for overall.
func (w AnalysisWindow) PeriodLength() time.Duration {
	return time.Duration(w.Kind.PeriodDays()) * 24 * time.Hour
}

// DueWindows returns the set of analysis windows due for (re)computation as
// of asOf.
//
// The function is pure and deterministic, and the returned set is
// monotonically non-shrinking as asOf advances: a window once due stays due,
// which is what makes recomputation safe. An asOf before enrollment start
// yields an empty set, not an error.
func DueWindows(exp *Experiment, asOf time.Time) []AnalysisWindow {
	elapsed := daysBetween(exp.StartDate, asOf)
	if elapsed <= 0 {
		return nil
	}

	// Periodic windows are bounded by the experiment end date: data past
	// the end does not exist, so no further windows ever become due.
	bounded := elapsed
	if exp.EndDate != nil {
		if endDays := daysBetween(exp.StartDate, *exp.EndDate); endDays < bounded {
			bounded = endDays
		}
	}

	var windows []AnalysisWindow
	for _, kind := range []WindowKind{WindowDaily, WindowWeekly, WindowGrowth} {
		period := kind.PeriodDays()
		for k := 1; k*period <= bounded; k++ {
			windows = append(windows, AnalysisWindow{Kind: kind, Index: k})
		}
	}

	// The overall window is due as soon as any time has elapsed and has no
	// terminal state while the experiment runs. Once the end date has
	// passed, the next run computes it one last time and marks it final.
	windows = append(windows, AnalysisWindow{
		Kind:  WindowOverall,
		Final: exp.Ended(asOf),
	})

	return windows
}

// daysBetween returns the number of complete days from a to b, by calendar
// date in UTC.
func daysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}
