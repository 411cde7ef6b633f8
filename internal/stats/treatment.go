package stats

import (
	"math/rand"

	"github.com/terrorizer1980/jetstream/internal/config"
	jserrors "github.com/terrorizer1980/jetstream/internal/errors"
	"github.com/terrorizer1980/jetstream/internal/experiment"
	"github.com/terrorizer1980/jetstream/internal/metric"
)

// Status of one statistical result row.
type Status string

const (
	// StatusOK is a normal numeric result.
	StatusOK Status = "ok"

	// StatusInsufficientData marks a branch suppressed below the metric's
	// minimum-unit-count threshold. Suppressed rows carry no numeric
	// estimate: a bootstrap interval from too few units would be
	// misleading, not merely imprecise.
	StatusInsufficientData Status = "insufficient_data"
)

// Comparison labels for branch-pair results.
const (
	ComparisonDifference     = "difference"
	ComparisonRelativeUplift = "relative_uplift"
)

// Result is one terminal statistics row for a (metric, branch, window) or a
// branch-pair comparison. Immutable once emitted; a fresh run for the same
// (experiment, window) fully supersedes the prior result set.
//
// Field names are a stable export schema (dashboards depend on them);
// changes must be additive only.
type Result struct {
	Metric    string `json:"metric"`
	Statistic string `json:"statistic"`
	Branch    string `json:"branch"`

	// Comparison is empty for per-branch estimates, or one of the
	// Comparison* labels with ComparisonToBranch naming the control.
	Comparison         string `json:"comparison,omitempty"`
	ComparisonToBranch string `json:"comparisonToBranch,omitempty"`

	WindowKind  string `json:"windowKind"`
	WindowIndex int    `json:"windowIndex"`

	CIWidth    float64  `json:"ciWidth"`
	Point      *float64 `json:"point,omitempty"`
	Lower      *float64 `json:"lower,omitempty"`
	Upper      *float64 `json:"upper,omitempty"`
	SampleSize int      `json:"sampleSize"`
	Status     Status   `json:"status"`
}

// ApplyTreatment produces the statistical results for one metric in one
// window: a per-branch point estimate and bootstrap interval for every
// branch, then a comparison against the designated control branch for every
// other branch. If no control is designated, comparisons are omitted.
//
// Resampling is seeded per (experiment, window, metric, branch), so a rerun
// over unchanged rows is bit-identical.
func ApplyTreatment(
	rows []metric.Row,
	def metric.Definition,
	exp *experiment.Experiment,
	window experiment.AnalysisWindow,
	cfg config.AnalysisConfig,
) ([]Result, error) {
	samples, qualifying := branchSamples(rows, def.Name)
	threshold := def.Threshold(cfg.DefaultMinSampleSize)

	var results []Result
	estimates := make(map[string]branchEstimate, len(exp.Branches))

	// Per-branch estimates first; comparisons depend on them.
	for _, branch := range exp.Branches {
		values := samples[branch]
		res := Result{
			Metric:      def.Name,
			Statistic:   "mean",
			Branch:      branch,
			WindowKind:  string(window.Kind),
			WindowIndex: window.Index,
			CIWidth:     cfg.ConfidenceLevel,
			SampleSize:  len(values),
		}

		// The threshold counts qualifying units (units with actual data);
		// zero-filled rows pad the sample but do not make it sufficient.
		if qualifying[branch] < threshold {
			res.Status = StatusInsufficientData
			results = append(results, res)
			continue
		}

		seed := SeedFor(exp.ID, window.Key(), def.Name, branch)
		if !checkFinite(values) {
			return nil, &jserrors.StatisticalComputationError{
				Metric: def.Name, Branch: branch, Seed: seed,
				Reason: "non-finite value in metric sample",
			}
		}

		point := mean(values)
		lower, upper := point, point
		if !constant(values) {
			rng := rand.New(rand.NewSource(seed))
			boot := resampleMeans(rng, values, cfg.Resamples)
			lower, upper = percentileInterval(boot, cfg.ConfidenceLevel)
		}

		res.Status = StatusOK
		res.Point, res.Lower, res.Upper = &point, &lower, &upper
		results = append(results, res)
		estimates[branch] = branchEstimate{values: values, point: point}
	}

	if exp.ControlBranch == "" {
		return results, nil
	}

	control, ok := estimates[exp.ControlBranch]
	if !ok {
		// Control suppressed: no comparison can be anchored.
		return results, nil
	}

	for _, branch := range exp.Branches {
		if branch == exp.ControlBranch {
			continue
		}
		treatment, ok := estimates[branch]
		if !ok {
			continue // suppressed branch
		}
		results = append(results,
			compare(def, exp, window, cfg, branch, treatment, control)...)
	}

	return results, nil
}

type branchEstimate struct {
	values []float64
	point  float64
}

// compare produces the difference (and, when the control estimate is
// non-zero, relative uplift) results for one treatment branch against the
// control.
func compare(
	def metric.Definition,
	exp *experiment.Experiment,
	window experiment.AnalysisWindow,
	cfg config.AnalysisConfig,
	branch string,
	treatment, control branchEstimate,
) []Result {
	base := Result{
		Metric:             def.Name,
		Statistic:          "mean",
		Branch:             branch,
		ComparisonToBranch: exp.ControlBranch,
		WindowKind:         string(window.Kind),
		WindowIndex:        window.Index,
		CIWidth:            cfg.ConfidenceLevel,
		SampleSize:         len(treatment.values),
		Status:             StatusOK,
	}

	diffPoint := treatment.point - control.point

	degenerate := constant(treatment.values) && constant(control.values)

	var diffSamples []float64
	if !degenerate {
		seed := SeedFor(exp.ID, window.Key(), def.Name, branch, "vs", exp.ControlBranch)
		rng := rand.New(rand.NewSource(seed))
		diffSamples = make([]float64, cfg.Resamples)
		for i := range diffSamples {
			mt := resampleMean(rng, treatment.values)
			mc := resampleMean(rng, control.values)
			diffSamples[i] = mt - mc
		}
	}

	diff := base
	diff.Comparison = ComparisonDifference
	dp := diffPoint
	diff.Point = &dp
	if degenerate {
		diff.Lower, diff.Upper = &dp, &dp
	} else {
		lower, upper := percentileInterval(diffSamples, cfg.ConfidenceLevel)
		diff.Lower, diff.Upper = &lower, &upper
	}
	out := []Result{diff}

	if control.point == 0 {
		return out
	}

	uplift := base
	uplift.Comparison = ComparisonRelativeUplift
	up := diffPoint / control.point
	uplift.Point = &up
	if degenerate {
		uplift.Lower, uplift.Upper = &up, &up
	} else {
		// The uplift interval reuses the difference bootstrap with the
		// observed control point as denominator, keeping the interval
		// finite when a control resample happens to be zero.
		upliftSamples := make([]float64, len(diffSamples))
		for i, d := range diffSamples {
			upliftSamples[i] = d / control.point
		}
		lower, upper := percentileInterval(upliftSamples, cfg.ConfidenceLevel)
		uplift.Lower, uplift.Upper = &lower, &upper
	}
	return append(out, uplift)
}

// resampleMean draws one bootstrap resample and returns its mean.
func resampleMean(rng *rand.Rand, values []float64) float64 {
	var sum float64
	n := len(values)
	for i := 0; i < n; i++ {
		sum += values[rng.Intn(n)]
	}
	return sum / float64(n)
}

// branchSamples groups the non-missing values for one metric by branch and
// counts each branch's qualifying units (rows backed by actual events).
func branchSamples(rows []metric.Row, metricName string) (map[string][]float64, map[string]int) {
	out := make(map[string][]float64)
	qualifying := make(map[string]int)
	for _, r := range rows {
		if r.Metric != metricName || r.Missing {
			continue
		}
		out[r.Branch] = append(out[r.Branch], r.Value)
		if !r.ZeroFilled {
			qualifying[r.Branch]++
		}
	}
	return out, qualifying
}
