// Package stats applies statistical treatments to per-unit metric tables:
// seeded percentile-bootstrap point estimates, confidence intervals, and
// branch-pair comparisons.
package stats

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// SeedFor derives a deterministic PRNG seed from the identifying parts of a
// resampling task (experiment, window, metric, branch, ...). Repeated runs
// on unchanged data therefore produce bit-identical results.
func SeedFor(parts ...string) int64 {
	h := fnv.New64a()
	h.Write([]byte(strings.Join(parts, "|")))
	return int64(h.Sum64())
}

// resampleMeans draws resamples bootstrap samples (with replacement) from
// values and returns the mean of each. The caller owns the rng so seeding
// stays explicit.
func resampleMeans(rng *rand.Rand, values []float64, resamples int) []float64 {
	n := len(values)
	means := make([]float64, resamples)
	for i := 0; i < resamples; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += values[rng.Intn(n)]
		}
		means[i] = sum / float64(n)
	}
	return means
}

// percentileInterval returns the empirical (alpha/2, 1-alpha/2) quantiles of
// the bootstrap samples for the given confidence level.
func percentileInterval(samples []float64, confidence float64) (lower, upper float64) {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	alpha := 1 - confidence
	lower = stat.Quantile(alpha/2, stat.Empirical, sorted, nil)
	upper = stat.Quantile(1-alpha/2, stat.Empirical, sorted, nil)
	return lower, upper
}

// mean returns the arithmetic mean of values.
func mean(values []float64) float64 {
	return stat.Mean(values, nil)
}

// constant reports whether all values are equal (zero variance). Constant
// samples get a degenerate interval instead of a resampling pass.
func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// checkFinite returns false if any value is NaN or infinite.
func checkFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
