package compute

import (
	"sort"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Distribution summarizes the per-unit value distribution for one
// (metric, branch) pair in a window. It is reporting-only: statistical
// estimates come from the treatment engine, not from these summaries.
type Distribution struct {
	Metric string  `json:"metric"`
	Branch string  `json:"branch"`
	Count  int64   `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// Values are recorded in fixed-point thousandths so the integer HDR
// histogram can hold fractional metric values with millesimal precision.
const (
	histScale = 1000
	histMin   = 1
	histMax   = 100_000_000_000 // 100M units of value, in thousandths
	histFigs  = 3
)

// distributionSet accumulates one HDR histogram per (metric, branch).
type distributionSet struct {
	hists map[string]*hdrhistogram.Histogram
	keys  []distKey
}

type distKey struct {
	metric string
	branch string
}

func newDistributionSet() *distributionSet {
	return &distributionSet{hists: make(map[string]*hdrhistogram.Histogram)}
}

func (d *distributionSet) record(metricName, branch string, value float64) {
	key := metricName + "\x00" + branch
	hist, ok := d.hists[key]
	if !ok {
		hist = hdrhistogram.New(histMin, histMax, histFigs)
		d.hists[key] = hist
		d.keys = append(d.keys, distKey{metric: metricName, branch: branch})
	}

	scaled := int64(value * histScale)
	if scaled < histMin {
		scaled = histMin
	}
	if scaled > histMax {
		scaled = histMax
	}
	hist.RecordValue(scaled)
}

func (d *distributionSet) snapshots() []Distribution {
	sort.Slice(d.keys, func(i, j int) bool {
		if d.keys[i].metric != d.keys[j].metric {
			return d.keys[i].metric < d.keys[j].metric
		}
		return d.keys[i].branch < d.keys[j].branch
	})

	out := make([]Distribution, 0, len(d.keys))
	for _, k := range d.keys {
		hist := d.hists[k.metric+"\x00"+k.branch]
		out = append(out, Distribution{
			Metric: k.metric,
			Branch: k.branch,
			Count:  hist.TotalCount(),
			Min:    float64(hist.Min()) / histScale,
			Max:    float64(hist.Max()) / histScale,
			Mean:   hist.Mean() / histScale,
			P50:    float64(hist.ValueAtQuantile(50)) / histScale,
			P90:    float64(hist.ValueAtQuantile(90)) / histScale,
			P95:    float64(hist.ValueAtQuantile(95)) / histScale,
			P99:    float64(hist.ValueAtQuantile(99)) / histScale,
		})
	}
	return out
}
