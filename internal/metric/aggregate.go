package metric

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// Aggregate collapses one unit's qualifying event payloads into a single
// value per this definition's aggregation rule.
//
// The boolean result is the absence marker: true means the unit had no
// qualifying events. The caller combines it with the metric's absence
// default to decide between an explicit zero and a missing row; absence is
// always visible, never silent.
//
// A payload the value path cannot extract a number from is a schema
// mismatch and returns an error; the caller escalates it to a data-source
// error for the whole window.
func (d Definition) Aggregate(payloads []string) (float64, bool, error) {
	if len(payloads) == 0 {
		return 0, true, nil
	}

	switch d.Aggregation {
	case AggExists:
		return 1, false, nil

	case AggCount:
		return float64(len(payloads)), false, nil

	case AggSum, AggMean, AggMin, AggMax:
		values, err := d.extract(payloads)
		if err != nil {
			return 0, false, err
		}
		return combine(d.Aggregation, values), false, nil

	default:
		return 0, false, fmt.Errorf("metric %q: unknown aggregation %q", d.Name, d.Aggregation)
	}
}

// extract pulls the numeric value at ValuePath out of each payload.
func (d Definition) extract(payloads []string) ([]float64, error) {
	values := make([]float64, 0, len(payloads))
	for _, p := range payloads {
		res := gjson.Get(p, d.ValuePath)
		if !res.Exists() {
			return nil, fmt.Errorf("metric %q: payload missing value at path %q", d.Name, d.ValuePath)
		}
		if res.Type != gjson.Number {
			return nil, fmt.Errorf("metric %q: value at path %q is not numeric (got %s)",
				d.Name, d.ValuePath, res.Type)
		}
		v := res.Float()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("metric %q: non-finite value at path %q", d.Name, d.ValuePath)
		}
		values = append(values, v)
	}
	return values, nil
}

func combine(agg Aggregation, values []float64) float64 {
	switch agg {
	case AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case AggMean:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	default: // AggMax
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	}
}
