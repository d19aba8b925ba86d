package metrics

// HourVerdict is the per-metric classification of one hour plus the overall outcome.
type HourVerdict struct {
	Results map[Metric]Result `json:"results"`
	Overall Result            `json:"overall"`
}

// EvaluateHour classifies every metric present in both values and thresholds.
// Metrics without a threshold are left out. Unknown readings are recorded but
// do not take part in the overall AND; with nothing known the hour is Unknown.
func EvaluateHour(values Values, thresholds Thresholds) HourVerdict {
	verdict := HourVerdict{Results: make(map[Metric]Result, len(thresholds))}

	known := 0
	failed := false
	for m, r := range thresholds {
		value, ok := values[m]
		if !ok {
			continue
		}
		res := Evaluate(value, r)
		verdict.Results[m] = res
		if !res.Known() {
			continue
		}
		known++
		if res == Outside {
			failed = true
		}
	}

	switch {
	case known == 0:
		verdict.Overall = Unknown
	case failed:
		verdict.Overall = Outside
	default:
		verdict.Overall = Within
	}
	return verdict
}
