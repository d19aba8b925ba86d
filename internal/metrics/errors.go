package metrics

import "fmt"

// InvalidRangeError reports a range whose lower bound exceeds its upper bound.
type InvalidRangeError struct {
	Metric Metric
	Min    float64
	Max    float64
}

func (e *InvalidRangeError) Error() string {
	if e.Metric != "" {
		return fmt.Sprintf("invalid range for %s: min %g > max %g", e.Metric, e.Min, e.Max)
	}
	return fmt.Sprintf("invalid range: min %g > max %g", e.Min, e.Max)
}

// InvalidMetricError reports a metric identifier outside the catalog.
type InvalidMetricError struct {
	Metric string
}

func (e *InvalidMetricError) Error() string {
	return fmt.Sprintf("unknown metric %q", e.Metric)
}
