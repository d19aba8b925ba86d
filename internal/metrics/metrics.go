// Package metrics classifies individual weather readings against acceptable ranges.
package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

type Metric string

const (
	FeelsLike  Metric = "feelslike"
	WindSpeed  Metric = "windspeed"
	PrecipProb Metric = "precipprob"
	UVIndex    Metric = "uvindex"
)

// Catalog is the set of metric identifiers the engine recognizes.
type Catalog struct {
	metrics []Metric
}

var defaultMetrics = []Metric{FeelsLike, WindSpeed, PrecipProb, UVIndex}

func DefaultCatalog() Catalog {
	return Catalog{metrics: append([]Metric(nil), defaultMetrics...)}
}

// With returns a new catalog extended with extra metrics. The receiver is untouched.
func (c Catalog) With(extra ...Metric) Catalog {
	out := Catalog{metrics: append([]Metric(nil), c.metrics...)}
	for _, m := range extra {
		if m == "" || out.Contains(m) {
			continue
		}
		out.metrics = append(out.metrics, m)
	}
	return out
}

func (c Catalog) Contains(m Metric) bool {
	for _, known := range c.metrics {
		if known == m {
			return true
		}
	}
	return false
}

func (c Catalog) Metrics() []Metric {
	return append([]Metric(nil), c.metrics...)
}

// Range is a closed interval [Min, Max].
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func NewRange(min, max float64) (Range, error) {
	if math.IsNaN(min) || math.IsNaN(max) || min > max {
		return Range{}, &InvalidRangeError{Min: min, Max: max}
	}
	return Range{Min: min, Max: max}, nil
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// Result is the outcome of classifying one reading.
type Result int8

const (
	Unknown Result = iota
	Within
	Outside
)

func (r Result) String() string {
	switch r {
	case Within:
		return "within"
	case Outside:
		return "outside"
	default:
		return "unknown"
	}
}

// Known reports whether the reading was measured.
func (r Result) Known() bool {
	return r != Unknown
}

// MarshalJSON encodes Within as true, Outside as false and Unknown as null.
func (r Result) MarshalJSON() ([]byte, error) {
	switch r {
	case Within:
		return []byte("true"), nil
	case Outside:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("metric result: %w", err)
	}
	switch {
	case b == nil:
		*r = Unknown
	case *b:
		*r = Within
	default:
		*r = Outside
	}
	return nil
}

// Evaluate classifies value against r. Both bounds are inclusive.
// NaN and infinite values are Unknown.
func Evaluate(value float64, r Range) Result {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Unknown
	}
	if value >= r.Min && value <= r.Max {
		return Within
	}
	return Outside
}

// Values holds one hour's readings keyed by metric. Missing readings are
// either absent or NaN.
type Values map[Metric]float64

// Thresholds maps metrics to their acceptable range. Treat as read-only;
// With and Without return modified copies.
type Thresholds map[Metric]Range

// NewThresholds validates raw ranges against the catalog.
func NewThresholds(catalog Catalog, ranges map[Metric]Range) (Thresholds, error) {
	out := make(Thresholds, len(ranges))
	for _, m := range sortedKeys(ranges) {
		if !catalog.Contains(m) {
			return nil, &InvalidMetricError{Metric: string(m)}
		}
		r, err := NewRange(ranges[m].Min, ranges[m].Max)
		if err != nil {
			if rangeErr, ok := err.(*InvalidRangeError); ok {
				rangeErr.Metric = m
			}
			return nil, err
		}
		out[m] = r
	}
	return out, nil
}

// DefaultThresholds returns a fresh copy of the built-in ranges.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FeelsLike:  {Min: 60, Max: 80},
		WindSpeed:  {Min: 0, Max: 10},
		PrecipProb: {Min: 0, Max: 20},
		UVIndex:    {Min: 0, Max: 7},
	}
}

func (t Thresholds) With(m Metric, r Range) Thresholds {
	out := t.clone()
	out[m] = r
	return out
}

func (t Thresholds) Without(m Metric) Thresholds {
	out := t.clone()
	delete(out, m)
	return out
}

// Metrics returns the configured metrics in a stable order.
func (t Thresholds) Metrics() []Metric {
	return sortedKeys(t)
}

func (t Thresholds) clone() Thresholds {
	out := make(Thresholds, len(t))
	for m, r := range t {
		out[m] = r
	}
	return out
}

func sortedKeys[V any](m map[Metric]V) []Metric {
	keys := make([]Metric, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
