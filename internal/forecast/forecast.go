// Package forecast models the multi-day hourly forecast document the engine consumes.
package forecast

import (
	"fmt"
	"math"
	"strings"
	"time"

	"goodweather/internal/metrics"
)

const DateLayout = "2006-01-02"

type Forecast struct {
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Timezone        string  `json:"timezone"`
	TZOffset        float64 `json:"tzoffset"`
	Address         string  `json:"address,omitempty"`
	ResolvedAddress string  `json:"resolved_address,omitempty"`
	Description     string  `json:"description,omitempty"`
	Provider        string  `json:"provider,omitempty"`
	Days            []Day   `json:"days"`
}

// Location resolves the forecast's local timezone. It falls back to a fixed
// zone built from TZOffset, then to UTC.
func (f *Forecast) Location() *time.Location {
	if f == nil {
		return time.UTC
	}
	if tz := strings.TrimSpace(f.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if f.TZOffset != 0 {
		return time.FixedZone(fmt.Sprintf("UTC%+g", f.TZOffset), int(f.TZOffset*3600))
	}
	return time.UTC
}

type Day struct {
	Date  string         `json:"date"`
	Hours []HourlySample `json:"hours"`
}

// Weekday parses Date. ok is false when the date is missing or malformed.
func (d Day) Weekday() (time.Weekday, bool) {
	t, err := time.Parse(DateLayout, d.Date)
	if err != nil {
		return 0, false
	}
	return t.Weekday(), true
}

// HourlySample is one hour of forecast values. Timestamp wins over Clock
// when both are set; Clock is the provider's local wall-clock time.
type HourlySample struct {
	Timestamp  time.Time      `json:"timestamp"`
	Clock      string         `json:"clock,omitempty"`
	Values     metrics.Values `json:"values"`
	Conditions string         `json:"conditions,omitempty"`
}

var clockLayouts = []string{"15:04:05", "15:04"}

// HourOfDay returns the sample's hour in loc.
func (s HourlySample) HourOfDay(loc *time.Location) (int, error) {
	if !s.Timestamp.IsZero() {
		if loc == nil {
			loc = time.UTC
		}
		return s.Timestamp.In(loc).Hour(), nil
	}
	clock := strings.TrimSpace(s.Clock)
	if clock == "" {
		return 0, &MalformedSampleError{Reason: "missing timestamp"}
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			return t.Hour(), nil
		}
	}
	return 0, &MalformedSampleError{Clock: clock, Reason: "unparseable time"}
}

// SetValue records v for m, skipping nil and non-finite readings so missing
// data stays absent.
func SetValue(values metrics.Values, m metrics.Metric, v *float64) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return
	}
	values[m] = *v
}

// MalformedSampleError marks a sample that cannot be placed in a window.
type MalformedSampleError struct {
	Clock  string
	Reason string
}

func (e *MalformedSampleError) Error() string {
	if e.Clock != "" {
		return fmt.Sprintf("malformed sample %q: %s", e.Clock, e.Reason)
	}
	return "malformed sample: " + e.Reason
}
