// Package aggregator rolls hourly metric verdicts up into time-window and
// whole-day classifications.
//
// A window is good only when every evaluated hour in it is good; a single bad
// hour makes the window bad. A day is good when any of its windows is good.
package aggregator

import (
	"time"

	"goodweather/internal/forecast"
	"goodweather/internal/metrics"
	"goodweather/internal/schedule"
)

type Verdict string

const (
	Good    Verdict = "good"
	Bad     Verdict = "bad"
	Mixed   Verdict = "mixed"
	Unknown Verdict = "unknown"
)

type HourDetail struct {
	Timestamp time.Time `json:"timestamp"`
	Hour      int       `json:"hour"`
	metrics.HourVerdict
}

type WindowVerdict struct {
	Window         schedule.Window `json:"window"`
	Verdict        Verdict         `json:"verdict"`
	HoursEvaluated int             `json:"hours_evaluated"`
	HoursAvailable int             `json:"hours_available"`
	Hours          []HourDetail    `json:"hours"`
}

type DayVerdict struct {
	Date           string          `json:"date"`
	Weekday        string          `json:"weekday,omitempty"`
	Verdict        Verdict         `json:"verdict"`
	Windows        []WindowVerdict `json:"windows"`
	SkippedSamples int             `json:"skipped_samples"`
}

// Window returns the verdict for the named window.
func (d DayVerdict) Window(name string) (WindowVerdict, bool) {
	for _, w := range d.Windows {
		if w.Window.Name == name {
			return w, true
		}
	}
	return WindowVerdict{}, false
}

// SelectHoursInWindow returns day's samples whose local hour falls in w, in
// input order. Samples without a resolvable hour are left out.
func SelectHoursInWindow(day forecast.Day, w schedule.Window, loc *time.Location) []forecast.HourlySample {
	selected, _ := selectHours(day, w, loc)
	return selected
}

func selectHours(day forecast.Day, w schedule.Window, loc *time.Location) ([]forecast.HourlySample, []int) {
	selected := make([]forecast.HourlySample, 0)
	hours := make([]int, 0)
	for _, sample := range day.Hours {
		hour, err := sample.HourOfDay(loc)
		if err != nil {
			continue
		}
		if w.Contains(hour) {
			selected = append(selected, sample)
			hours = append(hours, hour)
		}
	}
	return selected, hours
}

// EvaluateWindow classifies one window of day.
func EvaluateWindow(day forecast.Day, w schedule.Window, thresholds metrics.Thresholds, loc *time.Location) WindowVerdict {
	samples, hours := selectHours(day, w, loc)

	wv := WindowVerdict{
		Window:         w,
		HoursAvailable: len(samples),
		Hours:          make([]HourDetail, 0, len(samples)),
	}

	failed := false
	for i, sample := range samples {
		hv := metrics.EvaluateHour(sample.Values, thresholds)
		wv.Hours = append(wv.Hours, HourDetail{Timestamp: sample.Timestamp, Hour: hours[i], HourVerdict: hv})
		switch hv.Overall {
		case metrics.Within:
			wv.HoursEvaluated++
		case metrics.Outside:
			wv.HoursEvaluated++
			failed = true
		}
	}

	switch {
	case wv.HoursEvaluated == 0:
		wv.Verdict = Unknown
	case failed:
		wv.Verdict = Bad
	default:
		wv.Verdict = Good
	}
	return wv
}

// EvaluateDay classifies every window of day, preserving window order.
func EvaluateDay(day forecast.Day, windows schedule.Windows, thresholds metrics.Thresholds, loc *time.Location) DayVerdict {
	dv := DayVerdict{
		Date:    day.Date,
		Windows: make([]WindowVerdict, 0, len(windows)),
	}
	if wd, ok := day.Weekday(); ok {
		dv.Weekday = schedule.Weekday(wd)
	}
	for _, sample := range day.Hours {
		if _, err := sample.HourOfDay(loc); err != nil {
			dv.SkippedSamples++
		}
	}

	var good, bad, unknown int
	for _, w := range windows {
		wv := EvaluateWindow(day, w, thresholds, loc)
		switch wv.Verdict {
		case Good:
			good++
		case Bad:
			bad++
		default:
			unknown++
		}
		dv.Windows = append(dv.Windows, wv)
	}

	switch {
	case good > 0:
		dv.Verdict = Good
	case len(windows) > 0 && bad == len(windows):
		dv.Verdict = Bad
	case unknown == len(windows):
		dv.Verdict = Unknown
	default:
		dv.Verdict = Mixed
	}
	return dv
}
