// Package report shapes day verdicts into the summary the API, CLI and MQTT
// publisher hand to presentation.
package report

import (
	"time"

	"github.com/google/uuid"

	"goodweather/internal/aggregator"
	"goodweather/internal/forecast"
	"goodweather/internal/metrics"
	"goodweather/internal/schedule"
)

type Location struct {
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Timezone        string  `json:"timezone"`
	Address         string  `json:"address,omitempty"`
	ResolvedAddress string  `json:"resolved_address,omitempty"`
}

// RangeSummary tallies one window across all forecast days.
type RangeSummary struct {
	Window    schedule.Window `json:"window"`
	GoodDays  int             `json:"good_days"`
	BadDays   int             `json:"bad_days"`
	Unknown   int             `json:"unknown_days"`
	GoodDates []string        `json:"good_dates"`
}

type Summary struct {
	GoodDays    int            `json:"good_days"`
	BadDays     int            `json:"bad_days"`
	MixedDays   int            `json:"mixed_days"`
	UnknownDays int            `json:"unknown_days"`
	Ranges      []RangeSummary `json:"ranges"`
}

type Report struct {
	ID          uuid.UUID               `json:"id"`
	GeneratedAt time.Time               `json:"generated_at"`
	Provider    string                  `json:"provider,omitempty"`
	Location    Location                `json:"location"`
	Thresholds  metrics.Thresholds      `json:"thresholds"`
	Windows     schedule.Windows        `json:"windows"`
	Days        []aggregator.DayVerdict `json:"days"`
	Summary     Summary                 `json:"summary"`
}

// WindowRef names one good window on one date.
type WindowRef struct {
	Date   string `json:"date"`
	Window string `json:"window"`
	Label  string `json:"label"`
}

type Options struct {
	// Parallelism > 0 evaluates days concurrently with that many workers.
	Parallelism int
	Now         func() time.Time
}

// Build evaluates f and wraps the verdicts in a Report.
func Build(f *forecast.Forecast, windows schedule.Windows, thresholds metrics.Thresholds, opts Options) *Report {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	var days []aggregator.DayVerdict
	if opts.Parallelism > 0 {
		days = aggregator.EvaluateForecastParallel(f, windows, thresholds, opts.Parallelism)
	} else {
		days = aggregator.EvaluateForecast(f, windows, thresholds)
	}

	r := &Report{
		ID:          uuid.New(),
		GeneratedAt: now().UTC(),
		Thresholds:  thresholds,
		Windows:     windows,
		Days:        days,
		Summary:     Summarize(days, windows),
	}
	if f != nil {
		r.Provider = f.Provider
		r.Location = Location{
			Latitude:        f.Latitude,
			Longitude:       f.Longitude,
			Timezone:        f.Timezone,
			Address:         f.Address,
			ResolvedAddress: f.ResolvedAddress,
		}
	}
	return r
}

// Summarize counts day verdicts and tallies each configured window.
func Summarize(days []aggregator.DayVerdict, windows schedule.Windows) Summary {
	s := Summary{Ranges: make([]RangeSummary, len(windows))}
	for i, w := range windows {
		s.Ranges[i] = RangeSummary{Window: w, GoodDates: []string{}}
	}

	for _, day := range days {
		switch day.Verdict {
		case aggregator.Good:
			s.GoodDays++
		case aggregator.Bad:
			s.BadDays++
		case aggregator.Mixed:
			s.MixedDays++
		default:
			s.UnknownDays++
		}

		for i := range s.Ranges {
			wv, ok := day.Window(s.Ranges[i].Window.Name)
			if !ok {
				continue
			}
			switch wv.Verdict {
			case aggregator.Good:
				s.Ranges[i].GoodDays++
				s.Ranges[i].GoodDates = append(s.Ranges[i].GoodDates, day.Date)
			case aggregator.Bad:
				s.Ranges[i].BadDays++
			default:
				s.Ranges[i].Unknown++
			}
		}
	}
	return s
}

// Day returns the verdict for date (YYYY-MM-DD).
func (r *Report) Day(date string) (aggregator.DayVerdict, bool) {
	for _, d := range r.Days {
		if d.Date == date {
			return d, true
		}
	}
	return aggregator.DayVerdict{}, false
}

// GoodWindows lists every window classified good, day by day in window order.
func (r *Report) GoodWindows() []WindowRef {
	refs := make([]WindowRef, 0)
	for _, d := range r.Days {
		for _, w := range d.Windows {
			if w.Verdict == aggregator.Good {
				refs = append(refs, WindowRef{Date: d.Date, Window: w.Window.Name, Label: w.Window.Label})
			}
		}
	}
	return refs
}
