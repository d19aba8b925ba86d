package aggregator

import (
	"iter"

	"golang.org/x/sync/errgroup"

	"goodweather/internal/forecast"
	"goodweather/internal/metrics"
	"goodweather/internal/schedule"
)

// Days lazily evaluates f one day at a time. The sequence holds no state of
// its own and can be ranged over again, e.g. after swapping thresholds.
func Days(f *forecast.Forecast, windows schedule.Windows, thresholds metrics.Thresholds) iter.Seq2[int, DayVerdict] {
	return func(yield func(int, DayVerdict) bool) {
		if f == nil {
			return
		}
		loc := f.Location()
		for i, day := range f.Days {
			if !yield(i, EvaluateDay(day, windows, thresholds, loc)) {
				return
			}
		}
	}
}

// EvaluateForecast evaluates every day of f in input order.
func EvaluateForecast(f *forecast.Forecast, windows schedule.Windows, thresholds metrics.Thresholds) []DayVerdict {
	out := make([]DayVerdict, 0)
	for _, dv := range Days(f, windows, thresholds) {
		out = append(out, dv)
	}
	return out
}

// EvaluateForecastParallel evaluates days concurrently, at most limit at a
// time (limit <= 0 means unbounded), and returns them in input order.
func EvaluateForecastParallel(f *forecast.Forecast, windows schedule.Windows, thresholds metrics.Thresholds, limit int) []DayVerdict {
	if f == nil {
		return []DayVerdict{}
	}
	loc := f.Location()
	out := make([]DayVerdict, len(f.Days))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, day := range f.Days {
		g.Go(func() error {
			out[i] = EvaluateDay(day, windows, thresholds, loc)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
