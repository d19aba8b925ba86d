package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodweather/internal/forecast"
	"goodweather/internal/metrics"
	"goodweather/internal/schedule"
)

func sampleForecast() *forecast.Forecast {
	return &forecast.Forecast{
		Timezone: "UTC",
		Days: []forecast.Day{
			dayOf("2024-06-03", span(8, 21, pleasant)),
			dayOf("2024-06-04", span(8, 21, withValue(metrics.UVIndex, 10))),
			{Date: "2024-06-05"},
			dayOf("2024-06-06", merge(span(8, 21, withValue(metrics.UVIndex, 10)), span(17, 21, pleasant))),
		},
	}
}

func TestEvaluateForecastOrder(t *testing.T) {
	got := EvaluateForecast(sampleForecast(), schedule.DefaultWindows(), metrics.DefaultThresholds())
	require.Len(t, got, 4)

	dates := make([]string, len(got))
	verdicts := make([]Verdict, len(got))
	for i, dv := range got {
		dates[i] = dv.Date
		verdicts[i] = dv.Verdict
	}
	assert.Equal(t, []string{"2024-06-03", "2024-06-04", "2024-06-05", "2024-06-06"}, dates)
	assert.Equal(t, []Verdict{Good, Bad, Unknown, Good}, verdicts)
}

func TestEvaluateForecastIdempotent(t *testing.T) {
	f := sampleForecast()
	first := EvaluateForecast(f, schedule.DefaultWindows(), metrics.DefaultThresholds())
	second := EvaluateForecast(f, schedule.DefaultWindows(), metrics.DefaultThresholds())
	assert.Equal(t, first, second)
}

func TestEvaluateForecastRethreshold(t *testing.T) {
	f := sampleForecast()
	strict := EvaluateForecast(f, schedule.DefaultWindows(), metrics.DefaultThresholds())
	relaxed := EvaluateForecast(f, schedule.DefaultWindows(), metrics.DefaultThresholds().Without(metrics.UVIndex))

	assert.Equal(t, Bad, strict[1].Verdict)
	assert.Equal(t, Good, relaxed[1].Verdict)
}

func TestEvaluateForecastNil(t *testing.T) {
	assert.Empty(t, EvaluateForecast(nil, schedule.DefaultWindows(), metrics.DefaultThresholds()))
	assert.Empty(t, EvaluateForecastParallel(nil, schedule.DefaultWindows(), metrics.DefaultThresholds(), 2))
}

func TestDaysRestartable(t *testing.T) {
	seq := Days(sampleForecast(), schedule.DefaultWindows(), metrics.DefaultThresholds())

	var first, second []DayVerdict
	for _, dv := range seq {
		first = append(first, dv)
	}
	for _, dv := range seq {
		second = append(second, dv)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}

func TestDaysStopsEarly(t *testing.T) {
	count := 0
	for i := range Days(sampleForecast(), schedule.DefaultWindows(), metrics.DefaultThresholds()) {
		count++
		if i == 1 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestEvaluateForecastParallelMatchesSequential(t *testing.T) {
	f := sampleForecast()
	sequential := EvaluateForecast(f, schedule.DefaultWindows(), metrics.DefaultThresholds())

	for _, limit := range []int{0, 1, 3} {
		parallel := EvaluateForecastParallel(f, schedule.DefaultWindows(), metrics.DefaultThresholds(), limit)
		assert.Equal(t, sequential, parallel, "limit %d", limit)
	}
}
