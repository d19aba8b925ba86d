package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateHour(t *testing.T) {
	pleasant := Values{FeelsLike: 70, WindSpeed: 5, PrecipProb: 10, UVIndex: 3}

	tests := []struct {
		name       string
		values     Values
		thresholds Thresholds
		want       Result
		results    int
	}{
		{
			name:       "all within",
			values:     pleasant,
			thresholds: DefaultThresholds(),
			want:       Within,
			results:    4,
		},
		{
			name:       "one outside",
			values:     Values{FeelsLike: 70, WindSpeed: 25, PrecipProb: 10, UVIndex: 3},
			thresholds: DefaultThresholds(),
			want:       Outside,
			results:    4,
		},
		{
			name:       "metric without threshold is ignored",
			values:     Values{FeelsLike: 70, WindSpeed: 5, PrecipProb: 10, UVIndex: 15},
			thresholds: DefaultThresholds().Without(UVIndex),
			want:       Within,
			results:    3,
		},
		{
			name:       "unknown reading does not fail the hour",
			values:     Values{FeelsLike: 70, WindSpeed: math.NaN(), PrecipProb: 10, UVIndex: 3},
			thresholds: DefaultThresholds(),
			want:       Within,
			results:    4,
		},
		{
			name:       "empty thresholds",
			values:     pleasant,
			thresholds: Thresholds{},
			want:       Unknown,
			results:    0,
		},
		{
			name:       "no monitored readings",
			values:     Values{"humidity": 40},
			thresholds: DefaultThresholds(),
			want:       Unknown,
			results:    0,
		},
		{
			name:       "all readings unknown",
			values:     Values{FeelsLike: math.NaN(), UVIndex: math.Inf(1)},
			thresholds: DefaultThresholds(),
			want:       Unknown,
			results:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateHour(tt.values, tt.thresholds)
			assert.Equal(t, tt.want, got.Overall)
			assert.Len(t, got.Results, tt.results)
		})
	}
}

func TestEvaluateHourRecordsUnknown(t *testing.T) {
	got := EvaluateHour(Values{FeelsLike: math.NaN(), WindSpeed: 3}, DefaultThresholds())

	assert.Equal(t, Unknown, got.Results[FeelsLike])
	assert.Equal(t, Within, got.Results[WindSpeed])
	_, present := got.Results[UVIndex]
	assert.False(t, present)

	assert.False(t, got.Results[FeelsLike].Known())
	assert.True(t, got.Results[WindSpeed].Known())
	assert.Equal(t, Within, got.Overall, "unknown feels-like must not fail the hour")
}
