// Package weather fetches hourly forecasts from third-party providers and
// maps them onto forecast.Forecast.
package weather

import (
	"context"
	"fmt"
	"strings"
	"time"

	"goodweather/internal/forecast"
	"goodweather/internal/metrics"
)

type Provider interface {
	Name() string
	Forecast(ctx context.Context, q Query) (*forecast.Forecast, error)
}

// Query selects where and when to forecast. Coordinates win over Location
// when either is non-zero. StartDate and EndDate are YYYY-MM-DD.
type Query struct {
	Location  string
	Latitude  float64
	Longitude float64
	StartDate string
	EndDate   string
	Days      int
}

func (q Query) hasCoordinates() bool {
	return q.Latitude != 0 || q.Longitude != 0
}

// Key identifies the query for caching.
func (q Query) Key() string {
	place := strings.ToLower(strings.TrimSpace(q.Location))
	if q.hasCoordinates() {
		place = fmt.Sprintf("%.4f,%.4f", q.Latitude, q.Longitude)
	}
	return fmt.Sprintf("%s|%s|%s|%d", place, q.StartDate, q.EndDate, q.Days)
}

const (
	UnitsUS     = "us"
	UnitsMetric = "metric"
)

// Settings configures a provider built by New.
type Settings struct {
	Name    string
	APIKey  string
	Units   string
	Timeout time.Duration
	BaseURL string
	Catalog metrics.Catalog
}

// New returns the provider named in s.
func New(s Settings) (Provider, error) {
	if s.Units == "" {
		s.Units = UnitsUS
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if len(s.Catalog.Metrics()) == 0 {
		s.Catalog = metrics.DefaultCatalog()
	}

	switch strings.ToLower(strings.TrimSpace(s.Name)) {
	case "", "visualcrossing", "visual-crossing", "visual_crossing":
		return NewVisualCrossingClient(s), nil
	case "openmeteo", "open-meteo", "open_meteo":
		return NewOpenMeteoClient(s), nil
	case "openweather":
		return NewOpenWeatherClient(s), nil
	default:
		return nil, fmt.Errorf("weather provider not supported: %s", s.Name)
	}
}

// groupByDate splits samples into days by local calendar date, keeping first-seen order.
func groupByDate(samples []forecast.HourlySample, loc *time.Location) []forecast.Day {
	days := make([]forecast.Day, 0)
	index := make(map[string]int)
	for _, s := range samples {
		date := s.Timestamp.In(loc).Format(forecast.DateLayout)
		i, ok := index[date]
		if !ok {
			i = len(days)
			index[date] = i
			days = append(days, forecast.Day{Date: date})
		}
		days[i].Hours = append(days[i].Hours, s)
	}
	return days
}
