package weather

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"goodweather/internal/forecast"
	"goodweather/internal/metrics"
)

const openWeatherBaseURL = "https://api.openweathermap.org"

// OpenWeatherClient reads the hourly block of the One Call 3.0 API, which
// covers the next 48 hours.
type OpenWeatherClient struct {
	apiKey  string
	units   string
	baseURL string
	fetch   *fetcher
}

func NewOpenWeatherClient(s Settings) *OpenWeatherClient {
	base := s.BaseURL
	if base == "" {
		base = openWeatherBaseURL
	}
	return &OpenWeatherClient{
		apiKey:  s.APIKey,
		units:   s.Units,
		baseURL: strings.TrimRight(base, "/"),
		fetch:   newFetcher("openweather", s.Timeout),
	}
}

func (c *OpenWeatherClient) Name() string {
	return "openweather"
}

type openWeatherResponse struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Timezone       string  `json:"timezone"`
	TimezoneOffset int64   `json:"timezone_offset"`
	Hourly         []struct {
		Dt        int64    `json:"dt"`
		FeelsLike *float64 `json:"feels_like"`
		WindSpeed *float64 `json:"wind_speed"`
		Pop       *float64 `json:"pop"`
		UVI       *float64 `json:"uvi"`
		Weather   []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"hourly"`
}

type openWeatherGeoResponse []struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

func (c *OpenWeatherClient) Forecast(ctx context.Context, q Query) (*forecast.Forecast, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openweather api key is empty")
	}

	lat, lon, err := c.resolveLocation(ctx, q)
	if err != nil {
		return nil, err
	}

	units := "imperial"
	if c.units == UnitsMetric {
		units = "metric"
	}

	query := url.Values{}
	query.Set("appid", c.apiKey)
	query.Set("units", units)
	query.Set("lat", fmt.Sprintf("%.6f", lat))
	query.Set("lon", fmt.Sprintf("%.6f", lon))
	query.Set("exclude", "current,minutely,daily,alerts")

	var payload openWeatherResponse
	if err := c.fetch.getJSON(ctx, c.baseURL+"/data/3.0/onecall?"+query.Encode(), &payload); err != nil {
		return nil, err
	}

	f := &forecast.Forecast{
		Latitude:  payload.Lat,
		Longitude: payload.Lon,
		Timezone:  payload.Timezone,
		TZOffset:  float64(payload.TimezoneOffset) / 3600,
		Address:   q.Location,
		Provider:  c.Name(),
	}
	loc := f.Location()

	samples := make([]forecast.HourlySample, 0, len(payload.Hourly))
	for _, h := range payload.Hourly {
		if h.Dt <= 0 {
			continue
		}
		ts := time.Unix(h.Dt, 0).In(loc)
		sample := forecast.HourlySample{
			Timestamp: ts,
			Clock:     ts.Format("15:04:05"),
			Values:    make(metrics.Values),
		}
		if len(h.Weather) > 0 {
			sample.Conditions = h.Weather[0].Main
		}
		forecast.SetValue(sample.Values, metrics.FeelsLike, h.FeelsLike)
		forecast.SetValue(sample.Values, metrics.WindSpeed, h.WindSpeed)
		forecast.SetValue(sample.Values, metrics.UVIndex, h.UVI)
		if h.Pop != nil {
			// pop is a 0..1 probability; the engine works in percent.
			pct := *h.Pop * 100
			forecast.SetValue(sample.Values, metrics.PrecipProb, &pct)
		}
		samples = append(samples, sample)
	}

	f.Days = filterDates(groupByDate(samples, loc), q.StartDate, q.EndDate)
	// One Call has no day-count parameter; dates win over Days as elsewhere.
	if q.StartDate == "" && q.Days > 0 && len(f.Days) > q.Days {
		f.Days = f.Days[:q.Days]
	}
	return f, nil
}

func (c *OpenWeatherClient) resolveLocation(ctx context.Context, q Query) (float64, float64, error) {
	if q.hasCoordinates() {
		return q.Latitude, q.Longitude, nil
	}

	name := strings.TrimSpace(q.Location)
	if name == "" {
		return 0, 0, fmt.Errorf("openweather location is empty")
	}

	query := url.Values{}
	query.Set("q", name)
	query.Set("limit", "1")
	query.Set("appid", c.apiKey)

	var payload openWeatherGeoResponse
	if err := c.fetch.getJSON(ctx, c.baseURL+"/geo/1.0/direct?"+query.Encode(), &payload); err != nil {
		return 0, 0, fmt.Errorf("openweather geocoding: %w", err)
	}
	if len(payload) == 0 {
		return 0, 0, fmt.Errorf("openweather geocoding found no results for %q", name)
	}
	return payload[0].Lat, payload[0].Lon, nil
}

// filterDates keeps days within [start, end]. Empty bounds are open.
func filterDates(days []forecast.Day, start, end string) []forecast.Day {
	if start == "" && end == "" {
		return days
	}
	if end == "" {
		end = start
	}
	out := make([]forecast.Day, 0, len(days))
	for _, d := range days {
		if (start == "" || d.Date >= start) && d.Date <= end {
			out = append(out, d)
		}
	}
	return out
}
