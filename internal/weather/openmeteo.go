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

const (
	openMeteoForecastURL  = "https://api.open-meteo.com/v1/forecast"
	openMeteoGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
)

type OpenMeteoClient struct {
	units        string
	forecastURL  string
	geocodingURL string
	fetch        *fetcher
}

func NewOpenMeteoClient(s Settings) *OpenMeteoClient {
	forecastURL, geocodingURL := openMeteoForecastURL, openMeteoGeocodingURL
	if s.BaseURL != "" {
		base := strings.TrimRight(s.BaseURL, "/")
		forecastURL, geocodingURL = base+"/v1/forecast", base+"/v1/search"
	}
	return &OpenMeteoClient{
		units:        s.Units,
		forecastURL:  forecastURL,
		geocodingURL: geocodingURL,
		fetch:        newFetcher("open-meteo", s.Timeout),
	}
}

func (c *OpenMeteoClient) Name() string {
	return "openmeteo"
}

type openMeteoResponse struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	Timezone         string  `json:"timezone"`
	UTCOffsetSeconds int     `json:"utc_offset_seconds"`
	Hourly           struct {
		Time                     []string   `json:"time"`
		ApparentTemperature      []*float64 `json:"apparent_temperature"`
		WindSpeed                []*float64 `json:"wind_speed_10m"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
		UVIndex                  []*float64 `json:"uv_index"`
	} `json:"hourly"`
}

type openMeteoGeoResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

func (c *OpenMeteoClient) Forecast(ctx context.Context, q Query) (*forecast.Forecast, error) {
	lat, lon, err := c.resolveLocation(ctx, q)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.6f", lat))
	query.Set("longitude", fmt.Sprintf("%.6f", lon))
	query.Set("hourly", "apparent_temperature,wind_speed_10m,precipitation_probability,uv_index")
	query.Set("timezone", "auto")
	if c.units != UnitsMetric {
		query.Set("temperature_unit", "fahrenheit")
		query.Set("wind_speed_unit", "mph")
	}
	switch {
	case q.StartDate != "" && q.EndDate != "":
		query.Set("start_date", q.StartDate)
		query.Set("end_date", q.EndDate)
	case q.StartDate != "":
		query.Set("start_date", q.StartDate)
		query.Set("end_date", q.StartDate)
	case q.Days > 0:
		query.Set("forecast_days", fmt.Sprintf("%d", q.Days))
	}

	var payload openMeteoResponse
	if err := c.fetch.getJSON(ctx, c.forecastURL+"?"+query.Encode(), &payload); err != nil {
		return nil, err
	}

	f := &forecast.Forecast{
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		Timezone:  payload.Timezone,
		TZOffset:  float64(payload.UTCOffsetSeconds) / 3600,
		Address:   q.Location,
		Provider:  c.Name(),
	}
	loc := f.Location()

	h := payload.Hourly
	samples := make([]forecast.HourlySample, 0, len(h.Time))
	for i, raw := range h.Time {
		ts, ok := parseOpenMeteoTime(raw, loc)
		if !ok {
			continue
		}
		sample := forecast.HourlySample{
			Timestamp: ts,
			Clock:     ts.Format("15:04:05"),
			Values:    make(metrics.Values),
		}
		forecast.SetValue(sample.Values, metrics.FeelsLike, at(h.ApparentTemperature, i))
		forecast.SetValue(sample.Values, metrics.WindSpeed, at(h.WindSpeed, i))
		forecast.SetValue(sample.Values, metrics.PrecipProb, at(h.PrecipitationProbability, i))
		forecast.SetValue(sample.Values, metrics.UVIndex, at(h.UVIndex, i))
		samples = append(samples, sample)
	}
	f.Days = groupByDate(samples, loc)
	return f, nil
}

func (c *OpenMeteoClient) resolveLocation(ctx context.Context, q Query) (float64, float64, error) {
	if q.hasCoordinates() {
		return q.Latitude, q.Longitude, nil
	}

	name := strings.TrimSpace(q.Location)
	if name == "" {
		return 0, 0, fmt.Errorf("open-meteo location is empty")
	}

	query := url.Values{}
	query.Set("name", name)
	query.Set("count", "1")
	query.Set("language", "en")
	query.Set("format", "json")

	var payload openMeteoGeoResponse
	if err := c.fetch.getJSON(ctx, c.geocodingURL+"?"+query.Encode(), &payload); err != nil {
		return 0, 0, fmt.Errorf("open-meteo geocoding: %w", err)
	}
	if len(payload.Results) == 0 {
		return 0, 0, fmt.Errorf("open-meteo geocoding found no results for %q", name)
	}
	return payload.Results[0].Latitude, payload.Results[0].Longitude, nil
}

func parseOpenMeteoTime(value string, loc *time.Location) (time.Time, bool) {
	if t, err := time.ParseInLocation("2006-01-02T15:04", value, loc); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(time.RFC3339, value, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func at(values []*float64, i int) *float64 {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}
