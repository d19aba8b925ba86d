package weather

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"goodweather/internal/forecast"
	"goodweather/internal/metrics"
)

const visualCrossingBaseURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

type VisualCrossingClient struct {
	apiKey  string
	units   string
	baseURL string
	catalog metrics.Catalog
	fetch   *fetcher
}

func NewVisualCrossingClient(s Settings) *VisualCrossingClient {
	base := s.BaseURL
	if base == "" {
		base = visualCrossingBaseURL
	}
	catalog := s.Catalog
	if len(catalog.Metrics()) == 0 {
		catalog = metrics.DefaultCatalog()
	}
	return &VisualCrossingClient{
		apiKey:  s.APIKey,
		units:   s.Units,
		baseURL: strings.TrimRight(base, "/"),
		catalog: catalog,
		fetch:   newFetcher("visualcrossing", s.Timeout),
	}
}

func (c *VisualCrossingClient) Name() string {
	return "visualcrossing"
}

func (c *VisualCrossingClient) Forecast(ctx context.Context, q Query) (*forecast.Forecast, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("visualcrossing api key is empty")
	}

	endpoint, err := c.endpoint(q)
	if err != nil {
		return nil, err
	}

	body, err := c.fetch.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	f, err := forecast.Decode(bytes.NewReader(body), c.catalog)
	if err != nil {
		return nil, fmt.Errorf("visualcrossing: %w", err)
	}
	f.Provider = c.Name()
	return f, nil
}

func (c *VisualCrossingClient) endpoint(q Query) (string, error) {
	location := strings.TrimSpace(q.Location)
	if q.hasCoordinates() {
		location = fmt.Sprintf("%.6f,%.6f", q.Latitude, q.Longitude)
	}
	if location == "" {
		return "", fmt.Errorf("visualcrossing location is empty")
	}

	path := c.baseURL + "/" + url.PathEscape(location)
	switch {
	case q.StartDate != "" && q.EndDate != "":
		path += "/" + q.StartDate + "/" + q.EndDate
	case q.StartDate != "":
		path += "/" + q.StartDate
	case q.Days > 0:
		path += fmt.Sprintf("/next%ddays", q.Days)
	}

	unitGroup := c.units
	if unitGroup == "" {
		unitGroup = UnitsUS
	}

	query := url.Values{}
	query.Set("unitGroup", unitGroup)
	query.Set("include", "days,hours")
	query.Set("contentType", "json")
	query.Set("key", c.apiKey)

	return path + "?" + query.Encode(), nil
}
