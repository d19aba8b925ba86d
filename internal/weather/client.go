package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Provider string
	Status   string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s bad status: %s: %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("%s bad status: %s", e.Provider, e.Status)
}

// fetcher issues GET requests through a circuit breaker so a failing
// provider is not hammered on every refresh.
type fetcher struct {
	provider string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
}

const maxErrorBody = 512

func newFetcher(provider string, timeout time.Duration) *fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &fetcher{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        provider,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				// Client-side mistakes (bad key, bad location) say nothing about provider health.
				if statusErr, ok := err.(*StatusError); ok {
					return statusErr.Code < 500 && statusErr.Code != http.StatusTooManyRequests
				}
				return err == nil
			},
		}),
	}
}

func (f *fetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	return f.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("%s request: %w", f.provider, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", f.provider, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &StatusError{Provider: f.provider, Status: resp.Status, Code: resp.StatusCode, Body: string(body)}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%s read body: %w", f.provider, err)
		}
		return body, nil
	})
}

func (f *fetcher) getJSON(ctx context.Context, endpoint string, dst any) error {
	body, err := f.get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%s decode: %w", f.provider, err)
	}
	return nil
}
