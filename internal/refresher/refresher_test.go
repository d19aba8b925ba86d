package refresher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodweather/internal/aggregator"
	"goodweather/internal/forecast"
	"goodweather/internal/metrics"
	"goodweather/internal/report"
	"goodweather/internal/schedule"
	"goodweather/internal/weather"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	err   error
	f     *forecast.Forecast
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Forecast(ctx context.Context, q weather.Query) (*forecast.Forecast, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.f, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type cachedForecast struct {
	f         *forecast.Forecast
	fetchedAt time.Time
}

type memoryCache struct {
	entries map[string][]cachedForecast
	pruned  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]cachedForecast)}
}

func (c *memoryCache) SaveForecast(key, start, end string, f *forecast.Forecast, fetchedAt time.Time) error {
	c.entries[key] = append(c.entries[key], cachedForecast{f, fetchedAt})
	return nil
}

func (c *memoryCache) LatestForecast(key string, maxAge time.Duration, now time.Time) (*forecast.Forecast, time.Time, error) {
	entries := c.entries[key]
	if len(entries) == 0 {
		return nil, time.Time{}, errors.New("miss")
	}
	last := entries[len(entries)-1]
	if maxAge > 0 && now.Sub(last.fetchedAt) > maxAge {
		return nil, time.Time{}, errors.New("expired")
	}
	return last.f, last.fetchedAt, nil
}

func (c *memoryCache) PruneSnapshots(olderThan time.Duration, now time.Time) (int64, error) {
	c.pruned++
	return 0, nil
}

type recordingPublisher struct {
	reports   []*report.Report
	discovery int
}

func (p *recordingPublisher) Publish(r *report.Report) error {
	p.reports = append(p.reports, r)
	return nil
}

func (p *recordingPublisher) PublishHomeAssistantDiscovery(r *report.Report) error {
	p.discovery++
	return nil
}

// goodMorningForecast has one day where every hour is pleasant.
func goodMorningForecast() *forecast.Forecast {
	day := forecast.Day{Date: "2024-06-03"}
	for h := 8; h < 21; h++ {
		day.Hours = append(day.Hours, forecast.HourlySample{
			Timestamp: time.Date(2024, 6, 3, h, 0, 0, 0, time.UTC),
			Values: metrics.Values{
				metrics.FeelsLike:  70,
				metrics.WindSpeed:  5,
				metrics.PrecipProb: 10,
				metrics.UVIndex:    3,
			},
		})
	}
	return &forecast.Forecast{Timezone: "UTC", Provider: "fake", Days: []forecast.Day{day}}
}

type fixture struct {
	provider  *fakeProvider
	cache     *memoryCache
	publisher *recordingPublisher
	clock     time.Time
	refresher *Refresher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		provider:  &fakeProvider{f: goodMorningForecast()},
		cache:     newMemoryCache(),
		publisher: &recordingPublisher{},
		clock:     time.Date(2024, 6, 3, 6, 0, 0, 0, time.UTC),
	}
	fx.refresher = New(Config{
		Provider:   fx.provider,
		Query:      weather.Query{Location: "somewhere", Days: 1},
		Cache:      fx.cache,
		Publisher:  fx.publisher,
		Thresholds: metrics.DefaultThresholds(),
		Windows:    schedule.DefaultWindows(),
		CacheTTL:   time.Hour,
		Retention:  24 * time.Hour,
		Enabled:    true,
		Now:        func() time.Time { return fx.clock },
	})
	return fx
}

func TestRefreshOnceFetchesEvaluatesAndPublishes(t *testing.T) {
	fx := newFixture(t)

	rep, err := fx.refresher.RefreshOnce(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, fx.provider.Calls())
	require.Len(t, rep.Days, 1)
	assert.Equal(t, aggregator.Good, rep.Days[0].Verdict)
	assert.Same(t, rep, fx.refresher.LatestReport())
	assert.NoError(t, fx.refresher.LastError())
	assert.Equal(t, fx.clock, fx.refresher.FetchedAt())

	require.Len(t, fx.publisher.reports, 1)
	assert.Equal(t, 1, fx.publisher.discovery)
	assert.Equal(t, 1, fx.cache.pruned)
}

func TestRefreshOnceUsesCacheWithinTTL(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.refresher.RefreshOnce(ctx, false)
	require.NoError(t, err)

	fx.clock = fx.clock.Add(30 * time.Minute)
	_, err = fx.refresher.RefreshOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.provider.Calls())

	_, err = fx.refresher.RefreshOnce(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, fx.provider.Calls())

	fx.clock = fx.clock.Add(2 * time.Hour)
	_, err = fx.refresher.RefreshOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, fx.provider.Calls())

	// Window set never changed, so discovery went out once.
	assert.Equal(t, 1, fx.publisher.discovery)
}

func TestRefreshOnceCacheKeySeparatesUnits(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.refresher.RefreshOnce(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, fx.provider.Calls())

	metric := &fakeProvider{f: goodMorningForecast()}
	other := New(Config{
		Provider:   metric,
		Query:      weather.Query{Location: "somewhere", Days: 1},
		Units:      weather.UnitsMetric,
		Cache:      fx.cache,
		Thresholds: metrics.DefaultThresholds(),
		Windows:    schedule.DefaultWindows(),
		CacheTTL:   time.Hour,
		Enabled:    true,
		Now:        func() time.Time { return fx.clock },
	})

	_, err = other.RefreshOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, metric.Calls(), "metric refresher must not reuse the us snapshot")
	assert.Len(t, fx.cache.entries, 2)
	assert.Contains(t, fx.cache.entries, "fake|us|"+weather.Query{Location: "somewhere", Days: 1}.Key())
	assert.Contains(t, fx.cache.entries, "fake|metric|"+weather.Query{Location: "somewhere", Days: 1}.Key())
}

func TestRefreshOnceKeepsPreviousReportOnError(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.refresher.RefreshOnce(ctx, false)
	require.NoError(t, err)

	fx.provider.err = errors.New("provider down")
	_, err = fx.refresher.RefreshOnce(ctx, true)
	require.Error(t, err)
	assert.ErrorContains(t, err, "provider down")

	assert.Same(t, first, fx.refresher.LatestReport())
	assert.Error(t, fx.refresher.LastError())
}

func TestReevaluateLeavesStateUntouched(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.refresher.Reevaluate(metrics.DefaultThresholds(), schedule.DefaultWindows())
	assert.ErrorIs(t, err, ErrNoForecast)

	original, err := fx.refresher.RefreshOnce(context.Background(), false)
	require.NoError(t, err)

	strict := metrics.DefaultThresholds().With(metrics.FeelsLike, metrics.Range{Min: 75, Max: 80})
	rep, err := fx.refresher.Reevaluate(strict, schedule.DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, aggregator.Bad, rep.Days[0].Verdict)

	assert.Same(t, original, fx.refresher.LatestReport())
	th, _ := fx.refresher.Engine()
	assert.Equal(t, metrics.DefaultThresholds(), th)
	assert.Len(t, fx.publisher.reports, 1)
}

func TestUpdateEngineRebuildsAndPublishes(t *testing.T) {
	fx := newFixture(t)

	assert.Nil(t, fx.refresher.UpdateEngine(metrics.DefaultThresholds(), schedule.DefaultWindows()))

	_, err := fx.refresher.RefreshOnce(context.Background(), false)
	require.NoError(t, err)

	morning, err := schedule.NewWindows(schedule.Window{Name: "morning", StartHour: 8, EndHour: 12})
	require.NoError(t, err)
	rep := fx.refresher.UpdateEngine(metrics.DefaultThresholds(), morning)
	require.NotNil(t, rep)

	assert.Len(t, rep.Days[0].Windows, 1)
	assert.Same(t, rep, fx.refresher.LatestReport())
	_, ws := fx.refresher.Engine()
	assert.Equal(t, morning, ws)
	assert.Len(t, fx.publisher.reports, 2)
	assert.Equal(t, 2, fx.publisher.discovery)
}

func TestStartStopsWithContext(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- fx.refresher.Start(ctx) }()

	require.Eventually(t, func() bool { return fx.refresher.LatestReport() != nil }, time.Second, 10*time.Millisecond)
	assert.True(t, fx.refresher.IsRunning())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
	assert.False(t, fx.refresher.IsRunning())
}

func TestStartDisabled(t *testing.T) {
	r := New(Config{Enabled: false})
	assert.NoError(t, r.Start(context.Background()))
	assert.Nil(t, r.LatestReport())
}
