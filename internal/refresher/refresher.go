// Package refresher keeps an evaluated report current: it fetches the
// forecast on a ticker, evaluates it and hands the report to the publisher.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"goodweather/internal/forecast"
	"goodweather/internal/logger"
	"goodweather/internal/metrics"
	"goodweather/internal/report"
	"goodweather/internal/schedule"
	"goodweather/internal/weather"
)

// ErrNoForecast is returned by Reevaluate before the first successful refresh.
var ErrNoForecast = errors.New("no forecast loaded yet")

// ForecastCache is the subset of storage.Database the refresher uses.
type ForecastCache interface {
	SaveForecast(key, start, end string, f *forecast.Forecast, fetchedAt time.Time) error
	LatestForecast(key string, maxAge time.Duration, now time.Time) (*forecast.Forecast, time.Time, error)
	PruneSnapshots(olderThan time.Duration, now time.Time) (int64, error)
}

type ReportPublisher interface {
	Publish(r *report.Report) error
	PublishHomeAssistantDiscovery(r *report.Report) error
}

type Refresher struct {
	provider    weather.Provider
	query       weather.Query
	units       string
	cache       ForecastCache
	publisher   ReportPublisher
	interval    time.Duration
	cacheTTL    time.Duration
	retention   time.Duration
	parallelism int
	enabled     bool
	now         func() time.Time
	log         *slog.Logger

	// serializes fetch+evaluate cycles
	refreshMu sync.Mutex

	mu           sync.RWMutex
	thresholds   metrics.Thresholds
	windows      schedule.Windows
	forecast     *forecast.Forecast
	fetchedAt    time.Time
	latest       *report.Report
	lastErr      error
	isRunning    bool
	announcedFor string
}

type Config struct {
	Provider    weather.Provider
	Query       weather.Query
	Units       string
	Cache       ForecastCache
	Publisher   ReportPublisher
	Thresholds  metrics.Thresholds
	Windows     schedule.Windows
	Interval    time.Duration
	CacheTTL    time.Duration
	Retention   time.Duration
	Parallelism int
	Enabled     bool
	Now         func() time.Time
}

func New(cfg Config) *Refresher {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Refresher{
		provider:    cfg.Provider,
		query:       cfg.Query,
		units:       cfg.Units,
		cache:       cfg.Cache,
		publisher:   cfg.Publisher,
		interval:    interval,
		cacheTTL:    cfg.CacheTTL,
		retention:   cfg.Retention,
		parallelism: cfg.Parallelism,
		enabled:     cfg.Enabled,
		now:         now,
		log:         logger.With("component", "refresher"),
		thresholds:  cfg.Thresholds,
		windows:     cfg.Windows,
	}
}

// Start refreshes immediately and then on every tick until ctx is done.
func (r *Refresher) Start(ctx context.Context) error {
	if !r.enabled {
		r.log.Info("refresher is disabled")
		return nil
	}

	r.mu.Lock()
	r.isRunning = true
	r.mu.Unlock()

	r.log.Info("starting refresher", "interval", r.interval, "provider", r.provider.Name())

	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("refresher stopped")
			r.mu.Lock()
			r.isRunning = false
			r.mu.Unlock()
			return nil
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	if _, err := r.RefreshOnce(ctx, false); err != nil {
		r.log.Error("refresh failed", "error", err)
	}
}

// RefreshOnce loads the forecast, evaluates it with the current engine
// settings and publishes the report. The cache is consulted first unless
// force is set.
func (r *Refresher) RefreshOnce(ctx context.Context, force bool) (*report.Report, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	f, fetchedAt, err := r.load(ctx, force)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		return nil, err
	}

	r.mu.Lock()
	r.forecast = f
	r.fetchedAt = fetchedAt
	th, ws := r.thresholds, r.windows
	r.mu.Unlock()

	rep := r.build(f, th, ws)

	r.mu.Lock()
	r.latest = rep
	r.lastErr = nil
	r.mu.Unlock()

	r.publish(rep)
	r.prune()

	r.log.Info("forecast evaluated",
		"report", rep.ID,
		"days", len(rep.Days),
		"good_days", rep.Summary.GoodDays,
		"bad_days", rep.Summary.BadDays,
		"mixed_days", rep.Summary.MixedDays,
		"unknown_days", rep.Summary.UnknownDays,
	)
	return rep, nil
}

func (r *Refresher) load(ctx context.Context, force bool) (*forecast.Forecast, time.Time, error) {
	key := r.cacheKey()
	now := r.now()

	if r.cache != nil && !force && r.cacheTTL > 0 {
		f, fetchedAt, err := r.cache.LatestForecast(key, r.cacheTTL, now)
		if err == nil {
			r.log.Debug("using cached forecast", "key", key, "fetched_at", fetchedAt)
			return f, fetchedAt, nil
		}
		r.log.Debug("forecast cache miss", "key", key, "error", err)
	}

	if r.provider == nil {
		return nil, time.Time{}, fmt.Errorf("no forecast provider configured")
	}
	f, err := r.provider.Forecast(ctx, r.query)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("fetch forecast from %s: %w", r.provider.Name(), err)
	}

	if r.cache != nil {
		if err := r.cache.SaveForecast(key, r.query.StartDate, r.query.EndDate, f, now); err != nil {
			r.log.Warn("failed to cache forecast", "key", key, "error", err)
		}
	}
	return f, now, nil
}

// cacheKey scopes snapshots by provider, unit group and query.
func (r *Refresher) cacheKey() string {
	name := ""
	if r.provider != nil {
		name = r.provider.Name()
	}
	units := r.units
	if units == "" {
		units = weather.UnitsUS
	}
	return name + "|" + units + "|" + r.query.Key()
}

func (r *Refresher) build(f *forecast.Forecast, th metrics.Thresholds, ws schedule.Windows) *report.Report {
	return report.Build(f, ws, th, report.Options{Parallelism: r.parallelism, Now: r.now})
}

func (r *Refresher) publish(rep *report.Report) {
	if r.publisher == nil {
		return
	}

	// Discovery is re-announced only when the window set changes.
	names := fmt.Sprint(rep.Windows.Names())
	r.mu.Lock()
	announce := r.announcedFor != names
	r.mu.Unlock()
	if announce {
		if err := r.publisher.PublishHomeAssistantDiscovery(rep); err != nil {
			r.log.Warn("failed to publish discovery", "error", err)
		} else {
			r.mu.Lock()
			r.announcedFor = names
			r.mu.Unlock()
		}
	}

	if err := r.publisher.Publish(rep); err != nil {
		r.log.Warn("failed to publish report", "error", err)
	}
}

func (r *Refresher) prune() {
	if r.cache == nil || r.retention <= 0 {
		return
	}
	removed, err := r.cache.PruneSnapshots(r.retention, r.now())
	if err != nil {
		r.log.Warn("failed to prune forecast cache", "error", err)
		return
	}
	if removed > 0 {
		r.log.Debug("pruned forecast cache", "removed", removed)
	}
}

// Reevaluate runs the engine over the loaded forecast with th and ws without
// touching the refresher's own settings or latest report.
func (r *Refresher) Reevaluate(th metrics.Thresholds, ws schedule.Windows) (*report.Report, error) {
	r.mu.RLock()
	f := r.forecast
	r.mu.RUnlock()
	if f == nil {
		return nil, ErrNoForecast
	}
	return r.build(f, th, ws), nil
}

// UpdateEngine swaps in new thresholds and windows. When a forecast is
// loaded the report is rebuilt and published right away.
func (r *Refresher) UpdateEngine(th metrics.Thresholds, ws schedule.Windows) *report.Report {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	r.mu.Lock()
	r.thresholds = th
	r.windows = ws
	f := r.forecast
	r.mu.Unlock()

	r.log.Info("engine settings updated", "metrics", len(th), "windows", len(ws))
	if f == nil {
		return nil
	}

	rep := r.build(f, th, ws)
	r.mu.Lock()
	r.latest = rep
	r.mu.Unlock()
	r.publish(rep)
	return rep
}

func (r *Refresher) Engine() (metrics.Thresholds, schedule.Windows) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.thresholds, r.windows
}

func (r *Refresher) LatestReport() *report.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// LastError is the error of the most recent refresh, nil after a success.
func (r *Refresher) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (r *Refresher) FetchedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetchedAt
}

func (r *Refresher) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isRunning
}
