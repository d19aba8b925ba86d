package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"goodweather/internal/forecast"
	"goodweather/internal/logger"
	"goodweather/internal/metrics"
	"goodweather/internal/refresher"
	"goodweather/internal/report"
	"goodweather/internal/schedule"
	"goodweather/internal/storage"
)

// Engine is the part of refresher.Refresher the API drives.
type Engine interface {
	LatestReport() *report.Report
	RefreshOnce(ctx context.Context, force bool) (*report.Report, error)
	Reevaluate(th metrics.Thresholds, ws schedule.Windows) (*report.Report, error)
	UpdateEngine(th metrics.Thresholds, ws schedule.Windows) *report.Report
	Engine() (metrics.Thresholds, schedule.Windows)
	LastError() error
	FetchedAt() time.Time
	IsRunning() bool
}

// EngineStore persists engine settings, normally config.Config.
type EngineStore interface {
	SaveEngine(th metrics.Thresholds, ws schedule.Windows) error
}

// CacheInspector reports on the forecast snapshot cache, normally
// storage.Database.
type CacheInspector interface {
	Stats() (*storage.CacheStats, error)
}

type Server struct {
	router       *gin.Engine
	server       *http.Server
	engine       Engine
	store        EngineStore
	cache        CacheInspector
	port         int
	parallelism  int
	refreshLimit time.Duration
	configMutex  sync.Mutex
}

type ServerConfig struct {
	Port         int
	Engine       Engine
	Store        EngineStore
	Cache        CacheInspector
	Parallelism  int
	RefreshLimit time.Duration
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	refreshLimit := cfg.RefreshLimit
	if refreshLimit <= 0 {
		refreshLimit = 30 * time.Second
	}

	s := &Server{
		router:       router,
		engine:       cfg.Engine,
		store:        cfg.Store,
		cache:        cfg.Cache,
		port:         cfg.Port,
		parallelism:  cfg.Parallelism,
		refreshLimit: refreshLimit,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api/v1")
	{
		api.GET("/report", s.reportHandler)
		api.GET("/report/days/:date", s.reportDayHandler)
		api.GET("/report/good-windows", s.goodWindowsHandler)
		api.POST("/evaluate", s.evaluateHandler)
		api.POST("/refresh", s.refreshHandler)
		api.GET("/windows", s.windowsHandler)
		api.GET("/windows/:name", s.windowHandler)
		api.GET("/weekdays", s.weekdaysHandler)

		api.GET("/config/thresholds", s.getThresholdsHandler)
		api.PUT("/config/thresholds", s.updateThresholdsHandler)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api server starting", "port", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	status := "healthy"
	lastError := ""
	if err := s.engine.LastError(); err != nil {
		status = "degraded"
		lastError = err.Error()
	}

	var fetchedAt *time.Time
	if t := s.engine.FetchedAt(); !t.IsZero() {
		fetchedAt = &t
	}

	body := gin.H{
		"status":     status,
		"refreshing": s.engine.IsRunning(),
		"has_report": s.engine.LatestReport() != nil,
		"fetched_at": fetchedAt,
		"last_error": lastError,
		"timestamp":  time.Now(),
	}
	if s.cache != nil {
		stats, err := s.cache.Stats()
		if err != nil {
			logger.Warn("failed to read cache stats", "error", err)
			body["status"] = "degraded"
			body["cache_error"] = err.Error()
		} else {
			body["cache"] = stats
		}
	}

	c.JSON(http.StatusOK, body)
}

func (s *Server) latestReport(c *gin.Context) (*report.Report, bool) {
	r := s.engine.LatestReport()
	if r == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No report available yet",
		})
		return nil, false
	}
	return r, true
}

func (s *Server) reportHandler(c *gin.Context) {
	r, ok := s.latestReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) reportDayHandler(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.Parse(forecast.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format, expected YYYY-MM-DD"})
		return
	}

	r, ok := s.latestReport(c)
	if !ok {
		return
	}
	day, found := r.Day(date)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No forecast for %s", date)})
		return
	}
	c.JSON(http.StatusOK, day)
}

func (s *Server) goodWindowsHandler(c *gin.Context) {
	r, ok := s.latestReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report":  r.ID,
		"windows": r.GoodWindows(),
	})
}

// EvaluateRequest overrides the engine settings for one evaluation. A
// threshold set to null drops that metric; absent metrics keep their current
// range. Empty Windows keeps the configured windows. With Forecast set the
// posted document is evaluated instead of the loaded one.
type EvaluateRequest struct {
	Thresholds map[string]*metrics.Range `json:"thresholds"`
	Windows    []schedule.Window         `json:"windows"`
	Forecast   *forecast.Forecast        `json:"forecast"`
}

func (s *Server) evaluateHandler(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currentTh, currentWs := s.engine.Engine()

	ranges := make(map[metrics.Metric]metrics.Range, len(currentTh))
	for m, r := range currentTh {
		ranges[m] = r
	}
	for name, r := range req.Thresholds {
		if r == nil {
			delete(ranges, metrics.Metric(name))
			continue
		}
		ranges[metrics.Metric(name)] = *r
	}
	th, err := metrics.NewThresholds(metrics.DefaultCatalog(), ranges)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws := currentWs
	if len(req.Windows) > 0 {
		ws, err = schedule.NewWindows(req.Windows...)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if req.Forecast != nil {
		c.JSON(http.StatusOK, report.Build(req.Forecast, ws, th, report.Options{Parallelism: s.parallelism}))
		return
	}

	r, err := s.engine.Reevaluate(th, ws)
	if err != nil {
		if errors.Is(err, refresher.ErrNoForecast) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) refreshHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.refreshLimit)
	defer cancel()

	r, err := s.engine.RefreshOnce(ctx, true)
	if err != nil {
		logger.Warn("manual refresh failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) windowsHandler(c *gin.Context) {
	_, ws := s.engine.Engine()
	c.JSON(http.StatusOK, ws)
}

func (s *Server) windowHandler(c *gin.Context) {
	name := c.Param("name")
	_, ws := s.engine.Engine()
	w, ok := ws.Lookup(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Unknown window %q", name)})
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) weekdaysHandler(c *gin.Context) {
	c.JSON(http.StatusOK, schedule.WeekdayLabels())
}

func (s *Server) getThresholdsHandler(c *gin.Context) {
	th, _ := s.engine.Engine()
	c.JSON(http.StatusOK, th)
}

// updateThresholdsHandler replaces the threshold set. Metrics missing from
// the body are no longer evaluated.
func (s *Server) updateThresholdsHandler(c *gin.Context) {
	var req map[string]metrics.Range
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ranges := make(map[metrics.Metric]metrics.Range, len(req))
	for name, r := range req {
		ranges[metrics.Metric(name)] = r
	}
	th, err := metrics.NewThresholds(metrics.DefaultCatalog(), ranges)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.configMutex.Lock()
	defer s.configMutex.Unlock()

	_, ws := s.engine.Engine()
	s.engine.UpdateEngine(th, ws)

	if s.store != nil {
		if err := s.store.SaveEngine(th, ws); err != nil {
			logger.Warn("failed to save thresholds to config file", "error", err)
			c.JSON(http.StatusOK, gin.H{
				"message":    "Thresholds applied but not persisted to file",
				"warning":    err.Error(),
				"thresholds": th,
			})
			return
		}
	}

	logger.Info("thresholds updated", "metrics", th.Metrics())
	c.JSON(http.StatusOK, gin.H{
		"message":    "Thresholds updated successfully",
		"thresholds": th,
	})
}
