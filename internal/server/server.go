// Package server exposes the daemon's HTTP surface: liveness,
// per-backend readiness, Prometheus metrics, and engine stats.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/e6labs/ultramemory/internal/logging"
	"github.com/e6labs/ultramemory/internal/memory"
)

// checkTimeout bounds each backend readiness probe.
const checkTimeout = 5 * time.Second

// Checker probes one backend dependency.
type Checker func(ctx context.Context) error

// MemoryProvider is the coordinator surface the HTTP API exposes:
// engine statistics plus the cache-backed activity readers. Satisfied
// by *memory.Coordinator.
type MemoryProvider interface {
	Stats(ctx context.Context) (*memory.Stats, error)
	RecentDocuments(ctx context.Context, limit int) ([]string, error)
	FrequentQueries(ctx context.Context, minCount int) ([]memory.QueryFrequency, error)
	QueryHistory(ctx context.Context, limit int) ([]memory.QueryHistoryEntry, error)
	WarmCache(ctx context.Context) (int, error)
}

// Config holds the listen address.
type Config struct {
	Host string
	Port int
}

// Server is the echo-based HTTP server.
type Server struct {
	echo   *echo.Echo
	mem    MemoryProvider
	checks map[string]Checker
	logger *logging.Logger
	addr   string
}

// New builds the server. checks maps backend names (vector, graph,
// cache) to their probes; readiness fans out over all of them.
func New(mem MemoryProvider, checks map[string]Checker, cfg Config, logger *logging.Logger) (*Server, error) {
	if mem == nil {
		return nil, fmt.Errorf("memory provider is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9732
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
			return err
		}
	})

	s := &Server{
		echo:   e,
		mem:    mem,
		checks: checks,
		logger: logger.Named("server"),
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/readyz", s.handleReadyz)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/stats", s.handleStats)
	v1.GET("/recent", s.handleRecent)
	v1.GET("/queries/frequent", s.handleFrequentQueries)
	v1.GET("/queries/history", s.handleQueryHistory)
	v1.POST("/cache/warm", s.handleWarmCache)
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the /readyz body: one entry per backend, "ok" or
// the probe error.
type ReadyResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleReadyz(c echo.Context) error {
	resp := ReadyResponse{Status: "ready", Backends: map[string]string{}}
	code := http.StatusOK

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
		err := check(ctx)
		cancel()

		if err != nil {
			resp.Backends[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Backends[name] = "ok"
	}
	return c.JSON(code, resp)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.mem.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error(c.Request().Context(), "stats failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "stats unavailable")
	}
	return c.JSON(http.StatusOK, stats)
}

// RecentResponse is the /api/v1/recent body.
type RecentResponse struct {
	Documents []string `json:"documents"`
}

func (s *Server) handleRecent(c echo.Context) error {
	ids, err := s.mem.RecentDocuments(c.Request().Context(), intParam(c, "limit"))
	if err != nil {
		s.logger.Error(c.Request().Context(), "recent documents failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "recent documents unavailable")
	}
	return c.JSON(http.StatusOK, RecentResponse{Documents: ids})
}

func (s *Server) handleFrequentQueries(c echo.Context) error {
	freq, err := s.mem.FrequentQueries(c.Request().Context(), intParam(c, "min"))
	if err != nil {
		s.logger.Error(c.Request().Context(), "frequent queries failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "frequent queries unavailable")
	}
	if freq == nil {
		freq = []memory.QueryFrequency{}
	}
	return c.JSON(http.StatusOK, freq)
}

func (s *Server) handleQueryHistory(c echo.Context) error {
	history, err := s.mem.QueryHistory(c.Request().Context(), intParam(c, "limit"))
	if err != nil {
		s.logger.Error(c.Request().Context(), "query history failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "query history unavailable")
	}
	if history == nil {
		history = []memory.QueryHistoryEntry{}
	}
	return c.JSON(http.StatusOK, history)
}

// WarmCacheResponse is the /api/v1/cache/warm body.
type WarmCacheResponse struct {
	Warmed int `json:"warmed"`
}

func (s *Server) handleWarmCache(c echo.Context) error {
	warmed, err := s.mem.WarmCache(c.Request().Context())
	if err != nil {
		s.logger.Error(c.Request().Context(), "cache warm-up failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "cache warm-up failed")
	}
	return c.JSON(http.StatusOK, WarmCacheResponse{Warmed: warmed})
}

// intParam reads an integer query parameter, 0 when absent or invalid.
// Callers treat 0 as "use the default".
func intParam(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "http server listening", zap.String("addr", s.addr))
	err := s.echo.Start(s.addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "http server stopping")
	return s.echo.Shutdown(ctx)
}
