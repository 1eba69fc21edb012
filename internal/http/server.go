// Package http serves the chat log API: project listings for dashboards,
// conversation ingestion and semantic search.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/fyrsmithlabs/chatlog/internal/secrets"
	"github.com/fyrsmithlabs/chatlog/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
	maxBodyBytes       = 10 << 20
)

// Server provides HTTP endpoints for chatlog.
type Server struct {
	echo      *echo.Echo
	assembler *conversation.Assembler
	store     *store.Store
	scrubber  *secrets.Scrubber
	logger    *logging.Logger
	config    *Config

	cache *projectCache
	prom  *promMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host     string
	Port     int
	CacheTTL time.Duration
	// Meter overrides the global meter provider for request metrics.
	Meter metric.Meter
}

// Services are the collaborators behind the API. Scrubber is optional.
type Services struct {
	Assembler *conversation.Assembler
	Store     *store.Store
	Scrubber  *secrets.Scrubber
}

// NewServer creates a new HTTP server.
func NewServer(svc Services, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc.Assembler == nil {
		return nil, fmt.Errorf("assembler cannot be nil")
	}
	if svc.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:     "localhost",
			Port:     5002,
			CacheTTL: 60 * time.Second,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		assembler: svc.Assembler,
		store:     svc.Store,
		scrubber:  svc.Scrubber,
		logger:    logger,
		config:    cfg,
		cache:     newProjectCache(cfg.CacheTTL),
		prom:      newPromMetrics(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(middleware.BodyLimit(strconv.Itoa(maxBodyBytes)))
	e.Use(NewHTTPMetrics(cfg.Meter).Middleware())

	s.registerRoutes()
	return s, nil
}

// requestLogger puts the request id on the context and logs every request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(c.Request().Context(), rid)
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)

		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.prom.registry, promhttp.HandlerOpts{})))

	// Dashboard listing.
	s.echo.GET("/api/projects", s.handleProjects)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/conversations", s.handleSave)
	v1.POST("/enrich", s.handleEnrich)
	v1.GET("/conversations/search", s.handleSearch)
	v1.GET("/conversations/:id", s.handleGet)
	if s.scrubber != nil {
		v1.POST("/scrub", s.handleScrub)
	}
}

// Echo returns the underlying router.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) handleHealth(c echo.Context) error {
	ov, err := s.store.Overview()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "logs directory unreadable")
	}
	resp := HealthResponse{Status: "ok", Conversations: len(ov.ProjectSummaries)}
	if idx := s.store.Index(); idx != nil {
		n := idx.Count()
		resp.Indexed = &n
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleProjects(c echo.Context) error {
	ov, hit, err := s.cache.get(s.store.Overview)
	if err != nil {
		s.logger.Error(c.Request().Context(), "listing projects failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read conversations")
	}
	if hit {
		s.prom.cacheHits.Inc()
	} else {
		s.prom.cacheMisses.Inc()
	}
	return c.JSON(http.StatusOK, ov)
}

// readRequest decodes either a bare message array or a request object.
func (s *Server) readRequest(c echo.Context) (conversation.Request, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return conversation.Request{}, echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	req, err := conversation.DecodeRequest(body)
	if err != nil {
		s.logger.Warn(c.Request().Context(), "invalid conversation request", zap.Error(err))
		return conversation.Request{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return req, nil
}

func (s *Server) assemble(c echo.Context) (*conversation.Record, error) {
	req, err := s.readRequest(c)
	if err != nil {
		return nil, err
	}
	rec, err := s.assembler.Assemble(c.Request().Context(), req)
	if errors.Is(err, conversation.ErrCredentialRequired) {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		s.logger.Error(c.Request().Context(), "assembling conversation failed", zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to process conversation")
	}
	return rec, nil
}

func (s *Server) handleEnrich(c echo.Context) error {
	rec, err := s.assemble(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleSave(c echo.Context) error {
	rec, err := s.assemble(c)
	if err != nil {
		return err
	}
	path, err := s.store.Save(c.Request().Context(), rec)
	if err != nil {
		s.logger.Error(c.Request().Context(), "saving conversation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save conversation")
	}
	s.cache.invalidate()
	s.prom.saved.WithLabelValues(rec.ProjectName).Inc()
	return c.JSON(http.StatusCreated, SaveResponse{ID: rec.ID, Path: path, Record: rec})
}

func (s *Server) handleGet(c echo.Context) error {
	rec, err := s.store.Sink().Get(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read conversation")
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleSearch(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}
	k := defaultSearchLimit
	if raw := c.QueryParam("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSearchLimit {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("k must be between 1 and %d", maxSearchLimit))
		}
		k = n
	}

	hits, err := s.store.Search(c.Request().Context(), q, k, c.QueryParam("project"))
	if errors.Is(err, store.ErrIndexDisabled) {
		return echo.NewHTTPError(http.StatusNotImplemented, "search index is disabled")
	}
	if err != nil {
		s.logger.Error(c.Request().Context(), "search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	return c.JSON(http.StatusOK, SearchResponse{Query: q, Results: hits})
}

func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}
	result := s.scrubber.Scrub(req.Content)
	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Scrubbed,
		FindingsCount: len(result.Findings),
	})
}

// WatchLogs invalidates the project cache whenever a record file in the
// logs directory changes. It blocks until ctx is done.
func (s *Server) WatchLogs(ctx context.Context) error {
	w, err := store.NewWatcher(s.store.Sink().Dir())
	if err != nil {
		return err
	}
	return w.Run(ctx,
		func(path string) {
			s.cache.invalidate()
			s.prom.invalidation.Inc()
			s.logger.Debug(ctx, "logs directory changed", zap.String("path", path))
		},
		func(err error) {
			s.logger.Warn(ctx, "logs watcher error", zap.Error(err))
		},
	)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
