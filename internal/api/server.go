// Package api exposes the HTTP interface for the scraper and analytics
// service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"stacklytics/internal/analytics"
	"stacklytics/internal/metrics"
	"stacklytics/internal/newsletter"
)

// CollectorService triggers collection runs.
type CollectorService interface {
	Collect(ctx context.Context, slug string, maxPosts int) (newsletter.Result, error)
}

// AnalyticsService computes reports over stored posts.
type AnalyticsService interface {
	Engagement(ctx context.Context, slug string, daysBack int) (analytics.EngagementReport, error)
	Growth(ctx context.Context, slug string, daysBack int) (analytics.GrowthReport, error)
	Insights(ctx context.Context, slug string, daysBack int) (analytics.InsightsReport, error)
}

// Config carries the handler-level tunables.
type Config struct {
	DefaultMaxPosts int
	MaxPostsCap     int
	DefaultDaysBack int
	CacheTTL        time.Duration
	RequestTimeout  time.Duration
}

// Server wires HTTP handlers to the collector, analytics engine, and store.
type Server struct {
	router    chi.Router
	collector CollectorService
	engine    AnalyticsService
	store     newsletter.Store
	cache     newsletter.ReportCache
	clock     newsletter.Clock
	validate  *validator.Validate
	logger    *zap.Logger
	cfg       Config
}

var slugExpr = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// NewServer constructs a Server with middleware and routes.
func NewServer(
	collector CollectorService,
	engine AnalyticsService,
	store newsletter.Store,
	cache newsletter.ReportCache,
	clock newsletter.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.DefaultMaxPosts <= 0 {
		cfg.DefaultMaxPosts = 50
	}
	if cfg.MaxPostsCap <= 0 {
		cfg.MaxPostsCap = 1000
	}
	if cfg.DefaultDaysBack <= 0 {
		cfg.DefaultDaysBack = 30
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	validate := validator.New()
	_ = validate.RegisterValidation("pubslug", func(fl validator.FieldLevel) bool {
		return slugExpr.MatchString(fl.Field().String())
	})

	s := &Server{
		collector: collector,
		engine:    engine,
		store:     store,
		cache:     cache,
		clock:     clock,
		validate:  validate,
		logger:    logger,
		cfg:       cfg,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/scrape", s.scrape)
		r.Get("/analytics/{slug}", s.analyticsReport)
		r.Get("/export/{slug}.json", s.exportJSON)
		r.Get("/export/{slug}.csv", s.exportCSV)
		r.Get("/publications", s.listPublications)
		r.Get("/publications/{slug}", s.getPublication)
		r.Get("/posts/{slug}", s.listPosts)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListPublications(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain errors onto HTTP status codes. Upstream
// failures surface as 502 because the service itself is healthy.
func (s *Server) mapError(w http.ResponseWriter, err error) {
	var cfgErr *newsletter.ConfigError
	var fetchErr *newsletter.FetchError
	var parseErr *newsletter.ParseError

	switch {
	case errors.As(err, &cfgErr):
		s.writeError(w, http.StatusBadRequest, cfgErr.Error())
	case errors.Is(err, newsletter.ErrRunInFlight):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &fetchErr), errors.As(err, &parseErr):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
