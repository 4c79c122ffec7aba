package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stacklytics/internal/analytics"
	"stacklytics/internal/export"
	"stacklytics/internal/metrics"
	"stacklytics/internal/newsletter"
)

type scrapeRequest struct {
	Publication string `json:"publication" validate:"required,pubslug"`
	MaxPosts    *int   `json:"max_posts" validate:"omitempty,gt=0"`
}

type scrapeResponse struct {
	Publication newsletter.Publication `json:"publication"`
	Report      newsletter.RunReport   `json:"report"`
}

// combinedReport is the cached payload served by the analytics endpoint.
type combinedReport struct {
	Publication string                     `json:"publication"`
	DaysBack    int                        `json:"days_back"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Engagement  analytics.EngagementReport `json:"engagement"`
	Growth      analytics.GrowthReport     `json:"growth"`
	Insights    analytics.InsightsReport   `json:"insights"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid scrape request: "+err.Error())
		return
	}

	maxPosts := s.cfg.DefaultMaxPosts
	if req.MaxPosts != nil {
		maxPosts = *req.MaxPosts
	}
	if maxPosts > s.cfg.MaxPostsCap {
		maxPosts = s.cfg.MaxPostsCap
	}

	result, err := s.collector.Collect(r.Context(), req.Publication, maxPosts)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, scrapeResponse{
		Publication: result.Summary,
		Report:      result.Report,
	})
}

func (s *Server) analyticsReport(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !slugExpr.MatchString(slug) {
		s.writeError(w, http.StatusBadRequest, "invalid publication slug")
		return
	}
	daysBack, ok := s.daysParam(w, r)
	if !ok {
		return
	}
	if pub := s.requirePublication(w, r, slug); pub == nil {
		return
	}

	cacheKey := fmt.Sprintf("%s:%d", slug, daysBack)
	if payload, hit := s.cacheGet(r.Context(), cacheKey); hit {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(payload); err != nil {
			s.logger.Error("write cached report failed", zap.Error(err))
		}
		return
	}

	report := combinedReport{
		Publication: slug,
		DaysBack:    daysBack,
		GeneratedAt: s.clock.Now(),
	}
	var err error
	if report.Engagement, err = s.engine.Engagement(r.Context(), slug, daysBack); err != nil {
		s.mapError(w, err)
		return
	}
	if report.Growth, err = s.engine.Growth(r.Context(), slug, daysBack); err != nil {
		s.mapError(w, err)
		return
	}
	if report.Insights, err = s.engine.Insights(r.Context(), slug, daysBack); err != nil {
		s.mapError(w, err)
		return
	}

	payload, err := json.Marshal(report)
	if err != nil {
		s.mapError(w, err)
		return
	}
	s.cacheSet(r.Context(), cacheKey, payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.logger.Error("write report failed", zap.Error(err))
	}
}

func (s *Server) exportJSON(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	posts, ok := s.exportPosts(w, r, slug)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", slug+".json"))
	if err := export.WriteJSON(w, posts); err != nil {
		s.logger.Error("write json export failed", zap.Error(err))
	}
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	posts, ok := s.exportPosts(w, r, slug)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", slug+".csv"))
	if err := export.WriteCSV(w, posts); err != nil {
		s.logger.Error("write csv export failed", zap.Error(err))
	}
}

func (s *Server) exportPosts(w http.ResponseWriter, r *http.Request, slug string) ([]newsletter.Post, bool) {
	if !slugExpr.MatchString(slug) {
		s.writeError(w, http.StatusBadRequest, "invalid publication slug")
		return nil, false
	}
	if pub := s.requirePublication(w, r, slug); pub == nil {
		return nil, false
	}
	posts, err := s.store.QueryPosts(r.Context(), slug, nil, 0)
	if err != nil {
		s.mapError(w, err)
		return nil, false
	}
	return posts, true
}

func (s *Server) listPublications(w http.ResponseWriter, r *http.Request) {
	pubs, err := s.store.ListPublications(r.Context())
	if err != nil {
		s.mapError(w, err)
		return
	}
	if pubs == nil {
		pubs = []newsletter.Publication{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"publications": pubs})
}

func (s *Server) getPublication(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !slugExpr.MatchString(slug) {
		s.writeError(w, http.StatusBadRequest, "invalid publication slug")
		return
	}
	pub := s.requirePublication(w, r, slug)
	if pub == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, pub)
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !slugExpr.MatchString(slug) {
		s.writeError(w, http.StatusBadRequest, "invalid publication slug")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	if pub := s.requirePublication(w, r, slug); pub == nil {
		return
	}
	posts, err := s.store.QueryPosts(r.Context(), slug, nil, limit)
	if err != nil {
		s.mapError(w, err)
		return
	}
	if posts == nil {
		posts = []newsletter.Post{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"publication": slug, "posts": posts})
}

// requirePublication writes a 404 and returns nil when slug is unknown.
func (s *Server) requirePublication(w http.ResponseWriter, r *http.Request, slug string) *newsletter.Publication {
	pub, err := s.store.GetPublication(r.Context(), slug)
	if err != nil {
		s.mapError(w, err)
		return nil
	}
	if pub == nil {
		s.writeError(w, http.StatusNotFound, "publication not found")
		return nil
	}
	return pub
}

// maxDaysBack bounds the analytics window; growth reports allocate one
// bucket per day in the window.
const maxDaysBack = 3650

func (s *Server) daysParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return s.cfg.DefaultDaysBack, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
		return 0, false
	}
	if n > maxDaysBack {
		n = maxDaysBack
	}
	return n, true
}

// Cache failures degrade to recomputation; they never fail the request.
func (s *Server) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("report cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	metrics.ObserveCacheLookup(hit)
	return payload, hit
}

func (s *Server) cacheSet(ctx context.Context, key string, payload []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("report cache set failed", zap.String("key", key), zap.Error(err))
	}
}
