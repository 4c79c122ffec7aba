// Package analytics computes engagement, growth, and insight reports over
// stored posts. All computation happens in memory over a single window
// query; reports for identical inputs are identical.
package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stacklytics/internal/metrics"
	"stacklytics/internal/newsletter"
)

// Engine derives reports from the storage layer.
type Engine struct {
	store      newsletter.Store
	clock      newsletter.Clock
	readingWPM int
	logger     *zap.Logger
}

// New wires an Engine. readingWPM defaults to 200 when non-positive.
func New(store newsletter.Store, clock newsletter.Clock, readingWPM int, logger *zap.Logger) *Engine {
	if readingWPM <= 0 {
		readingWPM = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, clock: clock, readingWPM: readingWPM, logger: logger}
}

// window returns the posts published within the trailing daysBack days.
// daysBack of zero yields an empty window, so every report degrades to its
// well-formed zero shape instead of erroring.
func (e *Engine) window(ctx context.Context, slug string, daysBack int) ([]newsletter.Post, time.Time, error) {
	now := e.clock.Now()
	since := now.Add(-time.Duration(daysBack) * 24 * time.Hour)
	posts, err := e.store.QueryPosts(ctx, slug, &since, 0)
	if err != nil {
		return nil, since, err
	}
	return posts, since, nil
}

// Engagement computes posting-rhythm statistics for slug over the window.
func (e *Engine) Engagement(ctx context.Context, slug string, daysBack int) (EngagementReport, error) {
	posts, _, err := e.window(ctx, slug, daysBack)
	if err != nil {
		return EngagementReport{}, err
	}
	metrics.ObserveReport("engagement")
	return buildEngagement(posts), nil
}

// Growth computes per-day and per-week posting volume for slug over the
// window, including empty buckets.
func (e *Engine) Growth(ctx context.Context, slug string, daysBack int) (GrowthReport, error) {
	posts, since, err := e.window(ctx, slug, daysBack)
	if err != nil {
		return GrowthReport{}, err
	}
	metrics.ObserveReport("growth")
	return buildGrowth(posts, since, e.clock.Now()), nil
}

// Insights computes content statistics and recommendations for slug over
// the window.
func (e *Engine) Insights(ctx context.Context, slug string, daysBack int) (InsightsReport, error) {
	posts, _, err := e.window(ctx, slug, daysBack)
	if err != nil {
		return InsightsReport{}, err
	}
	metrics.ObserveReport("insights")
	return buildInsights(posts, e.clock.Now(), e.readingWPM), nil
}
