// Package schedule runs periodic publication refreshes: collect, compute
// reports, and export a snapshot to the report sink.
package schedule

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bpradana/weave"
	"go.uber.org/zap"

	"stacklytics/internal/analytics"
	"stacklytics/internal/api"
	"stacklytics/internal/newsletter"
)

// ReportSink receives finished report snapshots.
type ReportSink interface {
	WriteReport(slug string, generatedAt time.Time, payload []byte) (string, error)
}

// Config controls the refresh loop.
type Config struct {
	Interval     time.Duration
	Publications []string
	MaxPosts     int
	DaysBack     int
}

// Scheduler refreshes a fixed set of publications on a timer. Each refresh
// is a small task graph so the report and export stages only run after a
// successful collection.
type Scheduler struct {
	collector api.CollectorService
	engine    api.AnalyticsService
	sink      ReportSink
	clock     newsletter.Clock
	logger    *zap.Logger
	cfg       Config
}

// New wires a Scheduler.
func New(
	collector api.CollectorService,
	engine api.AnalyticsService,
	sink ReportSink,
	clock newsletter.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxPosts <= 0 {
		cfg.MaxPosts = 50
	}
	if cfg.DaysBack <= 0 {
		cfg.DaysBack = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		collector: collector,
		engine:    engine,
		sink:      sink,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run executes one refresh pass immediately, then one per interval until
// ctx is canceled. A failed publication never blocks the others.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Strings("publications", s.cfg.Publications),
	)
	s.refreshAll(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.refreshAll(ctx)
		}
	}
}

func (s *Scheduler) refreshAll(ctx context.Context) {
	for _, slug := range s.cfg.Publications {
		if ctx.Err() != nil {
			return
		}
		if err := s.Refresh(ctx, slug); err != nil {
			s.logger.Error("scheduled refresh failed", zap.String("publication", slug), zap.Error(err))
		}
	}
}

// snapshot is the report payload written to the sink.
type snapshot struct {
	Publication string                     `json:"publication"`
	DaysBack    int                        `json:"days_back"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Run         newsletter.RunReport       `json:"run"`
	Engagement  analytics.EngagementReport `json:"engagement"`
	Growth      analytics.GrowthReport     `json:"growth"`
	Insights    analytics.InsightsReport   `json:"insights"`
}

// Refresh collects slug and writes a full report snapshot. The stages form
// a dependency graph: reports wait on collection, the export waits on the
// reports.
func (s *Scheduler) Refresh(ctx context.Context, slug string) error {
	graph := weave.NewGraph()

	collect, err := weave.AddTask(graph, "collect",
		func(ctx context.Context, _ weave.DependencyResolver) (newsletter.Result, error) {
			return s.collector.Collect(ctx, slug, s.cfg.MaxPosts)
		})
	if err != nil {
		return err
	}

	report, err := weave.AddTask(graph, "report",
		func(ctx context.Context, deps weave.DependencyResolver) (snapshot, error) {
			result, err := collect.Value(deps)
			if err != nil {
				return snapshot{}, err
			}
			snap := snapshot{
				Publication: slug,
				DaysBack:    s.cfg.DaysBack,
				GeneratedAt: s.clock.Now(),
				Run:         result.Report,
			}
			if snap.Engagement, err = s.engine.Engagement(ctx, slug, s.cfg.DaysBack); err != nil {
				return snapshot{}, err
			}
			if snap.Growth, err = s.engine.Growth(ctx, slug, s.cfg.DaysBack); err != nil {
				return snapshot{}, err
			}
			if snap.Insights, err = s.engine.Insights(ctx, slug, s.cfg.DaysBack); err != nil {
				return snapshot{}, err
			}
			return snap, nil
		}, weave.DependsOn(collect))
	if err != nil {
		return err
	}

	exportTask, err := weave.AddTask(graph, "export",
		func(_ context.Context, deps weave.DependencyResolver) (string, error) {
			snap, err := report.Value(deps)
			if err != nil {
				return "", err
			}
			payload, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return "", err
			}
			return s.sink.WriteReport(slug, snap.GeneratedAt, payload)
		}, weave.DependsOn(report))
	if err != nil {
		return err
	}

	results, _, err := graph.Run(ctx)
	if err != nil {
		return err
	}
	path, err := exportTask.Value(results)
	if err != nil {
		return err
	}
	s.logger.Info("refresh finished", zap.String("publication", slug), zap.String("report", path))
	return nil
}
