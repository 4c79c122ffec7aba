package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stacklytics/internal/analytics"
	"stacklytics/internal/api"
	"stacklytics/internal/cache"
	"stacklytics/internal/clock"
	"stacklytics/internal/collector"
	"stacklytics/internal/config"
	"stacklytics/internal/export"
	"stacklytics/internal/fetch"
	"stacklytics/internal/metrics"
	"stacklytics/internal/newsletter"
	"stacklytics/internal/parse"
	"stacklytics/internal/schedule"
	"stacklytics/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and optional refresh scheduler",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DB.AutoMigrate {
		if err := store.Migrate(cfg.DB.DSN); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	db, err := store.New(ctx, store.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetime) * time.Second,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	reportCache, err := buildCache(cfg, logger)
	if err != nil {
		return err
	}
	defer reportCache.Close() //nolint:errcheck

	sysClock := clock.New()
	backoffInitial, backoffMax := cfg.BackoffBounds()
	fetcher := fetch.New(fetch.Config{
		UserAgent:       cfg.Source.UserAgent,
		Timeout:         cfg.FetchTimeout(),
		MaxRetries:      cfg.Fetch.MaxRetries,
		BackoffInitial:  backoffInitial,
		BackoffMax:      backoffMax,
		PolitenessDelay: cfg.PolitenessDelay(),
	}, logger)

	coll := collector.New(
		fetcher,
		parse.New(parse.DefaultSchema()),
		db,
		sysClock,
		collector.Config{
			HostTemplate:    cfg.Source.HostTemplate,
			ArchivePath:     cfg.Source.ArchivePath,
			ReadingSpeedWPM: cfg.Analytics.ReadingSpeedWPM,
		},
		logger,
	)
	engine := analytics.New(db, sysClock, cfg.Analytics.ReadingSpeedWPM, logger)

	server := api.NewServer(coll, engine, db, reportCache, sysClock, api.Config{
		DefaultMaxPosts: cfg.Collect.DefaultMaxPosts,
		MaxPostsCap:     cfg.Collect.MaxPostsCap,
		DefaultDaysBack: cfg.Analytics.DefaultDaysBack,
		CacheTTL:        cfg.CacheTTL(),
	}, logger)

	schedulerDone := make(chan struct{})
	if cfg.Schedule.Enabled {
		sink, err := export.NewFileSink(cfg.Export.ReportDir)
		if err != nil {
			return err
		}
		sched := schedule.New(coll, engine, sink, sysClock, schedule.Config{
			Interval:     cfg.ScrapeInterval(),
			Publications: cfg.Schedule.Publications,
			MaxPosts:     cfg.Schedule.MaxPosts,
			DaysBack:     cfg.Analytics.DefaultDaysBack,
		}, logger)
		go func() {
			defer close(schedulerDone)
			sched.Run(ctx)
		}()
	} else {
		close(schedulerDone)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	<-schedulerDone
	logger.Info("server stopped")
	return nil
}

// buildCache returns the Redis cache when configured, otherwise the
// in-memory fallback.
func buildCache(cfg config.Config, logger *zap.Logger) (newsletter.ReportCache, error) {
	if cfg.Redis.URL == "" {
		logger.Info("redis url not set, using in-memory report cache")
		return cache.NewMemory(), nil
	}
	redisCache, err := cache.NewRedis(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to redis report cache")
	return redisCache, nil
}
