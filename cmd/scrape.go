package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stacklytics/internal/analytics"
	"stacklytics/internal/clock"
	"stacklytics/internal/collector"
	"stacklytics/internal/fetch"
	"stacklytics/internal/parse"
	"stacklytics/internal/store"
)

func newScrapeCmd() *cobra.Command {
	var maxPosts int

	cmd := &cobra.Command{
		Use:   "scrape <publication>",
		Short: "Run a single collection for one publication and print the run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, args[0], maxPosts)
		},
	}
	cmd.Flags().IntVar(&maxPosts, "max-posts", 0, "maximum posts to collect (default from config)")
	return cmd
}

func runScrape(cmd *cobra.Command, slug string, maxPosts int) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if maxPosts <= 0 {
		maxPosts = cfg.Collect.DefaultMaxPosts
	}
	if maxPosts > cfg.Collect.MaxPostsCap {
		maxPosts = cfg.Collect.MaxPostsCap
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DB.AutoMigrate {
		if err := store.Migrate(cfg.DB.DSN); err != nil {
			return err
		}
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

	result, err := coll.Collect(ctx, slug, maxPosts)
	if err != nil {
		return fmt.Errorf("collect %s: %w", slug, err)
	}

	// A one-shot run also prints the current engagement report so the
	// scrape is immediately inspectable.
	engine := analytics.New(db, sysClock, cfg.Analytics.ReadingSpeedWPM, logger)
	engagement, err := engine.Engagement(ctx, slug, cfg.Analytics.DefaultDaysBack)
	if err != nil {
		return err
	}

	out := struct {
		Report     any `json:"report"`
		Engagement any `json:"engagement"`
	}{result.Report, engagement}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
