// Package collector orchestrates the fetch/parse/store pipeline for one
// publication at a time.
package collector

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stacklytics/internal/metrics"
	"stacklytics/internal/newsletter"
)

var slugExpr = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// Config controls collection behavior.
type Config struct {
	// HostTemplate receives the publication slug, e.g.
	// "https://%s.substack.com".
	HostTemplate string
	// ArchivePath is appended to the publication root for listings.
	ArchivePath string
	// ReadingSpeedWPM converts word counts into stored read times.
	ReadingSpeedWPM int
}

// Collector walks a publication's paginated archive and persists the
// resulting records. A single run is strictly sequential: pagination and
// per-post fetches share one logical worker so the politeness contract
// holds.
type Collector struct {
	fetcher newsletter.Fetcher
	parser  newsletter.Parser
	store   newsletter.Store
	clock   newsletter.Clock
	logger  *zap.Logger
	cfg     Config
	guard   *runGuard
}

// New wires a Collector.
func New(
	fetcher newsletter.Fetcher,
	parser newsletter.Parser,
	store newsletter.Store,
	clock newsletter.Clock,
	cfg Config,
	logger *zap.Logger,
) *Collector {
	if cfg.ArchivePath == "" {
		cfg.ArchivePath = "/archive"
	}
	if cfg.ReadingSpeedWPM <= 0 {
		cfg.ReadingSpeedWPM = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		fetcher: fetcher,
		parser:  parser,
		store:   store,
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
		guard:   newRunGuard(),
	}
}

// Collect scrapes up to maxPosts posts for slug and upserts them together
// with the publication summary. Per-post failures are recorded in the run
// report and skipped; a publication-info failure aborts the whole run.
func (c *Collector) Collect(ctx context.Context, slug string, maxPosts int) (newsletter.Result, error) {
	if !slugExpr.MatchString(slug) {
		return newsletter.Result{}, &newsletter.ConfigError{Field: "publication", Reason: "must be a lowercase slug"}
	}
	if maxPosts <= 0 {
		return newsletter.Result{}, &newsletter.ConfigError{Field: "max_posts", Reason: "must be > 0"}
	}
	if err := c.guard.acquire(slug); err != nil {
		return newsletter.Result{}, err
	}
	defer c.guard.release(slug)

	started := c.clock.Now()
	report := newsletter.RunReport{
		RunID:       uuid.NewString(),
		Publication: slug,
		Requested:   maxPosts,
		StartedAt:   started,
	}
	logger := c.logger.With(zap.String("run_id", report.RunID), zap.String("publication", slug))
	logger.Info("collection run started", zap.Int("max_posts", maxPosts))

	result, err := c.run(ctx, slug, maxPosts, &report, logger)
	report.DurationMs = c.clock.Now().Sub(started).Milliseconds()
	result.Report = report

	status := "succeeded"
	if err != nil {
		status = "failed"
		logger.Error("collection run failed", zap.Error(err))
	} else {
		logger.Info("collection run finished",
			zap.Int("listed", report.Listed),
			zap.Int("collected", report.Collected),
			zap.Int("skipped", len(report.Skipped)),
		)
	}
	metrics.ObserveScrapeRun(status, c.clock.Now().Sub(started))
	return result, err
}

func (c *Collector) run(
	ctx context.Context,
	slug string,
	maxPosts int,
	report *newsletter.RunReport,
	logger *zap.Logger,
) (newsletter.Result, error) {
	baseURL := fmt.Sprintf(c.cfg.HostTemplate, slug)

	// Step 1: publication info. Failure here is fatal; there are no posts
	// without a publication record.
	page, err := c.fetcher.Fetch(ctx, baseURL)
	if err != nil {
		return newsletter.Result{}, fmt.Errorf("publication page: %w", err)
	}
	info, err := c.parser.Publication(page.Body)
	if err != nil {
		return newsletter.Result{}, fmt.Errorf("publication page: %w", err)
	}

	// Step 2: walk the paginated archive.
	stubs, err := c.walkArchive(ctx, baseURL, maxPosts, report, logger)
	if err != nil {
		return newsletter.Result{}, err
	}
	report.Listed = len(stubs)
	if len(stubs) > maxPosts {
		stubs = stubs[:maxPosts]
	}

	// Step 3: fetch post detail; a bad post never aborts the batch.
	posts := c.fetchDetails(ctx, slug, stubs, report, logger)
	if err := ctx.Err(); err != nil {
		return newsletter.Result{}, fmt.Errorf("collection canceled: %w", err)
	}

	// Step 4: dedup by identifier; the later occurrence wins since
	// listings are most-recent-first.
	posts = dedupe(posts)
	report.Collected = len(posts)

	summary := newsletter.Publication{
		Slug:            slug,
		DisplayName:     orDefault(info.DisplayName, slug),
		Description:     info.Description,
		Author:          info.Author,
		SubscriberCount: info.SubscriberCount,
		URL:             baseURL,
		PostCount:       len(posts),
		LastScrapedAt:   c.clock.Now(),
	}

	if err := c.store.UpsertPublication(ctx, summary); err != nil {
		return newsletter.Result{}, err
	}
	upserted, err := c.store.UpsertPosts(ctx, posts)
	if err != nil {
		return newsletter.Result{}, err
	}
	metrics.AddPostsUpserted(upserted)

	return newsletter.Result{Summary: summary, Posts: posts}, nil
}

// walkArchive accumulates stubs page by page, terminating on a 404, an
// empty page, or once maxPosts stubs have been listed. A malformed page is
// fatal on page 1 (no archive at all) and ends pagination afterwards, with
// the discrepancy recorded in the run report.
func (c *Collector) walkArchive(
	ctx context.Context,
	baseURL string,
	maxPosts int,
	report *newsletter.RunReport,
	logger *zap.Logger,
) ([]newsletter.PostStub, error) {
	var stubs []newsletter.PostStub

	for pageNum := 1; len(stubs) < maxPosts; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("collection canceled: %w", err)
		}
		pageURL := baseURL + c.cfg.ArchivePath + "?page=" + strconv.Itoa(pageNum)

		page, err := c.fetcher.Fetch(ctx, pageURL)
		if newsletter.IsNotFound(err) {
			// Normal end-of-pagination signal, not an error.
			break
		}
		if err != nil {
			if pageNum == 1 {
				return nil, fmt.Errorf("archive page 1: %w", err)
			}
			report.Skipped = append(report.Skipped, newsletter.SkippedPost{
				URL:    pageURL,
				Reason: "listing fetch failed: " + err.Error(),
			})
			logger.Warn("listing fetch failed, ending pagination", zap.String("url", pageURL), zap.Error(err))
			break
		}
		report.PagesRead++

		pageStubs, err := c.parser.Listing(pageURL, page.Body)
		if err != nil {
			if pageNum == 1 {
				return nil, fmt.Errorf("archive page 1: %w", err)
			}
			report.Skipped = append(report.Skipped, newsletter.SkippedPost{
				URL:    pageURL,
				Reason: "listing parse failed: " + err.Error(),
			})
			logger.Warn("listing parse failed, ending pagination", zap.String("url", pageURL), zap.Error(err))
			break
		}
		if len(pageStubs) == 0 {
			// Empty-but-valid page terminates pagination.
			break
		}
		stubs = append(stubs, pageStubs...)
	}
	return stubs, nil
}

func (c *Collector) fetchDetails(
	ctx context.Context,
	slug string,
	stubs []newsletter.PostStub,
	report *newsletter.RunReport,
	logger *zap.Logger,
) []newsletter.Post {
	posts := make([]newsletter.Post, 0, len(stubs))
	for _, stub := range stubs {
		if ctx.Err() != nil {
			return posts
		}

		page, err := c.fetcher.Fetch(ctx, stub.URL)
		if err != nil {
			c.skip(report, logger, stub.URL, "fetch failed: "+err.Error())
			continue
		}
		detail, err := c.parser.Post(page.Body)
		if err != nil {
			c.skip(report, logger, stub.URL, err.Error())
			continue
		}

		posts = append(posts, newsletter.Post{
			ID:              stub.ID,
			PublicationSlug: slug,
			Title:           orDefault(detail.Title, stub.Title),
			PublishedAt:     detail.PublishedAt,
			WordCount:       detail.WordCount,
			ReadTimeMinutes: readTime(detail.WordCount, c.cfg.ReadingSpeedWPM),
			Tags:            detail.Tags,
			IsPremium:       detail.IsPremium,
			URL:             stub.URL,
		})
	}
	return posts
}

func (c *Collector) skip(report *newsletter.RunReport, logger *zap.Logger, url, reason string) {
	report.Skipped = append(report.Skipped, newsletter.SkippedPost{URL: url, Reason: reason})
	metrics.ObservePostSkipped("post")
	logger.Warn("post skipped", zap.String("url", url), zap.String("reason", reason))
}

// dedupe drops duplicate post IDs, keeping the later occurrence's fields in
// the earlier slot so ordering stays most-recent-first.
func dedupe(posts []newsletter.Post) []newsletter.Post {
	index := make(map[string]int, len(posts))
	out := posts[:0]
	for _, post := range posts {
		if at, seen := index[post.ID]; seen {
			out[at] = post
			continue
		}
		index[post.ID] = len(out)
		out = append(out, post)
	}
	return out
}

func readTime(words, wpm int) int {
	if words <= 0 {
		return 1
	}
	minutes := words / wpm
	if minutes < 1 {
		return 1
	}
	return minutes
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
