// Package fetch implements the rate-limited page fetcher on top of colly.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"stacklytics/internal/metrics"
	"stacklytics/internal/newsletter"
)

// Config controls fetcher behavior.
type Config struct {
	UserAgent       string
	Timeout         time.Duration
	MaxRetries      int
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	PolitenessDelay time.Duration
}

// Fetcher implements newsletter.Fetcher using a colly collector, a per-host
// politeness throttle and a bounded retry policy.
type Fetcher struct {
	cfg       Config
	throttle  *HostThrottle
	retry     *RetryPolicy
	base      *colly.Collector
	transport *http.Transport
	logger    *zap.Logger
}

// New builds a Fetcher. The HTTP transport is built once and shared by
// every request so keep-alive connections survive across fetches.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := newHTTPTransport()
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	return &Fetcher{
		cfg:       cfg,
		throttle:  NewHostThrottle(cfg.PolitenessDelay),
		retry:     NewRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax),
		base:      c,
		transport: transport,
		logger:    logger,
	}
}

// Fetch executes a throttled HTTP GET with retries on transient failures.
// 404 responses come back as FetchError{Kind: NotFound} without retry; the
// orchestrator treats them as end-of-pagination, not as failures.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (newsletter.Page, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return newsletter.Page{}, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	for attempt := 0; ; attempt++ {
		if err := f.throttle.Wait(ctx, rawURL); err != nil {
			return newsletter.Page{}, err
		}

		page, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			metrics.ObserveFetch(rawURL, "ok", len(page.Body))
			return page, nil
		}
		if !f.retry.ShouldRetry(err, attempt) {
			metrics.ObserveFetch(rawURL, "error", 0)
			return newsletter.Page{}, err
		}

		backoff := f.retry.Backoff(attempt)
		f.logger.Warn("transient fetch failure, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		metrics.ObserveRetry(rawURL)
		pause(ctx, backoff)
		if ctx.Err() != nil {
			return newsletter.Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (newsletter.Page, error) {
	var (
		page     newsletter.Page
		status   int
		fetchErr error
	)
	start := time.Now()

	collector := f.base.Clone()
	collector.WithTransport(f.transport)
	collector.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.OnResponse(func(r *colly.Response) {
		page = newsletter.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		// The visit goroutine may still be writing page, status and
		// fetchErr; none of them can be read on this branch.
		return newsletter.Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return newsletter.Page{}, classify(rawURL, status, err)
		}
	}
	if fetchErr != nil {
		return newsletter.Page{}, classify(rawURL, status, fetchErr)
	}
	return page, nil
}

// classify maps a transport failure onto the FetchError taxonomy.
func classify(rawURL string, status int, err error) error {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return &newsletter.FetchError{Kind: newsletter.FetchNotFound, URL: rawURL, Status: status, Err: err}
	case status > 0:
		return &newsletter.FetchError{Kind: newsletter.FetchHTTPStatus, URL: rawURL, Status: status, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &newsletter.FetchError{Kind: newsletter.FetchTimeout, URL: rawURL, Err: err}
	}
	return &newsletter.FetchError{Kind: newsletter.FetchConnectionFailed, URL: rawURL, Err: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
