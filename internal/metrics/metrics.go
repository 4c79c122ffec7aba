// Package metrics exposes Prometheus collectors for the analytics service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal        *prometheus.CounterVec
	fetchRetriesTotal        *prometheus.CounterVec
	fetchBytesTotal          *prometheus.CounterVec
	politenessDelaySeconds   *prometheus.HistogramVec
	scrapeRunsTotal          *prometheus.CounterVec
	scrapeDurationSeconds    prometheus.Histogram
	postsUpsertedTotal       prometheus.Counter
	postsSkippedTotal        *prometheus.CounterVec
	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDurationSecs  *prometheus.HistogramVec
	analyticsReportsTotal    *prometheus.CounterVec
	analyticsCacheHitsTotal  *prometheus.CounterVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stacklytics_pages_fetched_total",
				Help: "Total pages fetched, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stacklytics_fetch_retries_total",
				Help: "Total fetch retries, labeled by host.",
			},
			[]string{"host"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stacklytics_fetch_bytes_total",
				Help: "Total bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		politenessDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stacklytics_politeness_delay_seconds",
				Help:    "Histogram of per-host politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stacklytics_scrape_runs_total",
				Help: "Total collection runs, labeled by status.",
			},
			[]string{"status"},
		)

		scrapeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stacklytics_scrape_duration_seconds",
				Help:    "Histogram of collection run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		postsUpsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stacklytics_posts_upserted_total",
				Help: "Total post records upserted into storage.",
			},
		)

		postsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stacklytics_posts_skipped_total",
				Help: "Total posts skipped during collection, labeled by reason.",
			},
			[]string{"reason"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stacklytics_http_requests_total",
				Help: "Total HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stacklytics_http_request_duration_seconds",
				Help:    "Histogram of served HTTP request latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		analyticsReportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stacklytics_analytics_reports_total",
				Help: "Total analytics reports computed, labeled by kind.",
			},
			[]string{"kind"},
		)

		analyticsCacheHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stacklytics_analytics_cache_total",
				Help: "Analytics cache lookups, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL, or "unknown".
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt outcome.
func ObserveFetch(rawURL, outcome string, bytesFetched int) {
	Init()
	host := SanitizeHost(rawURL)
	pagesFetchedTotal.WithLabelValues(host, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveRetry increments the retry counter for a host.
func ObserveRetry(rawURL string) {
	Init()
	fetchRetriesTotal.WithLabelValues(SanitizeHost(rawURL)).Inc()
}

// ObservePolitenessDelay records how long a fetch waited on the throttle.
func ObservePolitenessDelay(host string, d time.Duration) {
	Init()
	politenessDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveScrapeRun records a finished collection run.
func ObserveScrapeRun(status string, d time.Duration) {
	Init()
	scrapeRunsTotal.WithLabelValues(status).Inc()
	scrapeDurationSeconds.Observe(d.Seconds())
}

// AddPostsUpserted bumps the upsert counter.
func AddPostsUpserted(n int) {
	Init()
	if n > 0 {
		postsUpsertedTotal.Add(float64(n))
	}
}

// ObservePostSkipped records a post skipped during collection.
func ObservePostSkipped(reason string) {
	Init()
	postsSkippedTotal.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest records a served API request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveReport records a computed analytics report.
func ObserveReport(kind string) {
	Init()
	analyticsReportsTotal.WithLabelValues(kind).Inc()
}

// ObserveCacheLookup records an analytics cache hit or miss.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	analyticsCacheHitsTotal.WithLabelValues(result).Inc()
}
