package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stacklytics/internal/metrics"
)

// HostThrottle enforces a minimum inter-request delay per host. Concurrent
// callers for the same host serialize through the same limiter; unrelated
// hosts never share throttle state.
type HostThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

// NewHostThrottle creates a throttle with the given politeness interval.
// A non-positive interval disables throttling.
func NewHostThrottle(interval time.Duration) *HostThrottle {
	return &HostThrottle{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

// Wait blocks until the host's politeness interval has elapsed, respecting
// the context.
func (t *HostThrottle) Wait(ctx context.Context, rawURL string) error {
	if t.interval <= 0 {
		return ctx.Err()
	}
	host := hostOf(rawURL)

	t.mu.Lock()
	limiter, ok := t.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[host] = limiter
	}
	t.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("politeness wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePolitenessDelay(host, waited)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
