package fetch

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"stacklytics/internal/newsletter"
)

// RetryPolicy decides which fetch failures are transient and how long to
// back off between attempts.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy builds a policy; zero durations fall back to defaults.
func NewRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &RetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// ShouldRetry reports whether the attempt (0-based) should be retried.
// Timeouts, connection failures and 5xx statuses are transient; 404 and
// other client statuses are permanent, as is context cancellation.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *newsletter.FetchError
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Kind {
	case newsletter.FetchTimeout, newsletter.FetchConnectionFailed:
		return true
	case newsletter.FetchHTTPStatus:
		return fe.Status >= 500
	default:
		return false
	}
}

// Backoff returns the jittered wait duration before the next attempt.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// pause waits for d or until the context finishes, whichever comes first.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
