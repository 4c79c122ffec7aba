package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stacklytics/internal/newsletter"
)

func TestShouldRetryClassification(t *testing.T) {
	p := NewRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", &newsletter.FetchError{Kind: newsletter.FetchTimeout}, true},
		{"connection", &newsletter.FetchError{Kind: newsletter.FetchConnectionFailed}, true},
		{"server error", &newsletter.FetchError{Kind: newsletter.FetchHTTPStatus, Status: 503}, true},
		{"client error", &newsletter.FetchError{Kind: newsletter.FetchHTTPStatus, Status: 429}, false},
		{"not found", &newsletter.FetchError{Kind: newsletter.FetchNotFound, Status: 404}, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, p.ShouldRetry(tc.err, 0), tc.name)
	}
}

func TestShouldRetryExhaustsBudget(t *testing.T) {
	p := NewRetryPolicy(2, 10*time.Millisecond, 100*time.Millisecond)
	err := &newsletter.FetchError{Kind: newsletter.FetchTimeout}

	require.True(t, p.ShouldRetry(err, 0))
	require.True(t, p.ShouldRetry(err, 1))
	require.False(t, p.ShouldRetry(err, 2))
}

func TestBackoffGrowsAndStaysBounded(t *testing.T) {
	base := 100 * time.Millisecond
	max := 2 * time.Second
	p := NewRetryPolicy(5, base, max)

	for attempt := 0; attempt < 8; attempt++ {
		d := p.Backoff(attempt)
		// Jitter keeps the delay within [half, full] of the exponential step.
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, max)
	}

	// The first attempt waits at least half the base delay.
	require.GreaterOrEqual(t, p.Backoff(0), base/2)
}

func TestPauseRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	pause(ctx, time.Second)
	require.Less(t, time.Since(start), 200*time.Millisecond)
}
