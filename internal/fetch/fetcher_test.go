package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stacklytics/internal/newsletter"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return New(Config{
		UserAgent:       "stacklytics-test/1.0",
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		BackoffInitial:  5 * time.Millisecond,
		BackoffMax:      20 * time.Millisecond,
		PolitenessDelay: time.Millisecond,
	}, nil)
}

func TestFetchSuccess(t *testing.T) {
	var gotAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent.Store(r.UserAgent())
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	page, err := testFetcher(t).Fetch(context.Background(), srv.URL+"/archive?page=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "ok")
	require.Equal(t, "stacklytics-test/1.0", gotAgent.Load())
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher(t).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.True(t, newsletter.IsNotFound(err))
	require.Equal(t, int32(1), hits.Load())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	page, err := testFetcher(t).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, string(page.Body), "recovered")
	require.Equal(t, int32(3), hits.Load())
}

func TestFetchGivesUpAfterRetryBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testFetcher(t).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *newsletter.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, newsletter.FetchHTTPStatus, fe.Kind)
	require.Equal(t, http.StatusInternalServerError, fe.Status)
	// Initial attempt plus two retries.
	require.Equal(t, int32(3), hits.Load())
}

func TestFetchRejectsMalformedURL(t *testing.T) {
	_, err := testFetcher(t).Fetch(context.Background(), "://nope")
	require.Error(t, err)

	// Malformed URLs fail before transport, so no FetchError is produced.
	var fe *newsletter.FetchError
	require.False(t, errors.As(err, &fe))
}

func TestFetchCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := testFetcher(t).Fetch(ctx, srv.URL)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)

	// An in-flight cancellation surfaces the context error as-is; the
	// response classification only applies to completed visits.
	require.ErrorIs(t, err, context.DeadlineExceeded)
	var fe *newsletter.FetchError
	require.False(t, errors.As(err, &fe))
}

func TestFetchReusesConnections(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			conns.Add(1)
		}
	}
	srv.Start()
	defer srv.Close()

	f := testFetcher(t)
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}

	// The shared transport keeps the connection alive between fetches.
	require.Equal(t, int32(1), conns.Load())
}

func TestClassify(t *testing.T) {
	err := classify("http://x", 404, nil)
	require.True(t, newsletter.IsNotFound(err))

	err = classify("http://x", 410, nil)
	require.True(t, newsletter.IsNotFound(err))

	var fe *newsletter.FetchError
	err = classify("http://x", 502, nil)
	require.ErrorAs(t, err, &fe)
	require.Equal(t, newsletter.FetchHTTPStatus, fe.Kind)

	err = classify("http://x", 0, context.DeadlineExceeded)
	require.ErrorAs(t, err, &fe)
	require.Equal(t, newsletter.FetchTimeout, fe.Kind)
}
