package newsletter

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the raw page. Implementations own the
// politeness and retry policy.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Parser extracts structured records from raw HTML. baseURL anchors
// relative links found in the markup.
type Parser interface {
	Listing(baseURL string, html []byte) ([]PostStub, error)
	Post(html []byte) (PostDetail, error)
	Publication(html []byte) (PublicationInfo, error)
}

// Store persists publications and posts and exposes windowed reads.
// Upserts are idempotent: re-running a collection against identical source
// HTML leaves the stored state unchanged.
type Store interface {
	UpsertPublication(ctx context.Context, pub Publication) error
	UpsertPosts(ctx context.Context, posts []Post) (int, error)
	QueryPosts(ctx context.Context, slug string, since *time.Time, limit int) ([]Post, error)
	GetPublication(ctx context.Context, slug string) (*Publication, error)
	ListPublications(ctx context.Context) ([]Publication, error)
	Close()
}

// Clock returns the current time; injected so analytics windows are
// testable.
type Clock interface {
	Now() time.Time
}

// ReportCache caches serialized analytics payloads. Implementations may be
// backed by Redis or plain memory.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Close() error
}
