// Package newsletter defines the core domain types shared across subsystems.
package newsletter

import "time"

// Publication is the top-level content source identified by a stable slug.
// The slug is immutable once created; descriptive fields refresh on every
// successful scrape.
type Publication struct {
	Slug            string    `json:"slug" db:"slug"`
	DisplayName     string    `json:"display_name" db:"display_name"`
	Description     string    `json:"description" db:"description"`
	Author          string    `json:"author,omitempty" db:"author"`
	SubscriberCount int       `json:"subscriber_count" db:"subscriber_count"`
	URL             string    `json:"url" db:"url"`
	PostCount       int       `json:"post_count" db:"post_count"`
	LastScrapedAt   time.Time `json:"last_scraped_at" db:"last_scraped_at"`
}

// Post is one article published under a Publication. The pair
// (PublicationSlug, ID) is unique; re-scrapes refresh fields in place.
type Post struct {
	ID              string     `json:"id" db:"id"`
	PublicationSlug string     `json:"publication_slug" db:"publication_slug"`
	Title           string     `json:"title" db:"title"`
	PublishedAt     *time.Time `json:"published_at" db:"published_at"`
	WordCount       int        `json:"word_count" db:"word_count"`
	ReadTimeMinutes int        `json:"read_time_minutes" db:"read_time_minutes"`
	Tags            []string   `json:"tags" db:"tags"`
	IsPremium       bool       `json:"is_premium" db:"is_premium"`
	URL             string     `json:"url" db:"url"`
}

// PostStub is the partial record extracted from an archive listing page.
type PostStub struct {
	ID    string
	Title string
	URL   string
}

// PostDetail is the full record extracted from an individual post page.
type PostDetail struct {
	Title       string
	PublishedAt *time.Time
	Tags        []string
	IsPremium   bool
	WordCount   int
}

// PublicationInfo is the descriptive metadata extracted from a publication's
// root page.
type PublicationInfo struct {
	DisplayName     string
	Description     string
	Author          string
	SubscriberCount int
}

// SkippedPost records a post that was dropped during a collection run and why.
type SkippedPost struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// RunReport summarizes a single collection run. A run never silently
// truncates: Requested, Listed, Collected and Skipped always account for the
// discrepancy between what was asked for and what was stored.
type RunReport struct {
	RunID       string        `json:"run_id"`
	Publication string        `json:"publication"`
	Requested   int           `json:"requested"`
	Listed      int           `json:"listed"`
	Collected   int           `json:"collected"`
	PagesRead   int           `json:"pages_read"`
	Skipped     []SkippedPost `json:"skipped,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	DurationMs  int64         `json:"duration_ms"`
}

// Result is the outcome of one collection run: the publication summary plus
// the deduplicated, most-recent-first sequence of collected posts.
type Result struct {
	Summary Publication `json:"summary"`
	Posts   []Post      `json:"posts"`
	Report  RunReport   `json:"report"`
}

// Page is a fetched HTML document plus transport metadata.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}
