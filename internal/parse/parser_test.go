package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stacklytics/internal/newsletter"
)

const listingFixture = `
<html><body>
<div class="portable-archive-list">
  <article class="post">
    <a href="/p/first-post">First Post</a>
    <h3>First Post</h3>
  </article>
  <article class="post">
    <a href="https://demo.substack.com/p/second-post?utm_source=share#comments">Second Post</a>
  </article>
  <article class="post">
    <a href="/about">Not a post</a>
  </article>
</div>
</body></html>`

func TestListingExtractsStubs(t *testing.T) {
	p := New(DefaultSchema())

	stubs, err := p.Listing("https://demo.substack.com/archive?page=1", []byte(listingFixture))
	require.NoError(t, err)
	// The /about entry has no post link and is dropped.
	require.Len(t, stubs, 2)

	require.Equal(t, "first-post", stubs[0].ID)
	require.Equal(t, "First Post", stubs[0].Title)
	require.Equal(t, "https://demo.substack.com/p/first-post", stubs[0].URL)

	// Query strings and fragments never make it into the canonical URL.
	require.Equal(t, "second-post", stubs[1].ID)
	require.Equal(t, "https://demo.substack.com/p/second-post", stubs[1].URL)
}

func TestListingEmptyButValid(t *testing.T) {
	p := New(DefaultSchema())

	html := `<html><body><div class="portable-archive-list"></div></body></html>`
	stubs, err := p.Listing("https://demo.substack.com/archive?page=9", []byte(html))
	require.NoError(t, err)
	require.Empty(t, stubs)
}

func TestListingShapeMismatch(t *testing.T) {
	p := New(DefaultSchema())

	html := `<html><body><p>rate limited</p></body></html>`
	_, err := p.Listing("https://demo.substack.com/archive?page=1", []byte(html))
	require.Error(t, err)
	require.True(t, newsletter.IsParseError(err))
}

func TestPostFullRecord(t *testing.T) {
	p := New(DefaultSchema())

	html := `
<html><body>
  <h1 class="post-title">Deep Dive</h1>
  <time datetime="2025-06-01T12:30:00Z">June 1, 2025</time>
  <span class="post-tag">go</span>
  <span class="post-tag">databases</span>
  <span class="post-tag">go</span>
  <div class="available-content">
    <p>one two three <b>four</b> five</p>
    <script>ignored()</script>
  </div>
</body></html>`

	detail, err := p.Post([]byte(html))
	require.NoError(t, err)
	require.Equal(t, "Deep Dive", detail.Title)
	require.NotNil(t, detail.PublishedAt)
	require.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), *detail.PublishedAt)
	require.Equal(t, []string{"databases", "go"}, detail.Tags)
	require.False(t, detail.IsPremium)
	require.Equal(t, 5, detail.WordCount)
}

func TestPostPaywalledWithoutBody(t *testing.T) {
	p := New(DefaultSchema())

	// Premium post where the body is withheld entirely: still a valid
	// record, flagged premium with zero words.
	html := `
<html><body>
  <h1>Members Only</h1>
  <div class="paywall">Subscribe to keep reading</div>
</body></html>`

	detail, err := p.Post([]byte(html))
	require.NoError(t, err)
	require.Equal(t, "Members Only", detail.Title)
	require.True(t, detail.IsPremium)
	require.Zero(t, detail.WordCount)
	require.Nil(t, detail.PublishedAt)
}

func TestPostShapeMismatch(t *testing.T) {
	p := New(DefaultSchema())

	html := `<html><body><p>404 not found</p></body></html>`
	_, err := p.Post([]byte(html))
	require.Error(t, err)
	require.True(t, newsletter.IsParseError(err))
}

func TestPostDateFallbackFormats(t *testing.T) {
	p := New(DefaultSchema())

	cases := map[string]time.Time{
		"2025-06-01T12:30:00Z": time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		"June 1, 2025":         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		"Jun 1, 2025":          time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		"1 Jun 2025":           time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		"2025-06-01":           time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		html := `<html><body><h1>T</h1><time>` + raw + `</time><div class="available-content">x</div></body></html>`
		detail, err := p.Post([]byte(html))
		require.NoError(t, err, raw)
		require.NotNil(t, detail.PublishedAt, raw)
		require.Equal(t, want, *detail.PublishedAt, raw)
	}
}

func TestPostUnparseableDateIsNil(t *testing.T) {
	p := New(DefaultSchema())

	html := `<html><body><h1>T</h1><time>someday soon</time><div class="available-content">x</div></body></html>`
	detail, err := p.Post([]byte(html))
	require.NoError(t, err)
	require.Nil(t, detail.PublishedAt)
}

func TestPostDeterministic(t *testing.T) {
	p := New(DefaultSchema())

	html := `
<html><body>
  <h1>Stable</h1>
  <time datetime="2025-01-02T00:00:00Z">Jan 2</time>
  <span class="post-tag">b</span>
  <span class="post-tag">a</span>
  <div class="available-content"><p>alpha beta gamma</p></div>
</body></html>`

	first, err := p.Post([]byte(html))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := p.Post([]byte(html))
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestPublicationInfo(t *testing.T) {
	p := New(DefaultSchema())

	html := `
<html><head>
  <meta name="description" content="Weekly systems programming notes">
  <meta name="author" content="Jane Doe">
</head><body>
  <h1 class="publication-title">Systems Weekly</h1>
  <p>Join 12,500+ subscribers</p>
</body></html>`

	info, err := p.Publication([]byte(html))
	require.NoError(t, err)
	require.Equal(t, "Systems Weekly", info.DisplayName)
	require.Equal(t, "Weekly systems programming notes", info.Description)
	require.Equal(t, "Jane Doe", info.Author)
	require.Equal(t, 12500, info.SubscriberCount)
}

func TestPublicationShapeMismatch(t *testing.T) {
	p := New(DefaultSchema())

	_, err := p.Publication([]byte(`<html><body><div></div></body></html>`))
	require.Error(t, err)
	require.True(t, newsletter.IsParseError(err))
}
