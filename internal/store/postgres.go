// Package store provides Postgres-backed persistence for publications and
// posts.
package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stacklytics/internal/newsletter"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres implements newsletter.Store.
type Postgres struct {
	pool pgxPool
	sb   sq.StatementBuilderType
}

var _ newsletter.Store = (*Postgres)(nil)

// New creates a Postgres store using the provided config.
func New(ctx context.Context, cfg Config) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool), nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing with pgxmock).
func NewWithPool(pool pgxPool) *Postgres {
	return &Postgres{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertPublication inserts the publication or refreshes its mutable
// fields. The slug never changes once created.
func (s *Postgres) UpsertPublication(ctx context.Context, pub newsletter.Publication) error {
	const query = `
INSERT INTO publications (
	slug, display_name, description, author, subscriber_count, url,
	post_count, last_scraped_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (slug) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	description = EXCLUDED.description,
	author = EXCLUDED.author,
	subscriber_count = EXCLUDED.subscriber_count,
	url = EXCLUDED.url,
	post_count = EXCLUDED.post_count,
	last_scraped_at = EXCLUDED.last_scraped_at`

	_, err := s.pool.Exec(ctx, query,
		pub.Slug,
		pub.DisplayName,
		pub.Description,
		pub.Author,
		pub.SubscriberCount,
		pub.URL,
		pub.PostCount,
		pub.LastScrapedAt,
	)
	if err != nil {
		return &newsletter.StorageError{Op: "upsert publication", Err: err}
	}
	return nil
}

// UpsertPosts writes each post with its own independently committed
// statement, so an aborted run never corrupts already-written records.
// Returns the number of rows written.
func (s *Postgres) UpsertPosts(ctx context.Context, posts []newsletter.Post) (int, error) {
	const query = `
INSERT INTO posts (
	id, publication_slug, title, published_at, word_count,
	read_time_minutes, tags, is_premium, url, scraped_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
ON CONFLICT (publication_slug, id) DO UPDATE SET
	title = EXCLUDED.title,
	published_at = EXCLUDED.published_at,
	word_count = EXCLUDED.word_count,
	read_time_minutes = EXCLUDED.read_time_minutes,
	tags = EXCLUDED.tags,
	is_premium = EXCLUDED.is_premium,
	url = EXCLUDED.url,
	scraped_at = NOW()`

	written := 0
	for _, post := range posts {
		tags := post.Tags
		if tags == nil {
			tags = []string{}
		}
		_, err := s.pool.Exec(ctx, query,
			post.ID,
			post.PublicationSlug,
			post.Title,
			post.PublishedAt,
			post.WordCount,
			post.ReadTimeMinutes,
			tags,
			post.IsPremium,
			post.URL,
		)
		if err != nil {
			return written, &newsletter.StorageError{Op: "upsert post " + post.ID, Err: err}
		}
		written++
	}
	return written, nil
}

var postColumns = []string{
	"id", "publication_slug", "title", "published_at", "word_count",
	"read_time_minutes", "tags", "is_premium", "url",
}

// QueryPosts returns posts for a publication ordered by published_at
// descending with nulls last. since and limit are optional filters.
func (s *Postgres) QueryPosts(ctx context.Context, slug string, since *time.Time, limit int) ([]newsletter.Post, error) {
	q := s.sb.
		Select(postColumns...).
		From("posts").
		Where(sq.Eq{"publication_slug": slug}).
		OrderBy("published_at DESC NULLS LAST", "id ASC")
	if since != nil {
		q = q.Where(sq.GtOrEq{"published_at": *since})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, &newsletter.StorageError{Op: "build query", Err: err}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &newsletter.StorageError{Op: "query posts", Err: err}
	}
	defer rows.Close()

	var posts []newsletter.Post
	for rows.Next() {
		var post newsletter.Post
		if err := rows.Scan(
			&post.ID,
			&post.PublicationSlug,
			&post.Title,
			&post.PublishedAt,
			&post.WordCount,
			&post.ReadTimeMinutes,
			&post.Tags,
			&post.IsPremium,
			&post.URL,
		); err != nil {
			return nil, &newsletter.StorageError{Op: "scan post", Err: err}
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, &newsletter.StorageError{Op: "iterate posts", Err: err}
	}
	return posts, nil
}

// GetPublication returns the stored summary for slug, or nil when absent.
func (s *Postgres) GetPublication(ctx context.Context, slug string) (*newsletter.Publication, error) {
	query, args, err := s.sb.
		Select("slug", "display_name", "description", "author",
			"subscriber_count", "url", "post_count", "last_scraped_at").
		From("publications").
		Where(sq.Eq{"slug": slug}).
		ToSql()
	if err != nil {
		return nil, &newsletter.StorageError{Op: "build query", Err: err}
	}

	var pub newsletter.Publication
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&pub.Slug,
		&pub.DisplayName,
		&pub.Description,
		&pub.Author,
		&pub.SubscriberCount,
		&pub.URL,
		&pub.PostCount,
		&pub.LastScrapedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &newsletter.StorageError{Op: "get publication", Err: err}
	}
	return &pub, nil
}

// ListPublications returns every tracked publication ordered by slug.
func (s *Postgres) ListPublications(ctx context.Context) ([]newsletter.Publication, error) {
	query, args, err := s.sb.
		Select("slug", "display_name", "description", "author",
			"subscriber_count", "url", "post_count", "last_scraped_at").
		From("publications").
		OrderBy("slug ASC").
		ToSql()
	if err != nil {
		return nil, &newsletter.StorageError{Op: "build query", Err: err}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &newsletter.StorageError{Op: "list publications", Err: err}
	}
	defer rows.Close()

	var pubs []newsletter.Publication
	for rows.Next() {
		var pub newsletter.Publication
		if err := rows.Scan(
			&pub.Slug,
			&pub.DisplayName,
			&pub.Description,
			&pub.Author,
			&pub.SubscriberCount,
			&pub.URL,
			&pub.PostCount,
			&pub.LastScrapedAt,
		); err != nil {
			return nil, &newsletter.StorageError{Op: "scan publication", Err: err}
		}
		pubs = append(pubs, pub)
	}
	if err := rows.Err(); err != nil {
		return nil, &newsletter.StorageError{Op: "iterate publications", Err: err}
	}
	return pubs, nil
}
