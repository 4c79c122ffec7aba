// Package export serializes post archives to JSON and CSV and writes
// scheduled report snapshots to disk.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"stacklytics/internal/newsletter"
)

// Record is the portable export shape of a stored post. PublishedAt is
// RFC3339 or empty when the date is unknown.
type Record struct {
	ID              string   `json:"id"`
	PublicationSlug string   `json:"publication_slug"`
	Title           string   `json:"title"`
	PublishedAt     string   `json:"published_at"`
	WordCount       int      `json:"word_count"`
	Tags            []string `json:"tags"`
	IsPremium       bool     `json:"is_premium"`
	URL             string   `json:"url"`
}

// ToRecord converts a stored post into its export shape.
func ToRecord(post newsletter.Post) Record {
	rec := Record{
		ID:              post.ID,
		PublicationSlug: post.PublicationSlug,
		Title:           post.Title,
		WordCount:       post.WordCount,
		Tags:            post.Tags,
		IsPremium:       post.IsPremium,
		URL:             post.URL,
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if post.PublishedAt != nil {
		rec.PublishedAt = post.PublishedAt.UTC().Format(time.RFC3339)
	}
	return rec
}

// FromRecord converts an export record back into a stored post.
func FromRecord(rec Record) (newsletter.Post, error) {
	post := newsletter.Post{
		ID:              rec.ID,
		PublicationSlug: rec.PublicationSlug,
		Title:           rec.Title,
		WordCount:       rec.WordCount,
		Tags:            rec.Tags,
		IsPremium:       rec.IsPremium,
		URL:             rec.URL,
	}
	if rec.PublishedAt != "" {
		t, err := time.Parse(time.RFC3339, rec.PublishedAt)
		if err != nil {
			return newsletter.Post{}, fmt.Errorf("record %s: bad published_at: %w", rec.ID, err)
		}
		utc := t.UTC()
		post.PublishedAt = &utc
	}
	return post, nil
}

// WriteJSON streams the posts as a JSON array of export records.
func WriteJSON(w io.Writer, posts []newsletter.Post) error {
	records := make([]Record, 0, len(posts))
	for _, post := range posts {
		records = append(records, ToRecord(post))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
