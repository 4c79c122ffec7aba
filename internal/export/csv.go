package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stacklytics/internal/newsletter"
)

// csvHeader is the fixed CSV column order. The publication slug is implied
// by the export scope and not repeated per row.
var csvHeader = []string{"id", "title", "published_at", "word_count", "is_premium", "tags", "url"}

const tagDelimiter = "|"

// WriteCSV writes the posts as CSV with a header row. Tags are joined with
// tagDelimiter; literal delimiters and backslashes inside a tag are
// backslash-escaped so the column round-trips.
func WriteCSV(w io.Writer, posts []newsletter.Post) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, post := range posts {
		rec := ToRecord(post)
		row := []string{
			rec.ID,
			rec.Title,
			rec.PublishedAt,
			strconv.Itoa(rec.WordCount),
			strconv.FormatBool(rec.IsPremium),
			joinTags(rec.Tags),
			rec.URL,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCSV reads back a CSV export produced by WriteCSV. The publication
// slug is reattached to every row.
func ParseCSV(r io.Reader, publicationSlug string) ([]newsletter.Post, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, col := range csvHeader {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected csv header column %q, want %q", header[i], col)
		}
	}

	var posts []newsletter.Post
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		wordCount, err := strconv.Atoi(row[3])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad word_count: %w", line, err)
		}
		isPremium, err := strconv.ParseBool(row[4])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad is_premium: %w", line, err)
		}

		post, err := FromRecord(Record{
			ID:              row[0],
			PublicationSlug: publicationSlug,
			Title:           row[1],
			PublishedAt:     row[2],
			WordCount:       wordCount,
			Tags:            splitTags(row[5]),
			IsPremium:       isPremium,
			URL:             row[6],
		})
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	escaped := make([]string, len(tags))
	for i, tag := range tags {
		tag = strings.ReplaceAll(tag, `\`, `\\`)
		tag = strings.ReplaceAll(tag, tagDelimiter, `\`+tagDelimiter)
		escaped[i] = tag
	}
	return strings.Join(escaped, tagDelimiter)
}

func splitTags(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var tags []string
	var cur strings.Builder
	escaped := false
	for _, r := range raw {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case string(r) == tagDelimiter:
			tags = append(tags, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	tags = append(tags, cur.String())
	return tags
}
