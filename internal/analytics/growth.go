package analytics

import (
	"time"

	"stacklytics/internal/newsletter"
)

// GrowthBucket is one contiguous time slice of posting volume. GrowthRate
// compares Posts against the preceding bucket; it is nil when the previous
// bucket had no posts, since the ratio is undefined there.
type GrowthBucket struct {
	Start        time.Time `json:"start"`
	Posts        int       `json:"posts"`
	Words        int       `json:"words"`
	PremiumPosts int       `json:"premium_posts"`
	GrowthRate   *float64  `json:"growth_rate"`
}

// GrowthReport tracks posting volume over time. Buckets are contiguous
// across the window, including empty ones, so the series is plottable
// without gap handling. Posts without a publication date are excluded.
type GrowthReport struct {
	Daily          []GrowthBucket `json:"daily"`
	Weekly         []GrowthBucket `json:"weekly"`
	AvgPostsPerDay float64        `json:"avg_posts_per_day"`
}

func buildGrowth(posts []newsletter.Post, since, now time.Time) GrowthReport {
	report := GrowthReport{
		Daily:  bucketize(posts, since, now, dayStart, 24*time.Hour),
		Weekly: bucketize(posts, since, now, weekStart, 7*24*time.Hour),
	}

	days := now.Sub(since).Hours() / 24
	if days > 0 {
		dated := 0
		for _, post := range posts {
			if post.PublishedAt != nil {
				dated++
			}
		}
		report.AvgPostsPerDay = float64(dated) / days
	}
	return report
}

// bucketize builds a contiguous bucket series from since to now. truncate
// maps a time to its bucket start and width advances to the next bucket.
func bucketize(
	posts []newsletter.Post,
	since, now time.Time,
	truncate func(time.Time) time.Time,
	width time.Duration,
) []GrowthBucket {
	first := truncate(since)
	last := truncate(now)
	if last.Before(first) {
		return nil
	}

	var buckets []GrowthBucket
	index := map[time.Time]int{}
	for start := first; !start.After(last); start = start.Add(width) {
		index[start] = len(buckets)
		buckets = append(buckets, GrowthBucket{Start: start})
	}

	for _, post := range posts {
		if post.PublishedAt == nil {
			continue
		}
		at, ok := index[truncate(post.PublishedAt.UTC())]
		if !ok {
			continue
		}
		buckets[at].Posts++
		buckets[at].Words += post.WordCount
		if post.IsPremium {
			buckets[at].PremiumPosts++
		}
	}

	for i := 1; i < len(buckets); i++ {
		prev := buckets[i-1].Posts
		if prev == 0 {
			continue
		}
		rate := float64(buckets[i].Posts-prev) / float64(prev)
		buckets[i].GrowthRate = &rate
	}
	return buckets
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekStart truncates to the Monday starting the ISO week.
func weekStart(t time.Time) time.Time {
	day := dayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
