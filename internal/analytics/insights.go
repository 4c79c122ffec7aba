package analytics

import (
	"fmt"
	"sort"
	"time"

	"stacklytics/internal/newsletter"
)

// TagCount pairs a tag with its frequency in the window.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Distribution summarizes a numeric series.
type Distribution struct {
	Min    int     `json:"min"`
	Median float64 `json:"median"`
	Max    int     `json:"max"`
	Avg    float64 `json:"avg"`
}

// InsightsReport captures content characteristics plus rule-based
// recommendations derived from them.
type InsightsReport struct {
	TopTags         []TagCount   `json:"top_tags"`
	TitleLength     Distribution `json:"title_length"`
	WordCount       Distribution `json:"word_count"`
	Recommendations []string     `json:"recommendations"`
}

const topTagLimit = 10

func buildInsights(posts []newsletter.Post, now time.Time, readingWPM int) InsightsReport {
	report := InsightsReport{
		TopTags:         topTags(posts),
		Recommendations: []string{},
	}
	if len(posts) == 0 {
		return report
	}

	titleLengths := make([]int, 0, len(posts))
	wordCounts := make([]int, 0, len(posts))
	for _, post := range posts {
		titleLengths = append(titleLengths, len([]rune(post.Title)))
		wordCounts = append(wordCounts, post.WordCount)
	}
	report.TitleLength = distribution(titleLengths)
	report.WordCount = distribution(wordCounts)
	report.Recommendations = recommendations(posts, report, now, readingWPM)
	return report
}

// topTags returns at most topTagLimit tags ordered by descending count,
// ties broken alphabetically.
func topTags(posts []newsletter.Post) []TagCount {
	counts := map[string]int{}
	for _, post := range posts {
		for _, tag := range post.Tags {
			counts[tag]++
		}
	}
	tags := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		tags = append(tags, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})
	if len(tags) > topTagLimit {
		tags = tags[:topTagLimit]
	}
	return tags
}

func distribution(values []int) Distribution {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	total := 0
	for _, v := range sorted {
		total += v
	}

	n := len(sorted)
	dist := Distribution{
		Min: sorted[0],
		Max: sorted[n-1],
		Avg: float64(total) / float64(n),
	}
	if n%2 == 1 {
		dist.Median = float64(sorted[n/2])
	} else {
		dist.Median = float64(sorted[n/2-1]+sorted[n/2]) / 2
	}
	return dist
}

// insightStats are the derived figures the recommendation rules fire on.
type insightStats struct {
	daysSinceLast int // -1 when no post in the window carries a date
	wordSpread    float64
	premiumRatio  float64
	avgReadMin    float64
	avgTitleLen   float64
}

type insightRule struct {
	applies func(insightStats) bool
	message func(insightStats) string
}

func staticMessage(msg string) func(insightStats) string {
	return func(insightStats) string { return msg }
}

// insightRules is the recommendation table. Each rule is evaluated in
// isolation against the same stats, so identical inputs yield identical
// advice.
var insightRules = []insightRule{
	{
		applies: func(s insightStats) bool { return s.daysSinceLast > 7 },
		message: func(s insightStats) string {
			return fmt.Sprintf(
				"No posts in the last %d days; regular publishing keeps subscribers engaged.", s.daysSinceLast)
		},
	},
	{
		applies: func(s insightStats) bool { return s.wordSpread > 2 },
		message: staticMessage(
			"Post lengths vary widely; a more consistent length sets reader expectations."),
	},
	{
		applies: func(s insightStats) bool { return s.premiumRatio < 0.2 },
		message: staticMessage(
			"Fewer than 20% of posts are premium; more paid content could grow subscription revenue."),
	},
	{
		applies: func(s insightStats) bool { return s.premiumRatio > 0.8 },
		message: staticMessage(
			"Over 80% of posts are premium; more free content widens the top of the funnel."),
	},
	{
		applies: func(s insightStats) bool { return s.avgReadMin > 0 && s.avgReadMin < 3 },
		message: staticMessage(
			"Average read time is under 3 minutes; longer pieces tend to earn more engagement."),
	},
	{
		applies: func(s insightStats) bool { return s.avgReadMin > 15 },
		message: staticMessage(
			"Average read time is over 15 minutes; consider splitting long pieces into series."),
	},
	{
		applies: func(s insightStats) bool { return s.avgTitleLen > 70 },
		message: staticMessage(
			"Titles average over 70 characters; shorter titles are easier to scan in inboxes."),
	},
}

func recommendations(posts []newsletter.Post, report InsightsReport, now time.Time, readingWPM int) []string {
	stats := statsFor(posts, report, now, readingWPM)
	recs := []string{}
	for _, rule := range insightRules {
		if rule.applies(stats) {
			recs = append(recs, rule.message(stats))
		}
	}
	return recs
}

func statsFor(posts []newsletter.Post, report InsightsReport, now time.Time, readingWPM int) insightStats {
	stats := insightStats{
		daysSinceLast: -1,
		avgReadMin:    report.WordCount.Avg / float64(readingWPM),
		avgTitleLen:   report.TitleLength.Avg,
	}
	if last := latestPublished(posts); last != nil {
		stats.daysSinceLast = int(now.Sub(*last).Hours() / 24)
	}
	if report.WordCount.Avg > 0 {
		stats.wordSpread = float64(report.WordCount.Max-report.WordCount.Min) / report.WordCount.Avg
	}
	premium := 0
	for _, post := range posts {
		if post.IsPremium {
			premium++
		}
	}
	stats.premiumRatio = float64(premium) / float64(len(posts))
	return stats
}

func latestPublished(posts []newsletter.Post) *time.Time {
	var latest *time.Time
	for _, post := range posts {
		if post.PublishedAt == nil {
			continue
		}
		if latest == nil || post.PublishedAt.After(*latest) {
			latest = post.PublishedAt
		}
	}
	return latest
}
