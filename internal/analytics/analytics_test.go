package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stacklytics/internal/clock"
	"stacklytics/internal/newsletter"
)

var testNow = time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)

// windowStore serves a fixed post set and records the since filter it was
// queried with.
type windowStore struct {
	posts     []newsletter.Post
	lastSince *time.Time
}

func (s *windowStore) QueryPosts(_ context.Context, _ string, since *time.Time, _ int) ([]newsletter.Post, error) {
	s.lastSince = since
	if since == nil {
		return s.posts, nil
	}
	var out []newsletter.Post
	for _, p := range s.posts {
		if p.PublishedAt != nil && !p.PublishedAt.Before(*since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *windowStore) UpsertPublication(context.Context, newsletter.Publication) error { return nil }
func (s *windowStore) UpsertPosts(context.Context, []newsletter.Post) (int, error)     { return 0, nil }
func (s *windowStore) GetPublication(context.Context, string) (*newsletter.Publication, error) {
	return nil, nil
}
func (s *windowStore) ListPublications(context.Context) ([]newsletter.Publication, error) {
	return nil, nil
}
func (s *windowStore) Close() {}

func post(id string, published time.Time, words int, premium bool, tags ...string) newsletter.Post {
	p := published
	return newsletter.Post{
		ID:              id,
		PublicationSlug: "demo",
		Title:           "Title of " + id,
		PublishedAt:     &p,
		WordCount:       words,
		ReadTimeMinutes: maxInt(1, words/200),
		Tags:            tags,
		IsPremium:       premium,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func newTestEngine(posts ...newsletter.Post) (*Engine, *windowStore) {
	store := &windowStore{posts: posts}
	return New(store, clock.Fixed{T: testNow}, 200, nil), store
}

func TestEngagementEmptyWindow(t *testing.T) {
	engine, store := newTestEngine()

	report, err := engine.Engagement(context.Background(), "demo", 0)
	require.NoError(t, err)
	require.Zero(t, report.TotalPosts)
	require.Zero(t, report.AvgReadTimeMinutes)
	require.Empty(t, report.WeekdayDistribution)
	require.Empty(t, report.BestPostingWeekday)
	require.Nil(t, report.BestPostingHour)

	// days_back=0 collapses the window to [now, now].
	require.NotNil(t, store.lastSince)
	require.Equal(t, testNow, *store.lastSince)
}

func TestEngagementCountsAndDistributions(t *testing.T) {
	// Two Mondays at 09:00, one Tuesday at 18:00.
	mon1 := time.Date(2025, 7, 7, 9, 0, 0, 0, time.UTC)
	mon2 := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)
	tue := time.Date(2025, 7, 8, 18, 0, 0, 0, time.UTC)

	engine, _ := newTestEngine(
		post("a", mon1, 400, false, "go"),
		post("b", mon2, 800, true),
		post("c", tue, 200, false),
	)

	report, err := engine.Engagement(context.Background(), "demo", 30)
	require.NoError(t, err)

	require.Equal(t, 3, report.TotalPosts)
	require.Equal(t, 1400, report.TotalWords)
	require.Equal(t, 1, report.PremiumPosts)
	require.Equal(t, 2, report.FreePosts)
	// Read times 2, 4, 1 average to 2.33, rounded to 2.
	require.Equal(t, 2, report.AvgReadTimeMinutes)

	require.Equal(t, 2, report.WeekdayDistribution["Monday"])
	require.Equal(t, 1, report.WeekdayDistribution["Tuesday"])
	require.Equal(t, 2, report.HourDistribution[9])

	require.Equal(t, "Monday", report.BestPostingWeekday)
	require.NotNil(t, report.BestPostingHour)
	require.Equal(t, 9, *report.BestPostingHour)
}

func TestEngagementBestTimeTieBreaksEarlier(t *testing.T) {
	// One Sunday post and one Monday post: the tie resolves to Sunday,
	// the smaller weekday value. Hours 8 and 17 tie to 8.
	sun := time.Date(2025, 7, 13, 17, 0, 0, 0, time.UTC)
	mon := time.Date(2025, 7, 14, 8, 0, 0, 0, time.UTC)

	engine, _ := newTestEngine(
		post("a", sun, 100, false),
		post("b", mon, 100, false),
	)

	report, err := engine.Engagement(context.Background(), "demo", 30)
	require.NoError(t, err)
	require.Equal(t, "Sunday", report.BestPostingWeekday)
	require.Equal(t, 8, *report.BestPostingHour)
}

func TestEngagementIgnoresUndatedInDistributions(t *testing.T) {
	dated := post("a", time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC), 400, false)
	undated := newsletter.Post{ID: "b", WordCount: 300, ReadTimeMinutes: 1}

	report := buildEngagement([]newsletter.Post{dated, undated})

	require.Equal(t, 2, report.TotalPosts)
	require.Equal(t, 700, report.TotalWords)
	require.Len(t, report.WeekdayDistribution, 1)
}

func TestGrowthBucketsAreContiguous(t *testing.T) {
	since := testNow.Add(-6 * 24 * time.Hour)
	posts := []newsletter.Post{
		post("a", testNow.Add(-5*24*time.Hour), 400, false),
		post("b", testNow.Add(-1*24*time.Hour), 200, true),
	}

	report := buildGrowth(posts, since, testNow)

	require.Len(t, report.Daily, 7)
	for i := 1; i < len(report.Daily); i++ {
		require.Equal(t, 24*time.Hour, report.Daily[i].Start.Sub(report.Daily[i-1].Start))
	}

	total := 0
	for _, b := range report.Daily {
		total += b.Posts
	}
	require.Equal(t, 2, total)
	require.InDelta(t, 2.0/6.0, report.AvgPostsPerDay, 1e-9)
}

func TestGrowthRateNilAfterEmptyBucket(t *testing.T) {
	since := testNow.Add(-3 * 24 * time.Hour)
	posts := []newsletter.Post{
		post("a", testNow.Add(-3*24*time.Hour), 100, false),
		post("b", testNow, 100, false),
		post("c", testNow, 100, false),
	}

	report := buildGrowth(posts, since, testNow)
	require.Len(t, report.Daily, 4)

	day0, day1, day3 := report.Daily[0], report.Daily[1], report.Daily[3]
	require.Equal(t, 1, day0.Posts)
	require.Nil(t, day0.GrowthRate)

	// Day 1 follows a one-post day: rate is finite.
	require.Zero(t, day1.Posts)
	require.NotNil(t, day1.GrowthRate)
	require.InDelta(t, -1.0, *day1.GrowthRate, 1e-9)

	// Day 3 follows an empty day: the ratio is undefined.
	require.Equal(t, 2, day3.Posts)
	require.Nil(t, day3.GrowthRate)
}

func TestGrowthWeeklyStartsOnMonday(t *testing.T) {
	since := testNow.Add(-20 * 24 * time.Hour)
	report := buildGrowth(nil, since, testNow)

	require.NotEmpty(t, report.Weekly)
	for _, b := range report.Weekly {
		require.Equal(t, time.Monday, b.Start.Weekday())
	}
}

func TestGrowthExcludesUndatedPosts(t *testing.T) {
	since := testNow.Add(-2 * 24 * time.Hour)
	undated := newsletter.Post{ID: "u", WordCount: 500}

	report := buildGrowth([]newsletter.Post{undated}, since, testNow)
	for _, b := range report.Daily {
		require.Zero(t, b.Posts)
		require.Zero(t, b.Words)
	}
}

func TestInsightsEmptyWindow(t *testing.T) {
	engine, _ := newTestEngine()

	report, err := engine.Insights(context.Background(), "demo", 0)
	require.NoError(t, err)
	require.Empty(t, report.TopTags)
	require.Empty(t, report.Recommendations)
	require.Zero(t, report.WordCount.Max)
}

func TestInsightsTopTagsOrdering(t *testing.T) {
	day := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)
	engine, _ := newTestEngine(
		post("a", day, 400, false, "go", "infra"),
		post("b", day, 400, false, "go", "databases"),
		post("c", day, 400, false, "databases"),
	)

	report, err := engine.Insights(context.Background(), "demo", 30)
	require.NoError(t, err)
	require.Len(t, report.TopTags, 3)
	require.Equal(t, TagCount{Tag: "databases", Count: 2}, report.TopTags[0])
	require.Equal(t, TagCount{Tag: "go", Count: 2}, report.TopTags[1])
	require.Equal(t, TagCount{Tag: "infra", Count: 1}, report.TopTags[2])
}

func TestDistributionMedianEvenCount(t *testing.T) {
	dist := distribution([]int{100, 300, 200, 400})
	require.Equal(t, 100, dist.Min)
	require.Equal(t, 400, dist.Max)
	require.InDelta(t, 250.0, dist.Median, 1e-9)
	require.InDelta(t, 250.0, dist.Avg, 1e-9)
}

func TestRecommendationStaleness(t *testing.T) {
	stale := post("a", testNow.Add(-20*24*time.Hour), 800, false)
	report := buildInsights([]newsletter.Post{stale}, testNow, 200)

	require.NotEmpty(t, report.Recommendations)
	require.Contains(t, report.Recommendations[0], "No posts in the last 20 days")
}

func TestRecommendationPremiumRatio(t *testing.T) {
	day := testNow.Add(-24 * time.Hour)
	allFree := buildInsights([]newsletter.Post{
		post("a", day, 1000, false),
		post("b", day, 1000, false),
	}, testNow, 200)
	require.Contains(t, joined(allFree.Recommendations), "Fewer than 20% of posts are premium")

	allPaid := buildInsights([]newsletter.Post{
		post("a", day, 1000, true),
		post("b", day, 1000, true),
	}, testNow, 200)
	require.Contains(t, joined(allPaid.Recommendations), "Over 80% of posts are premium")
}

func TestRecommendationReadTime(t *testing.T) {
	day := testNow.Add(-24 * time.Hour)

	short := buildInsights([]newsletter.Post{post("a", day, 200, true)}, testNow, 200)
	require.Contains(t, joined(short.Recommendations), "under 3 minutes")

	long := buildInsights([]newsletter.Post{post("a", day, 4000, true)}, testNow, 200)
	require.Contains(t, joined(long.Recommendations), "over 15 minutes")
}

func TestRecommendationRulesFireIndependently(t *testing.T) {
	longTitle := "A very long headline that keeps going well past seventy characters in total"
	stale := post("a", testNow.Add(-10*24*time.Hour), 200, false)
	stale.Title = longTitle

	report := buildInsights([]newsletter.Post{stale}, testNow, 200)

	// One input trips four separate rules; each contributes its own line.
	require.Len(t, report.Recommendations, 4)
	all := joined(report.Recommendations)
	require.Contains(t, all, "No posts in the last 10 days")
	require.Contains(t, all, "Fewer than 20% of posts are premium")
	require.Contains(t, all, "under 3 minutes")
	require.Contains(t, all, "over 70 characters")
}

func joined(recs []string) string {
	out := ""
	for _, r := range recs {
		out += r + "\n"
	}
	return out
}
