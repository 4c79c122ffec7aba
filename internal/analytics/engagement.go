package analytics

import (
	"math"
	"time"

	"stacklytics/internal/newsletter"
)

// EngagementReport summarizes posting rhythm over the analysis window.
// Distribution maps only cover posts with a known publication date.
type EngagementReport struct {
	TotalPosts          int            `json:"total_posts"`
	TotalWords          int            `json:"total_words"`
	AvgReadTimeMinutes  int            `json:"avg_read_time_minutes"`
	PremiumPosts        int            `json:"premium_posts"`
	FreePosts           int            `json:"free_posts"`
	WeekdayDistribution map[string]int `json:"weekday_distribution"`
	HourDistribution    map[int]int    `json:"hour_distribution"`
	BestPostingWeekday  string         `json:"best_posting_weekday,omitempty"`
	BestPostingHour     *int           `json:"best_posting_hour,omitempty"`
}

func buildEngagement(posts []newsletter.Post) EngagementReport {
	report := EngagementReport{
		WeekdayDistribution: map[string]int{},
		HourDistribution:    map[int]int{},
	}

	totalReadMinutes := 0
	weekdays := [7]int{}
	hours := [24]int{}
	dated := 0

	for _, post := range posts {
		report.TotalPosts++
		report.TotalWords += post.WordCount
		totalReadMinutes += post.ReadTimeMinutes
		if post.IsPremium {
			report.PremiumPosts++
		} else {
			report.FreePosts++
		}
		if post.PublishedAt == nil {
			continue
		}
		dated++
		t := post.PublishedAt.UTC()
		weekdays[int(t.Weekday())]++
		hours[t.Hour()]++
		report.WeekdayDistribution[t.Weekday().String()]++
		report.HourDistribution[t.Hour()]++
	}

	if report.TotalPosts > 0 {
		avg := float64(totalReadMinutes) / float64(report.TotalPosts)
		report.AvgReadTimeMinutes = int(math.Round(avg))
	}

	// Best posting time is the modal weekday and modal hour, computed
	// independently. Ties resolve to the earlier value.
	if dated > 0 {
		bestDay, bestDayCount := 0, 0
		for day, count := range weekdays {
			if count > bestDayCount {
				bestDay, bestDayCount = day, count
			}
		}
		report.BestPostingWeekday = time.Weekday(bestDay).String()

		bestHour, bestHourCount := 0, 0
		for hour, count := range hours {
			if count > bestHourCount {
				bestHour, bestHourCount = hour, count
			}
		}
		report.BestPostingHour = &bestHour
	}
	return report
}
