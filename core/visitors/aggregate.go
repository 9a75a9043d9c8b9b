package visitors

import (
	"math"
	"time"
)

// SeriesDays is the length of the daily series and of the recent window.
const SeriesDays = 7

// SeriesLabelLayout renders a series point label.
const SeriesLabelLayout = "Mon 02 Jan"

// DailyPoint is the unique visitor count of one calendar day.
type DailyPoint struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary holds the unique-visitor statistics shown on the analytics page.
type Summary struct {
	TotalVisitors     int          `json:"total_visitors"`
	TodayVisitors     int          `json:"today_visitors"`
	Last7DaysVisitors int          `json:"last_7_days_visitors"`
	AverageDaily      int          `json:"average_daily"`
	Series            []DailyPoint `json:"series"`
}

// UniqueFingerprints counts distinct fingerprints in records.
func UniqueFingerprints(records []VisitRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.Fingerprint] = struct{}{}
	}
	return len(seen)
}

// uniqueSince counts distinct fingerprints visited at or after since.
func uniqueSince(records []VisitRecord, since time.Time) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		if !r.VisitedAt.Before(since) {
			seen[r.Fingerprint] = struct{}{}
		}
	}
	return len(seen)
}

// AverageDaily is the rounded 7-day average of a last-7-days unique count.
func AverageDaily(last7 int) int {
	if last7 <= 0 {
		return 0
	}
	return int(math.Round(float64(last7) / SeriesDays))
}

// WindowStart returns the start of the local day daysBack days before now.
func WindowStart(now time.Time, loc *time.Location, daysBack int) time.Time {
	return StartOfDay(now, loc).AddDate(0, 0, -daysBack)
}

// EmptySeries returns the zero-valued points of the 7 days ending today,
// oldest first.
func EmptySeries(now time.Time, loc *time.Location) []DailyPoint {
	points := make([]DailyPoint, SeriesDays)
	for i := range points {
		day := WindowStart(now, loc, SeriesDays-1-i)
		points[i] = DailyPoint{
			Date:  day.Format(DayLayout),
			Label: day.Format(SeriesLabelLayout),
		}
	}
	return points
}

// DailySeries counts distinct fingerprints per calendar day for the 7 days
// ending today. Records outside the window are ignored.
func DailySeries(records []VisitRecord, now time.Time, loc *time.Location) []DailyPoint {
	points := EmptySeries(now, loc)

	index := make(map[string]int, len(points))
	buckets := make([]map[string]struct{}, len(points))
	for i, p := range points {
		index[p.Date] = i
		buckets[i] = make(map[string]struct{})
	}

	for _, r := range records {
		if i, ok := index[DayKey(r.VisitedAt, loc)]; ok {
			buckets[i][r.Fingerprint] = struct{}{}
		}
	}

	for i := range points {
		points[i].Count = len(buckets[i])
	}
	return points
}

// Summarize computes every statistic from one set of records.
func Summarize(records []VisitRecord, now time.Time, loc *time.Location) Summary {
	if loc == nil {
		loc = time.Local
	}
	last7 := uniqueSince(records, WindowStart(now, loc, SeriesDays-1))
	return Summary{
		TotalVisitors:     UniqueFingerprints(records),
		TodayVisitors:     uniqueSince(records, StartOfDay(now, loc)),
		Last7DaysVisitors: last7,
		AverageDaily:      AverageDaily(last7),
		Series:            DailySeries(records, now, loc),
	}
}
