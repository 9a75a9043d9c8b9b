package visitors

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Overview sections that can degrade independently.
const (
	SectionTotal  = "total"
	SectionToday  = "today"
	SectionLast7  = "last_7_days"
	SectionSeries = "series"
)

// RecentDefaultLimit and RecentMaxLimit bound Recent.
const (
	RecentDefaultLimit = 20
	RecentMaxLimit     = 100
)

// referrerDisplayLength is the visible prefix of a long referrer.
const referrerDisplayLength = 50

// Overview is the dashboard snapshot. Degraded names every section that
// could not be read and was reported as zero.
type Overview struct {
	Summary
	GeneratedAt time.Time `json:"generated_at"`
	Timezone    string    `json:"timezone"`
	Degraded    []string  `json:"degraded,omitempty"`
}

// RecentVisitor is one row of the recent visitors table.
type RecentVisitor struct {
	VisitedAt       time.Time `json:"visited_at"`
	IPAddress       string    `json:"ip_address"`
	Browser         string    `json:"browser"`
	Device          string    `json:"device"`
	OS              string    `json:"os"`
	Referrer        string    `json:"referrer"`
	ReferrerDisplay string    `json:"referrer_display"`
	PagePath        string    `json:"page_path"`
}

// Stats computes read-only statistics over a backend.
type Stats struct {
	provider      Provider
	loc           *time.Location
	logger        *slog.Logger
	now           func() time.Time
	readyTimeout  time.Duration
	readyInterval time.Duration
}

// NewStats creates a statistics reader. Calendar days are taken in loc.
func NewStats(provider Provider, loc *time.Location, logger *slog.Logger) *Stats {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stats{
		provider:      provider,
		loc:           loc,
		logger:        logger,
		now:           time.Now,
		readyTimeout:  DefaultReadyTimeout,
		readyInterval: DefaultReadyInterval,
	}
}

// WithClock replaces the clock used to determine "today".
func (s *Stats) WithClock(now func() time.Time) *Stats {
	s.now = now
	return s
}

// WithReadyWait sets the backend readiness timeout and poll interval.
func (s *Stats) WithReadyWait(timeout, interval time.Duration) *Stats {
	s.readyTimeout = timeout
	s.readyInterval = interval
	return s
}

// Location returns the timezone calendar days are computed in.
func (s *Stats) Location() *time.Location {
	return s.loc
}

// Overview reads every section separately. A failed section is logged,
// reported as zero and listed in Degraded.
func (s *Stats) Overview(ctx context.Context) Overview {
	now := s.now()
	out := Overview{
		GeneratedAt: now,
		Timezone:    s.loc.String(),
		Summary:     Summary{Series: []DailyPoint{}},
	}

	backend, err := WaitReady(ctx, s.provider, s.readyTimeout, s.readyInterval)
	if err != nil {
		s.logger.Error("Visitor statistics unavailable", "error", err)
		out.Degraded = []string{SectionTotal, SectionToday, SectionLast7, SectionSeries}
		return out
	}

	weekStart := WindowStart(now, s.loc, SeriesDays-1)

	if records, err := backend.Query(ctx, Query{}); err != nil {
		out.Degraded = append(out.Degraded, s.degrade(SectionTotal, err))
	} else {
		out.TotalVisitors = UniqueFingerprints(records)
	}

	if records, err := backend.Query(ctx, Query{Since: StartOfDay(now, s.loc)}); err != nil {
		out.Degraded = append(out.Degraded, s.degrade(SectionToday, err))
	} else {
		out.TodayVisitors = UniqueFingerprints(records)
	}

	if records, err := backend.Query(ctx, Query{Since: weekStart}); err != nil {
		out.Degraded = append(out.Degraded, s.degrade(SectionLast7, err))
	} else {
		out.Last7DaysVisitors = UniqueFingerprints(records)
		out.AverageDaily = AverageDaily(out.Last7DaysVisitors)
	}

	if records, err := backend.Query(ctx, Query{Since: weekStart, Order: OrderAsc}); err != nil {
		out.Degraded = append(out.Degraded, s.degrade(SectionSeries, err))
	} else {
		out.Series = DailySeries(records, now, s.loc)
	}

	return out
}

func (s *Stats) degrade(section string, err error) string {
	s.logger.Error("Failed to read visitor statistics", "section", section, "error", err)
	return section
}

// Recent returns the newest visits first. limit is clamped to
// [1, RecentMaxLimit]; zero selects RecentDefaultLimit.
func (s *Stats) Recent(ctx context.Context, limit int) ([]RecentVisitor, error) {
	limit = ClampRecentLimit(limit)

	backend, err := WaitReady(ctx, s.provider, s.readyTimeout, s.readyInterval)
	if err != nil {
		return nil, err
	}

	records, err := backend.Query(ctx, Query{Order: OrderDesc, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("query recent visitors: %w", err)
	}

	out := make([]RecentVisitor, 0, len(records))
	for _, r := range records {
		device, browser, os := ParseUserAgent(r.UserAgent)
		out = append(out, RecentVisitor{
			VisitedAt:       r.VisitedAt.In(s.loc),
			IPAddress:       r.IPAddress,
			Browser:         browser,
			Device:          device,
			OS:              os,
			Referrer:        r.Referrer,
			ReferrerDisplay: ReferrerDisplay(r.Referrer),
			PagePath:        r.PagePath,
		})
	}
	return out, nil
}

// DayUnique counts distinct fingerprints on the local calendar day of day.
func (s *Stats) DayUnique(ctx context.Context, day time.Time) (int, error) {
	backend, err := WaitReady(ctx, s.provider, s.readyTimeout, s.readyInterval)
	if err != nil {
		return 0, err
	}

	start := StartOfDay(day, s.loc)
	end := start.AddDate(0, 0, 1)
	records, err := backend.Query(ctx, Query{Since: start})
	if err != nil {
		return 0, fmt.Errorf("query visitors of %s: %w", DayKey(start, s.loc), err)
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.VisitedAt.Before(end) {
			seen[r.Fingerprint] = struct{}{}
		}
	}
	return len(seen), nil
}

// ClampRecentLimit normalizes a requested row count.
func ClampRecentLimit(limit int) int {
	switch {
	case limit <= 0:
		return RecentDefaultLimit
	case limit > RecentMaxLimit:
		return RecentMaxLimit
	}
	return limit
}

// ReferrerDisplay shortens a referrer for tables.
func ReferrerDisplay(referrer string) string {
	if referrer == "" || referrer == DirectReferrer {
		return DirectReferrer
	}
	if len([]rune(referrer)) <= referrerDisplayLength {
		return referrer
	}
	return truncate(referrer, referrerDisplayLength) + "..."
}
