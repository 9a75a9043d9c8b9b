// Package visitors identifies site visitors, records at most one visit per
// visitor per day and aggregates the stored visits into unique-visitor counts.
//
// Visitor identity is a heuristic fingerprint: collisions between distinct
// visitors and instability for the same visitor are both expected.
package visitors

import (
	"strconv"
	"time"
	"unicode/utf16"
)

const (
	// CollectionName is the name of the collection/table holding visit rows.
	CollectionName = "visitors"

	// UnknownIP is stored when no address could be resolved.
	UnknownIP = "unknown"

	// DirectReferrer is stored when the page had no referrer.
	DirectReferrer = "direct"

	// MaxUserAgentLength bounds the stored user agent.
	MaxUserAgentLength = 200

	// FingerprintUserAgentLength bounds the user agent prefix mixed into the fingerprint.
	FingerprintUserAgentLength = 50

	// DayLayout is the calendar day key format.
	DayLayout = "2006-01-02"
)

// VisitRecord is one persisted, counted visit. Records are append-only.
type VisitRecord struct {
	Fingerprint      string    `json:"fingerprint"`
	IPAddress        string    `json:"ip_address"`
	UserAgent        string    `json:"user_agent"`
	Referrer         string    `json:"referrer"`
	ScreenResolution string    `json:"screen_resolution"`
	Timezone         string    `json:"timezone"`
	Language         string    `json:"language"`
	VisitedAt        time.Time `json:"visited_at"`
	PageURL          string    `json:"page_url"`
	PagePath         string    `json:"page_path"`
}

// ScreenResolution renders screen dimensions as "WxH".
func ScreenResolution(width, height int) string {
	return strconv.Itoa(width) + "x" + strconv.Itoa(height)
}

// truncate returns the first n UTF-16 code units of s, as a page's
// String.prototype.substring(0, n) would. A surrogate pair split by the cut
// is dropped.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	units := utf16Prefix(s, n)
	if k := len(units); k > 0 && isHighSurrogate(units[k-1]) {
		units = units[:k-1]
	}
	return string(utf16.Decode(units))
}

func utf16Prefix(s string, n int) []uint16 {
	units := utf16.Encode([]rune(s))
	if len(units) > n {
		units = units[:n]
	}
	return units
}

// normalizeReferrer maps an empty referrer to DirectReferrer.
func normalizeReferrer(referrer string) string {
	if referrer == "" {
		return DirectReferrer
	}
	return referrer
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayKey returns the YYYY-MM-DD key of t's calendar day in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}
