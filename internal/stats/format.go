package stats

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// NoTime is the placeholder shown when no average duration exists yet.
const NoTime = "--:--"

// visitTimeLayout formats recent-visit timestamps for display.
const visitTimeLayout = "2006-01-02 15:04:05"

// FormatDuration renders seconds as zero-padded MM:SS, flooring both
// components. Non-positive durations render as the placeholder.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return NoTime
	}
	mins := int(math.Floor(seconds / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// FormatVisitTime renders an event instant for the recent-visit log.
func FormatVisitTime(t time.Time) string {
	return t.Format(visitTimeLayout)
}

// ISODate renders a calendar date as YYYY-MM-DD.
func ISODate(t time.Time) string {
	return t.Format("2006-01-02")
}

// DayLabel renders the "M/D" trend-bucket label for a day. Labels are
// local-calendar strings, matching the documents already stored.
func DayLabel(t time.Time) string {
	return fmt.Sprintf("%d/%d", int(t.Month()), t.Day())
}

// SafeKey sanitizes a page path for use as a storage key. Slashes and dots
// are illegal in the mirror's key space; the original path is carried in
// the document itself, so the mapping never needs inverting.
func SafeKey(path string) string {
	key := strings.ReplaceAll(path, "/", "_")
	return strings.ReplaceAll(key, ".", "_")
}

// pageTitles maps logical routes to display titles for the recent-visit
// log. Unknown paths fall back to the raw path.
var pageTitles = map[string]string{
	"/":                    "Home",
	"/home":                "Home",
	"/blog":                "Blog",
	"/music":               "Music",
	"/news":                "News",
	"/updates":             "Updates",
	"/guestbook":           "Guestbook",
	"/quotes":              "Fortune Cookies",
	"/vote":                "Votes",
	"/admin":               "Admin",
	"/havefun":             "Games",
	"/havefun/lights":      "Lights Out",
	"/havefun/cipher":      "Cipher Toy",
	"/havefun/monty":       "Monty Hall",
	"/havefun/boring":      "Boring Strings",
	"/havefun/minesweeper": "Minesweeper",
}

// PageTitle resolves a display title for a page path.
func PageTitle(path string) string {
	if title, ok := pageTitles[path]; ok {
		return title
	}
	return path
}

// TruncateVisitorID shortens a visitor identifier for display, keeping
// only the first 8 characters for privacy.
func TruncateVisitorID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
