// Package stats defines the aggregate documents tracked for the site and
// the page-view event that feeds them. Field names match the documents
// already persisted by earlier deployments and must not change.
package stats

import (
	"errors"
	"fmt"
	"time"
)

// Aggregate document keys. Every key maps to exactly one document in both
// the local store and the mirror.
const (
	KeySiteStats     = "siteStats"
	KeyTodayStats    = "todayStats"
	KeyPageStats     = "pageStats"
	KeyDurationStats = "durationStats"
	KeyRecentVisits  = "recentVisits"
	KeyKnownVisitors = "knownVisitors"
	KeyKnownIPs      = "knownIPs"
	KeyTrendData     = "trendData"
)

// AllKeys lists every aggregate document key, in fold order.
var AllKeys = []string{
	KeySiteStats,
	KeyTodayStats,
	KeyPageStats,
	KeyDurationStats,
	KeyRecentVisits,
	KeyKnownVisitors,
	KeyKnownIPs,
	KeyTrendData,
}

// SetKeys are the documents with monotonic set semantics: reconciliation
// merges them by union and never shrinks either side.
var SetKeys = map[string]bool{
	KeyKnownVisitors: true,
	KeyKnownIPs:      true,
}

// ErrInvalidEvent is returned when a visit event is missing a required
// field or carries a non-positive duration.
var ErrInvalidEvent = errors.New("stats: invalid visit event")

// VisitEvent is one finalized page view as submitted over the wire.
type VisitEvent struct {
	VisitorID       string  `json:"visitorId"`
	PagePath        string  `json:"pagePath"`
	DurationSeconds float64 `json:"durationSeconds"`

	// Timestamp is the event creation instant in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Referrer is the previous logical path or an external referrer;
	// "direct" when absent.
	Referrer string `json:"referrer"`

	// ClientIP is resolved by the receiving edge, never by the client.
	ClientIP string `json:"clientIp,omitempty"`
}

// Validate checks required fields. Events that fail validation are dropped
// without touching any aggregate.
func (e *VisitEvent) Validate() error {
	if e.VisitorID == "" {
		return fmt.Errorf("%w: missing visitorId", ErrInvalidEvent)
	}
	if e.PagePath == "" {
		return fmt.Errorf("%w: missing pagePath", ErrInvalidEvent)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	if e.DurationSeconds <= 0 {
		return fmt.Errorf("%w: non-positive duration", ErrInvalidEvent)
	}
	return nil
}

// Time returns the event instant.
func (e *VisitEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// SiteStats is the singleton site-wide aggregate. All of its fields are
// derived from the other documents during a fold; it is never ground truth.
type SiteStats struct {
	PageViews      int    `json:"pageViews"`
	UniqueVisitors int    `json:"uniqueVisitors"`
	AverageTime    string `json:"averageTime"`
	PageCount      int    `json:"pageCount"`
	StartDate      string `json:"startDate"`
	TodayViews     int    `json:"todayViews"`
}

// DefaultSiteStats returns the first-use document.
func DefaultSiteStats(now time.Time) SiteStats {
	return SiteStats{
		AverageTime: NoTime,
		StartDate:   ISODate(now),
	}
}

// TodayStats tracks views for the current calendar day. The date field
// drives the day-rollover transition: the first event of a new day resets
// views to zero before counting itself.
type TodayStats struct {
	Date  string `json:"date"`
	Views int    `json:"views"`
}

// DefaultTodayStats returns the first-use document.
func DefaultTodayStats(now time.Time) TodayStats {
	return TodayStats{Date: ISODate(now)}
}

// Rollover resets the counter when the stored date is stale.
func (t *TodayStats) Rollover(now time.Time) {
	if today := ISODate(now); t.Date != today {
		t.Date = today
		t.Views = 0
	}
}

// PageStat is one page's entry in the per-page view ranking. Name and Path
// carry the display values; the map key is the sanitized path.
type PageStat struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Views int    `json:"views"`
}

// PageStats maps sanitized page paths to their stats.
type PageStats map[string]PageStat

// TotalViews sums views across all pages. SiteStats.PageViews is derived
// from this sum rather than counted independently.
func (p PageStats) TotalViews() int {
	total := 0
	for _, page := range p {
		total += page.Views
	}
	return total
}

// DurationStats accumulates dwell time across all completed visits.
type DurationStats struct {
	TotalSeconds float64 `json:"totalSeconds"`
	Visits       int     `json:"visits"`
}

// Average returns the mean dwell time in seconds, or 0 with ok=false when
// no visits have been recorded.
func (d DurationStats) Average() (float64, bool) {
	if d.Visits <= 0 {
		return 0, false
	}
	return d.TotalSeconds / float64(d.Visits), true
}

// VisitEntry is one line of the rolling recent-visit log.
type VisitEntry struct {
	Time      string `json:"time"`
	Page      string `json:"page"`
	Duration  string `json:"duration"`
	Referrer  string `json:"referrer"`
	VisitorID string `json:"visitorId"`
	Location  string `json:"location"`
}

// RecentVisits is ordered newest-first and bounded by the configured cap.
type RecentVisits []VisitEntry

// Prepend inserts an entry at the head and truncates the tail to limit.
func (r RecentVisits) Prepend(entry VisitEntry, limit int) RecentVisits {
	out := make(RecentVisits, 0, len(r)+1)
	out = append(out, entry)
	out = append(out, r...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TrendPoint is one calendar day's view count. Date is a local "M/D" label,
// kept for compatibility with existing stored data.
type TrendPoint struct {
	Date  string `json:"date"`
	Views int    `json:"views"`
}

// TrendData is ordered by day of first appearance and only ever appended to.
type TrendData []TrendPoint

// Bump increments today's bucket, appending it if this is the first event
// of the day.
func (t TrendData) Bump(now time.Time) TrendData {
	label := DayLabel(now)
	for i := range t {
		if t[i].Date == label {
			t[i].Views++
			return t
		}
	}
	return append(t, TrendPoint{Date: label, Views: 1})
}

// VisitorSet is a deduplicated, monotonically growing list of identifiers.
// A slice rather than a map so the persisted form stays a JSON array.
type VisitorSet []string

// Add appends id if absent and reports whether the set grew.
func (s VisitorSet) Add(id string) (VisitorSet, bool) {
	if s.Contains(id) {
		return s, false
	}
	return append(s, id), true
}

// Contains reports set membership.
func (s VisitorSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Union merges other into s, keeping s's order and appending unseen
// entries in other's order.
func (s VisitorSet) Union(other VisitorSet) VisitorSet {
	out := s
	for _, id := range other {
		out, _ = out.Add(id)
	}
	return out
}
