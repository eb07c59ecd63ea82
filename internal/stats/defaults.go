package stats

import "time"

// Default returns the first-use document for an aggregate key. Reads of
// keys that were never written resolve to these values instead of errors,
// so first use needs no migration step.
func Default(key string, now time.Time) (any, bool) {
	switch key {
	case KeySiteStats:
		return DefaultSiteStats(now), true
	case KeyTodayStats:
		return DefaultTodayStats(now), true
	case KeyPageStats:
		return PageStats{}, true
	case KeyDurationStats:
		return DurationStats{}, true
	case KeyRecentVisits:
		return RecentVisits{}, true
	case KeyKnownVisitors, KeyKnownIPs:
		return VisitorSet{}, true
	case KeyTrendData:
		return TrendData{}, true
	}
	return nil, false
}
