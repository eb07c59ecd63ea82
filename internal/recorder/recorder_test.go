package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilliamCarlos132/site4me/internal/buffer"
	"github.com/WilliamCarlos132/site4me/internal/stats"
	"github.com/WilliamCarlos132/site4me/internal/store"
)

// flakyStore fails writes on demand, standing in for a store outage.
type flakyStore struct {
	*store.Memory
	failing bool
}

func (f *flakyStore) Set(ctx context.Context, key string, data json.RawMessage) error {
	if f.failing {
		return errors.New("store down")
	}
	return f.Memory.Set(ctx, key, data)
}

func fixedNow() time.Time {
	return time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
}

func testEvent(visitor, path string, dur float64) stats.VisitEvent {
	return stats.VisitEvent{
		VisitorID:       visitor,
		PagePath:        path,
		DurationSeconds: dur,
		Timestamp:       fixedNow().UnixMilli(),
		Referrer:        "direct",
		ClientIP:        "203.0.113.7",
	}
}

func loadAggregate[T any](t *testing.T, s store.Store, key string) T {
	t.Helper()
	doc, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(doc.Data, &v))
	return v
}

func TestRecordFirstVisit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	rec := New(mem, buffer.NewMemQueue(10), 30, WithClock(fixedNow))

	require.NoError(t, rec.Record(ctx, testEvent("visitor-1", "/blog", 62.5)))

	site := loadAggregate[stats.SiteStats](t, mem, stats.KeySiteStats)
	assert.Equal(t, 1, site.PageViews)
	assert.Equal(t, 1, site.UniqueVisitors)
	assert.Equal(t, 1, site.PageCount)
	assert.Equal(t, 1, site.TodayViews)
	assert.Equal(t, "01:02", site.AverageTime)
	assert.Equal(t, "2026-08-29", site.StartDate)

	pages := loadAggregate[stats.PageStats](t, mem, stats.KeyPageStats)
	require.Contains(t, pages, "_blog")
	assert.Equal(t, stats.PageStat{Name: "Blog", Path: "/blog", Views: 1}, pages["_blog"])

	recent := loadAggregate[stats.RecentVisits](t, mem, stats.KeyRecentVisits)
	require.Len(t, recent, 1)
	assert.Equal(t, "Blog", recent[0].Page)
	assert.Equal(t, "01:02", recent[0].Duration)
	assert.Equal(t, "visitor-", recent[0].VisitorID, "IDs are truncated for display")
	assert.Equal(t, "203.0.113.7", recent[0].Location)

	visitors := loadAggregate[stats.VisitorSet](t, mem, stats.KeyKnownVisitors)
	assert.Equal(t, stats.VisitorSet{"visitor-1"}, visitors)

	trend := loadAggregate[stats.TrendData](t, mem, stats.KeyTrendData)
	assert.Equal(t, stats.TrendData{{Date: "8/29", Views: 1}}, trend)
}

func TestRecordRepeatVisitorSameDay(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	rec := New(mem, buffer.NewMemQueue(10), 30, WithClock(fixedNow))

	require.NoError(t, rec.Record(ctx, testEvent("visitor-1", "/blog", 30)))
	require.NoError(t, rec.Record(ctx, testEvent("visitor-1", "/blog", 90)))
	require.NoError(t, rec.Record(ctx, testEvent("visitor-2", "/", 60)))

	site := loadAggregate[stats.SiteStats](t, mem, stats.KeySiteStats)
	assert.Equal(t, 3, site.PageViews)
	assert.Equal(t, 2, site.UniqueVisitors, "repeat visitors do not inflate the count")
	assert.Equal(t, 2, site.PageCount)
	assert.Equal(t, 3, site.TodayViews)
	assert.Equal(t, "01:00", site.AverageTime)

	pages := loadAggregate[stats.PageStats](t, mem, stats.KeyPageStats)
	assert.Equal(t, 2, pages["_blog"].Views)
	assert.Equal(t, 1, pages["_"].Views)
}

func TestRecordDayRollover(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	now := fixedNow()
	rec := New(mem, buffer.NewMemQueue(10), 30, WithClock(func() time.Time { return now }))

	require.NoError(t, rec.Record(ctx, testEvent("visitor-1", "/blog", 30)))
	require.NoError(t, rec.Record(ctx, testEvent("visitor-1", "/blog", 30)))

	now = now.Add(24 * time.Hour)
	require.NoError(t, rec.Record(ctx, testEvent("visitor-1", "/blog", 30)))

	today := loadAggregate[stats.TodayStats](t, mem, stats.KeyTodayStats)
	assert.Equal(t, "2026-08-30", today.Date)
	assert.Equal(t, 1, today.Views, "the first event of a new day counts only itself")

	site := loadAggregate[stats.SiteStats](t, mem, stats.KeySiteStats)
	assert.Equal(t, 3, site.PageViews, "lifetime views survive the rollover")
	assert.Equal(t, 1, site.TodayViews)

	trend := loadAggregate[stats.TrendData](t, mem, stats.KeyTrendData)
	assert.Equal(t, stats.TrendData{{Date: "8/29", Views: 2}, {Date: "8/30", Views: 1}}, trend)
}

func TestRecordRecentVisitsBounded(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	rec := New(mem, buffer.NewMemQueue(10), 3, WithClock(fixedNow))

	for i := 0; i < 5; i++ {
		ev := testEvent("visitor-1", "/blog", 10)
		ev.Referrer = string(rune('a' + i))
		require.NoError(t, rec.Record(ctx, ev))
	}

	recent := loadAggregate[stats.RecentVisits](t, mem, stats.KeyRecentVisits)
	require.Len(t, recent, 3)
	assert.Equal(t, "e", recent[0].Referrer, "newest first")
}

func TestRecordInvalidEventTouchesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	queue := buffer.NewMemQueue(10)
	rec := New(mem, queue, 30, WithClock(fixedNow))

	ev := testEvent("", "/blog", 10)
	err := rec.Record(ctx, ev)
	assert.ErrorIs(t, err, stats.ErrInvalidEvent)

	_, err = mem.Get(ctx, stats.KeySiteStats)
	assert.ErrorIs(t, err, store.ErrNotFound, "no aggregate may be written")
	n, _ := queue.Len()
	assert.Equal(t, 0, n, "invalid events are not buffered")
}

func TestRecordParksOnStoreFailureAndReplays(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Memory: store.NewMemory(), failing: true}
	queue := buffer.NewMemQueue(10)
	rec := New(flaky, queue, 30, WithClock(fixedNow))

	err := rec.Record(ctx, testEvent("visitor-1", "/blog", 30))
	assert.ErrorIs(t, err, ErrTransient)

	n, _ := queue.Len()
	require.Equal(t, 1, n, "the failed event is parked")

	flaky.failing = false
	rec.ReplayPending(ctx)

	n, _ = queue.Len()
	assert.Equal(t, 0, n, "replayed events leave the buffer")

	site := loadAggregate[stats.SiteStats](t, flaky.Memory, stats.KeySiteStats)
	assert.Equal(t, 1, site.PageViews)
}

func TestReplayKeepsFailingEvents(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Memory: store.NewMemory(), failing: true}
	queue := buffer.NewMemQueue(10)
	rec := New(flaky, queue, 30, WithClock(fixedNow))

	_ = rec.Record(ctx, testEvent("visitor-1", "/blog", 30))
	rec.ReplayPending(ctx)

	n, _ := queue.Len()
	assert.Equal(t, 1, n, "a replay that fails again keeps the event parked")
}
