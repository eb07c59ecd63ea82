// Package recorder folds completed visit events into the aggregate
// documents. A fold is atomic from the caller's perspective: validation
// happens before any write, and a transport failure parks the event in the
// retry buffer instead of surfacing to the visitor.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/WilliamCarlos132/site4me/internal/buffer"
	"github.com/WilliamCarlos132/site4me/internal/stats"
	"github.com/WilliamCarlos132/site4me/internal/store"
)

// ErrTransient marks a fold that failed on store I/O. The event has been
// buffered and will be replayed; callers must not surface this to the
// visitor.
var ErrTransient = errors.New("recorder: transient store failure")

// MirrorNotifier receives the keys written by a fold for asynchronous
// mirroring. The reconciliation engine implements it.
type MirrorNotifier interface {
	PushAsync(keys ...string)
}

// Recorder applies visit events to the aggregate documents.
type Recorder struct {
	store  store.Store
	queue  buffer.Queue
	mirror MirrorNotifier

	recentLimit int
	now         func() time.Time
	replaying   atomic.Bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithMirror attaches the asynchronous mirror notifier.
func WithMirror(m MirrorNotifier) Option {
	return func(r *Recorder) { r.mirror = m }
}

// New returns a Recorder writing through the given store.
func New(s store.Store, q buffer.Queue, recentLimit int, opts ...Option) *Recorder {
	r := &Recorder{
		store:       s,
		queue:       q,
		recentLimit: recentLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record folds one event into all aggregates. Invalid events are rejected
// before any write; store failures buffer the event and return
// ErrTransient.
func (r *Recorder) Record(ctx context.Context, ev stats.VisitEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if err := r.fold(ctx, ev); err != nil {
		return r.park(ev, err)
	}

	// A successful send is the opportunistic moment to retry earlier
	// failures.
	if n, err := r.queue.Len(); err == nil && n > 0 {
		go r.ReplayPending(context.Background())
	}
	return nil
}

// fold applies one already-validated event to every aggregate. It does not
// park on failure; Record and ReplayPending decide what a failure means.
func (r *Recorder) fold(ctx context.Context, ev stats.VisitEvent) error {
	now := r.now()

	site, err := loadDoc(ctx, r.store, stats.KeySiteStats, stats.DefaultSiteStats(now))
	if err != nil {
		return err
	}
	today, err := loadDoc(ctx, r.store, stats.KeyTodayStats, stats.DefaultTodayStats(now))
	if err != nil {
		return err
	}
	pages, err := loadDoc(ctx, r.store, stats.KeyPageStats, stats.PageStats{})
	if err != nil {
		return err
	}
	durations, err := loadDoc(ctx, r.store, stats.KeyDurationStats, stats.DurationStats{})
	if err != nil {
		return err
	}
	recent, err := loadDoc(ctx, r.store, stats.KeyRecentVisits, stats.RecentVisits{})
	if err != nil {
		return err
	}
	visitors, err := loadDoc(ctx, r.store, stats.KeyKnownVisitors, stats.VisitorSet{})
	if err != nil {
		return err
	}
	ips, err := loadDoc(ctx, r.store, stats.KeyKnownIPs, stats.VisitorSet{})
	if err != nil {
		return err
	}
	trend, err := loadDoc(ctx, r.store, stats.KeyTrendData, stats.TrendData{})
	if err != nil {
		return err
	}

	today.Rollover(now)
	today.Views++

	visitors, _ = visitors.Add(ev.VisitorID)
	if ev.ClientIP != "" {
		ips, _ = ips.Add(ev.ClientIP)
	}

	key := stats.SafeKey(ev.PagePath)
	if page, ok := pages[key]; ok {
		page.Views++
		pages[key] = page
	} else {
		pages[key] = stats.PageStat{
			Name:  stats.PageTitle(ev.PagePath),
			Path:  ev.PagePath,
			Views: 1,
		}
	}

	durations.TotalSeconds += ev.DurationSeconds
	durations.Visits++

	trend = trend.Bump(now)

	location := ev.ClientIP
	if location == "" {
		location = "unknown"
	}
	recent = recent.Prepend(stats.VisitEntry{
		Time:      stats.FormatVisitTime(ev.Time()),
		Page:      stats.PageTitle(ev.PagePath),
		Duration:  stats.FormatDuration(ev.DurationSeconds),
		Referrer:  ev.Referrer,
		VisitorID: stats.TruncateVisitorID(ev.VisitorID),
		Location:  location,
	}, r.recentLimit)

	// Every SiteStats field is derived, so the page-view total always
	// equals the per-page sum and the visitor count always equals the
	// known-visitor set size.
	site.PageViews = pages.TotalViews()
	site.UniqueVisitors = len(visitors)
	site.PageCount = len(pages)
	site.TodayViews = today.Views
	if avg, ok := durations.Average(); ok {
		site.AverageTime = stats.FormatDuration(avg)
	} else {
		site.AverageTime = stats.NoTime
	}

	writes := []struct {
		key string
		doc any
	}{
		{stats.KeySiteStats, site},
		{stats.KeyTodayStats, today},
		{stats.KeyPageStats, pages},
		{stats.KeyDurationStats, durations},
		{stats.KeyRecentVisits, recent},
		{stats.KeyKnownVisitors, visitors},
		{stats.KeyKnownIPs, ips},
		{stats.KeyTrendData, trend},
	}
	for _, w := range writes {
		data, err := json.Marshal(w.doc)
		if err != nil {
			return err
		}
		if err := r.store.Set(ctx, w.key, data); err != nil {
			return err
		}
	}

	if pageviewsTotal != nil {
		pageviewsTotal.WithLabelValues(ev.PagePath).Inc()
		visitDuration.Observe(ev.DurationSeconds)
	}

	// Mirroring never blocks the caller; a failed push is the
	// reconciliation engine's problem.
	if r.mirror != nil {
		keys := make([]string, len(writes))
		for i, w := range writes {
			keys[i] = w.key
		}
		r.mirror.PushAsync(keys...)
	}
	return nil
}

// park buffers an event that failed on store I/O for later replay.
func (r *Recorder) park(ev stats.VisitEvent, cause error) error {
	if err := r.queue.Enqueue(ev); err != nil {
		log.Printf("retry buffer enqueue failed: %v (event lost)", err)
	} else if retryBuffered != nil {
		retryBuffered.Inc()
	}
	return fmt.Errorf("%w: %v", ErrTransient, cause)
}

// ReplayPending re-folds buffered events, removing only the ones that
// succeed. Single-flight: concurrent triggers collapse into one pass.
func (r *Recorder) ReplayPending(ctx context.Context) {
	if !r.replaying.CompareAndSwap(false, true) {
		return
	}
	defer r.replaying.Store(false)

	events, err := r.queue.DequeueAll()
	if err != nil {
		log.Printf("retry buffer read failed: %v", err)
		return
	}
	replayed := 0
	for _, ev := range events {
		if errors.Is(ev.Validate(), stats.ErrInvalidEvent) {
			// An event that can never fold is dead weight in the buffer.
			_ = r.queue.Remove(ev.Timestamp)
			continue
		}
		// fold, not Record: a still-failing event stays parked where it is
		// rather than being buffered a second time.
		if err := r.fold(ctx, ev); err != nil {
			continue
		}
		if err := r.queue.Remove(ev.Timestamp); err != nil {
			log.Printf("retry buffer remove failed for %d: %v", ev.Timestamp, err)
		}
		replayed++
		if retryReplayed != nil {
			retryReplayed.Inc()
		}
	}
	if replayed > 0 {
		log.Printf("replayed %d buffered visit event(s)", replayed)
	}
}

// Submit implements track.Sink so finalized tracker events flow through
// the same fold as direct submissions.
func (r *Recorder) Submit(ev stats.VisitEvent) {
	if err := r.Record(context.Background(), ev); err != nil && !errors.Is(err, ErrTransient) {
		log.Printf("dropping tracker event for %s: %v", ev.PagePath, err)
	}
}

// loadDoc reads one aggregate, resolving missing or undecodable documents
// to the default value rather than an error.
func loadDoc[T any](ctx context.Context, s store.Store, key string, def T) (T, error) {
	doc, err := s.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return def, nil
	}
	return v, nil
}
