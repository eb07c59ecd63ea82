// Package track measures a visitor's visible dwell time on a logical page.
// A tracker pauses while the tab is hidden, so only visible time accrues,
// and collapses the multiple termination signals browsers fire (hidden,
// unload, navigation) into at most one emitted event per page instance.
package track

import (
	"time"

	"github.com/WilliamCarlos132/site4me/internal/stats"
)

// State is the tracker lifecycle state.
type State int

const (
	// StateActive means the page is visible and the clock is running.
	StateActive State = iota
	// StatePaused means the tab is hidden and the clock is stopped.
	StatePaused
	// StateClosed is terminal; the final event has been flushed.
	StateClosed
)

// Sink receives finalized visit events. The recorder implements it.
type Sink interface {
	Submit(ev stats.VisitEvent)
}

// Tracker accumulates one page instance's visible dwell time.
// It is not safe for concurrent use; Manager serializes access.
type Tracker struct {
	visitorID string
	clientIP  string
	path      string
	referrer  string

	state       State
	accumulated time.Duration
	lastResume  time.Time
	flushed     bool

	sink     Sink
	minVisit time.Duration
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMinVisit sets the shortest dwell time emitted as a completed visit.
func WithMinVisit(d time.Duration) Option {
	return func(t *Tracker) { t.minVisit = d }
}

// New starts tracking a page in the Active state.
func New(visitorID, path, referrer, clientIP string, sink Sink, opts ...Option) *Tracker {
	t := &Tracker{
		visitorID: visitorID,
		clientIP:  clientIP,
		path:      path,
		referrer:  referrer,
		sink:      sink,
		minVisit:  time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.referrer == "" {
		t.referrer = "direct"
	}
	t.lastResume = t.now()
	return t
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

// Path returns the page currently being tracked.
func (t *Tracker) Path() string {
	return t.path
}

// Pause stops the clock on visibility-hidden. No-op unless Active.
func (t *Tracker) Pause() {
	if t.state != StateActive {
		return
	}
	t.accumulated += t.now().Sub(t.lastResume)
	t.state = StatePaused
}

// Resume restarts the clock on visibility-visible, resetting the tick
// origin so hidden time never accrues. No-op unless Paused.
func (t *Tracker) Resume() {
	if t.state != StatePaused {
		return
	}
	t.lastResume = t.now()
	t.state = StateActive
}

// Elapsed returns the visible dwell time so far.
func (t *Tracker) Elapsed() time.Duration {
	total := t.accumulated
	if t.state == StateActive {
		total += t.now().Sub(t.lastResume)
	}
	return total
}

// Finalize computes the completed event for the current page instance.
// It returns nil when the dwell time is below the minimum threshold.
// Finalize does not emit; OnNavigate and Close do, at most once.
func (t *Tracker) Finalize() *stats.VisitEvent {
	elapsed := t.Elapsed()
	if elapsed < t.minVisit || elapsed <= 0 {
		return nil
	}
	return &stats.VisitEvent{
		VisitorID:       t.visitorID,
		PagePath:        t.path,
		DurationSeconds: elapsed.Seconds(),
		Timestamp:       t.now().UnixMilli(),
		Referrer:        t.referrer,
		ClientIP:        t.clientIP,
	}
}

// flush emits the finalized event exactly once per page instance. The
// single-flight flag makes concurrent termination signals (hidden plus
// unload) collapse into one send.
func (t *Tracker) flush() {
	if t.flushed {
		return
	}
	t.flushed = true
	if ev := t.Finalize(); ev != nil && t.sink != nil {
		t.sink.Submit(*ev)
	}
}

// OnNavigate flushes the current page and begins tracking newPath, with
// the prior path recorded as the next event's referrer.
func (t *Tracker) OnNavigate(newPath string) {
	t.flush()
	t.referrer = t.path
	t.path = newPath
	t.accumulated = 0
	t.lastResume = t.now()
	t.state = StateActive
	t.flushed = false
}

// Close flushes the current page and ends tracking. Idempotent: repeated
// termination signals emit nothing further.
func (t *Tracker) Close() {
	if t.state == StateClosed {
		return
	}
	t.flush()
	t.state = StateClosed
}
