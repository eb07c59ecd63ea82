package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(sink Sink, clock *fakeClock) *Manager {
	return NewManager(sink, time.Second, 5*time.Minute, WithManagerClock(clock.Now))
}

func TestManagerNavigateCreatesAndReusesSession(t *testing.T) {
	clock := newFakeClock()
	sink := &captureSink{}
	m := newTestManager(sink, clock)

	id := m.Navigate("", "visitor-1", "/", "", "")
	require.NotEmpty(t, id)
	assert.Equal(t, 1, m.Len())

	clock.Advance(10 * time.Second)
	got := m.Navigate(id, "visitor-1", "/blog", "", "")
	assert.Equal(t, id, got, "known session keeps its ID")
	assert.Equal(t, 1, m.Len())

	require.Len(t, sink.events, 1)
	assert.Equal(t, "/", sink.events[0].PagePath)
}

func TestManagerUnknownSessionStartsFresh(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(&captureSink{}, clock)

	id := m.Navigate("expired-id", "visitor-1", "/", "", "")
	assert.NotEqual(t, "expired-id", id, "stale IDs are not resurrected")
}

func TestManagerFallbackVisitorID(t *testing.T) {
	clock := newFakeClock()
	sink := &captureSink{}
	m := newTestManager(sink, clock)

	id := m.Navigate("", "", "/", "", "")
	clock.Advance(10 * time.Second)
	m.Close(id)

	require.Len(t, sink.events, 1)
	assert.Contains(t, sink.events[0].VisitorID, "fallback_")
}

func TestManagerVisibility(t *testing.T) {
	clock := newFakeClock()
	sink := &captureSink{}
	m := newTestManager(sink, clock)

	id := m.Navigate("", "visitor-1", "/", "", "")
	clock.Advance(10 * time.Second)
	require.NoError(t, m.Visibility(id, true))
	clock.Advance(time.Hour)
	require.NoError(t, m.Visibility(id, false))
	clock.Advance(5 * time.Second)
	m.Close(id)

	require.Len(t, sink.events, 1)
	assert.Equal(t, 15.0, sink.events[0].DurationSeconds)

	assert.ErrorIs(t, m.Visibility(id, true), ErrUnknownSession)
}

func TestManagerCloseUnknownIsFine(t *testing.T) {
	m := newTestManager(&captureSink{}, newFakeClock())
	m.Close("never-existed")
	assert.Equal(t, 0, m.Len())
}

func TestManagerSweepIdle(t *testing.T) {
	clock := newFakeClock()
	sink := &captureSink{}
	m := newTestManager(sink, clock)

	m.Navigate("", "visitor-1", "/", "", "")
	clock.Advance(10 * time.Second)
	fresh := m.Navigate("", "visitor-2", "/blog", "", "")

	clock.Advance(4*time.Minute + 55*time.Second)
	closed := m.SweepIdle()

	assert.Equal(t, 1, closed, "only the session past the idle timeout closes")
	assert.Equal(t, 1, m.Len())
	require.Len(t, sink.events, 1)
	assert.Equal(t, "/", sink.events[0].PagePath)

	// The surviving session still works.
	m.Navigate(fresh, "visitor-2", "/music", "", "")
	assert.Equal(t, 1, m.Len())
}
