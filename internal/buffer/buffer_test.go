package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/WilliamCarlos132/site4me/internal/stats"
)

func event(ts int64) stats.VisitEvent {
	return stats.VisitEvent{
		VisitorID:       "visitor-1",
		PagePath:        "/blog",
		DurationSeconds: 5,
		Timestamp:       ts,
	}
}

func openTestQueue(t *testing.T, limit int) *GormQueue {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	q, err := NewGormQueue(db, limit)
	require.NoError(t, err)
	return q
}

func testQueueOverflow(t *testing.T, q Queue) {
	t.Helper()
	for ts := int64(1); ts <= 5; ts++ {
		require.NoError(t, q.Enqueue(event(ts)))
	}

	events, err := q.DequeueAll()
	require.NoError(t, err)
	require.Len(t, events, 3, "capacity must drop the oldest")
	assert.Equal(t, int64(3), events[0].Timestamp)
	assert.Equal(t, int64(5), events[2].Timestamp)
}

func TestGormQueueOverflowDropsOldest(t *testing.T) {
	testQueueOverflow(t, openTestQueue(t, 3))
}

func TestMemQueueOverflowDropsOldest(t *testing.T) {
	testQueueOverflow(t, NewMemQueue(3))
}

func TestGormQueueRemove(t *testing.T) {
	q := openTestQueue(t, 10)
	require.NoError(t, q.Enqueue(event(1)))
	require.NoError(t, q.Enqueue(event(2)))

	require.NoError(t, q.Remove(1))

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := q.DequeueAll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].Timestamp)
}

func TestGormQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	q, err := NewGormQueue(db, 10)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(event(7)))

	db2, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	q2, err := NewGormQueue(db2, 10)
	require.NoError(t, err)

	events, err := q2.DequeueAll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(7), events[0].Timestamp)
}
