// Package buffer is the durable retry queue for visit events that failed
// to reach the stores. Replay happens opportunistically; only events that
// fold successfully are removed.
package buffer

import (
	"encoding/json"
	"sync"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/WilliamCarlos132/site4me/internal/stats"
)

// Queue holds not-yet-acknowledged visit events, bounded to a small fixed
// capacity with oldest-dropped-first overflow.
type Queue interface {
	Enqueue(ev stats.VisitEvent) error

	// DequeueAll returns a snapshot of pending events in enqueue order
	// without removing them; callers Remove the ones that succeed.
	DequeueAll() ([]stats.VisitEvent, error)

	Remove(timestamp int64) error
	Len() (int, error)
}

// RetryEvent is the persisted row shape of a buffered event.
type RetryEvent struct {
	ID        uint           `gorm:"primaryKey"`
	Timestamp int64          `gorm:"index"`
	Payload   datatypes.JSON `gorm:"type:json"`
}

// GormQueue persists buffered events in the local database so they survive
// restarts.
type GormQueue struct {
	db    *gorm.DB
	limit int
}

// NewGormQueue migrates the retry table and returns a queue with the given
// capacity.
func NewGormQueue(db *gorm.DB, limit int) (*GormQueue, error) {
	if err := db.AutoMigrate(&RetryEvent{}); err != nil {
		return nil, err
	}
	return &GormQueue{db: db, limit: limit}, nil
}

// Enqueue appends an event, dropping the oldest rows beyond capacity.
func (q *GormQueue) Enqueue(ev stats.VisitEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	row := RetryEvent{Timestamp: ev.Timestamp, Payload: datatypes.JSON(payload)}
	if err := q.db.Create(&row).Error; err != nil {
		return err
	}

	var count int64
	if err := q.db.Model(&RetryEvent{}).Count(&count).Error; err != nil {
		return err
	}
	if q.limit > 0 && count > int64(q.limit) {
		var stale []RetryEvent
		if err := q.db.Order("id asc").Limit(int(count) - q.limit).Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) > 0 {
			if err := q.db.Delete(&stale).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// DequeueAll returns all pending events in enqueue order.
func (q *GormQueue) DequeueAll() ([]stats.VisitEvent, error) {
	var rows []RetryEvent
	if err := q.db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]stats.VisitEvent, 0, len(rows))
	for _, row := range rows {
		var ev stats.VisitEvent
		if err := json.Unmarshal(row.Payload, &ev); err != nil {
			// A row we can no longer decode will never replay; drop it.
			_ = q.db.Delete(&RetryEvent{}, row.ID).Error
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Remove deletes all buffered events carrying the given timestamp.
func (q *GormQueue) Remove(timestamp int64) error {
	return q.db.Where("timestamp = ?", timestamp).Delete(&RetryEvent{}).Error
}

// Len reports the number of pending events.
func (q *GormQueue) Len() (int, error) {
	var count int64
	if err := q.db.Model(&RetryEvent{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// MemQueue is the in-memory Queue used in tests.
type MemQueue struct {
	mu     sync.Mutex
	limit  int
	events []stats.VisitEvent
}

// NewMemQueue returns an empty in-memory queue with the given capacity.
func NewMemQueue(limit int) *MemQueue {
	return &MemQueue{limit: limit}
}

// Enqueue appends an event, dropping the oldest beyond capacity.
func (q *MemQueue) Enqueue(ev stats.VisitEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
	if q.limit > 0 && len(q.events) > q.limit {
		q.events = q.events[len(q.events)-q.limit:]
	}
	return nil
}

// DequeueAll returns a copy of pending events in enqueue order.
func (q *MemQueue) DequeueAll() ([]stats.VisitEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]stats.VisitEvent(nil), q.events...), nil
}

// Remove deletes events with the given timestamp.
func (q *MemQueue) Remove(timestamp int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.events[:0]
	for _, ev := range q.events {
		if ev.Timestamp != timestamp {
			kept = append(kept, ev)
		}
	}
	q.events = kept
	return nil
}

// Len reports the number of pending events.
func (q *MemQueue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events), nil
}
