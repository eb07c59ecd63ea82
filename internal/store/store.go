// Package store persists the aggregate documents. The same key-addressed
// contract is implemented by the local authoritative store (SQL), the
// remote mirror (MongoDB), an in-memory map, and a TTL read cache that
// wraps any of them.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"time"
)

// ErrNotFound is returned by Get for keys that were never written.
var ErrNotFound = errors.New("store: document not found")

// Document is one aggregate document plus the write timestamp used for
// last-write-wins reconciliation.
type Document struct {
	Key       string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// Store is key-addressed read/write of aggregate documents. Set is a full
// overwrite; callers compose read-modify-write themselves.
type Store interface {
	Get(ctx context.Context, key string) (*Document, error)
	Set(ctx context.Context, key string, data json.RawMessage) error
}

// Equal compares two documents structurally, ignoring formatting and key
// order differences between stores.
func Equal(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

// Memory is a map-backed Store. It backs tests and local-only deployments
// where durability is handled elsewhere.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*Document
	now  func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*Document), now: time.Now}
}

// SetClock overrides the write-timestamp clock, for tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Get returns a copy of the stored document.
func (m *Memory) Get(_ context.Context, key string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	cp.Data = append(json.RawMessage(nil), doc.Data...)
	return &cp, nil
}

// Set overwrites the document under key.
func (m *Memory) Set(_ context.Context, key string, data json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = &Document{
		Key:       key,
		Data:      append(json.RawMessage(nil), data...),
		UpdatedAt: m.now(),
	}
	return nil
}
