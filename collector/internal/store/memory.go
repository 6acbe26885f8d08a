package store

import (
	"errors"
	"sync"
	"time"
)

// Memory is a thread-safe in-memory Store keyed by report id.
type Memory struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// NewMemory creates a Memory store with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores e under e.ID, replacing any previous entry.
// Callers must not modify e after calling Put.
func (s *Memory) Put(e *Entry) error {
	if e == nil || e.ID == "" {
		return errors.New("store: entry id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = s.now()
	}
	s.data[e.ID] = e
	return nil
}

// Get returns the live entry for id, or ErrNotFound.
func (s *Memory) Get(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	if !ok || !live(e.ReceivedAt, s.now(), s.ttl) {
		return nil, ErrNotFound
	}
	return e, nil
}

// List returns all live entries, newest first.
func (s *Memory) List() ([]*Entry, error) {
	s.mu.RLock()
	now := s.now()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if live(e.ReceivedAt, now, s.ttl) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

// Count returns the total number of entries currently held.
func (s *Memory) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Evict removes entries that are no longer live at now.
func (s *Memory) Evict(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.data {
		if !live(e.ReceivedAt, now, s.ttl) {
			delete(s.data, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op.
func (s *Memory) Close() error { return nil }
