package dht

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// StoredValue is one entry in the local key/value store: an opaque JSON
// value with a bounded lifetime. There is no delete operation; values leave
// the store only by expiring.
type StoredValue struct {
	Key       NodeID
	Value     json.RawMessage
	StoredAt  time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the value's lifetime has passed.
func (v *StoredValue) IsExpired(now time.Time) bool {
	return v.ExpiresAt.Before(now)
}

// ValueStore holds the values this node caches, each with a TTL. It is
// written by inbound STORE requests, by the node's own announcements, and
// by read-through caching on successful value lookups.
type ValueStore struct {
	mu     sync.RWMutex
	values map[NodeID]*StoredValue
	clock  clock.Clock
}

// NewValueStore creates an empty store.
func NewValueStore(clk clock.Clock) *ValueStore {
	return &ValueStore{
		values: make(map[NodeID]*StoredValue),
		clock:  clk,
	}
}

// Put stores or overwrites a value under key with the given lifetime.
// Re-announcing a key refreshes its expiry.
func (s *ValueStore) Put(key NodeID, value json.RawMessage, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.values[key] = &StoredValue{
		Key:       key,
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Get returns the value under key if present and unexpired.
func (s *ValueStore) Get(key NodeID) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok || v.IsExpired(s.clock.Now()) {
		return nil, false
	}
	return v.Value, true
}

// Sweep deletes every expired value and returns how many were removed.
func (s *ValueStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for key, v := range s.values {
		if v.IsExpired(now) {
			delete(s.values, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries held, expired ones included until the
// next sweep.
func (s *ValueStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
