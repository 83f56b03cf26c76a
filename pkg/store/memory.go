package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const backendMemory = "memory"

type memoryEntry struct {
	value    string
	deadline time.Time // zero means no expiry
}

// MemoryStore is an in-process Store. All operations run under one mutex,
// which makes each of them atomic the same way Redis commands are.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mainly so tests can move time forward.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup returns the live entry at key, dropping it if expired.
// Caller must hold s.mu.
func (s *MemoryStore) lookup(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.deadline.IsZero() && !s.now().Before(e.deadline) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

// Incr increments the integer at key. Like Redis, it keeps an existing
// expiry and fails if the current value is not an integer.
func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	e, ok := s.lookup(key)
	if ok {
		cur, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			Operations.WithLabelValues(backendMemory, "incr", resultError).Inc()
			return 0, fmt.Errorf("memory incr %q: value is not an integer", key)
		}
		n = cur
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.entries[key] = e

	Operations.WithLabelValues(backendMemory, "incr", resultOK).Inc()
	return n, nil
}

// Get returns the value at key, or ErrNotFound if absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		Operations.WithLabelValues(backendMemory, "get", resultMiss).Inc()
		return "", ErrNotFound
	}
	Operations.WithLabelValues(backendMemory, "get", resultOK).Inc()
	return e.value, nil
}

// SetEx stores value at key, replacing any previous value and expiry.
func (s *MemoryStore) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		Operations.WithLabelValues(backendMemory, "setex", resultError).Inc()
		return ErrInvalidTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, deadline: s.now().Add(ttl)}
	Operations.WithLabelValues(backendMemory, "setex", resultOK).Inc()
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.entries {
		if _, ok := s.lookup(k); ok {
			n++
		}
	}
	return n
}
