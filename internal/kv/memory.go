package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryRecord struct {
	value     int64
	expiresAt time.Time
}

// MemoryStore is a process-local Store. State is lost on restart and is not
// shared between instances.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*memoryRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*memoryRecord),
	}
}

// Get returns the entry for key.
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.data[key]
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{Key: key, Value: record.value, ExpiresAt: record.expiresAt}, true, nil
}

// Set overwrites the entry for key.
func (s *MemoryStore) Set(ctx context.Context, key string, value int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = &memoryRecord{value: value, expiresAt: expiresAt}
	return nil
}

// Increment applies a fixed-window increment under the store lock.
func (s *MemoryStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, ErrInvalidWindow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.data[key]
	if !ok || !now.Before(record.expiresAt) {
		record = &memoryRecord{value: 1, expiresAt: now.Add(window)}
		s.data[key] = record
		return record.value, record.expiresAt, nil
	}

	record.value++
	return record.value, record.expiresAt, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// DeleteExpired removes entries whose expiry is at or before before.
func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, record := range s.data {
		if !before.Before(record.expiresAt) {
			delete(s.data, key)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of keys with the given prefix.
func (s *MemoryStore) Count(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prefix == "" {
		return len(s.data), nil
	}

	count := 0
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			count++
		}
	}
	return count, nil
}

// List returns entries with the given prefix, ordered by key.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	s.mu.Lock()
	entries := make([]Entry, 0, len(s.data))
	for key, record := range s.data {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, Entry{Key: key, Value: record.value, ExpiresAt: record.expiresAt})
		}
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Close drops all state.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]*memoryRecord)
	return nil
}

// Size returns the number of records (for tests).
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
