package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCacheUnavailable classifies failures of the backing session store, as
// opposed to a key simply being absent.
var ErrCacheUnavailable = errors.New("session store unavailable")

// SessionStore is the key/value capability the session cache is built on.
// A ttl <= 0 stores the value without expiry. Deleting an absent key is not
// an error.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("session store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Is(target error) bool { return target == ErrCacheUnavailable }

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type InMemorySessionStore struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{data: make(map[string]memoryEntry)}
}

func (s *InMemorySessionStore) Get(_ context.Context, key string) (string, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	entry, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
		s.mu.Lock()
		if cur, ok2 := s.data[key]; ok2 && cur.expiresAt.Equal(entry.expiresAt) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *InMemorySessionStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().UTC().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry
	return nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
