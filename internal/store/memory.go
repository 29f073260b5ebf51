package store

import (
	"context"
	"maps"
	"sync"
	"time"
)

const sweepInterval = time.Minute

type memoryEntry struct {
	value     []byte
	hash      map[string][]byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store with lazy expiry. It is used when no
// Redis server is configured and in tests.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates a MemoryStore that reads the current time
// from now, which lets tests move time forward without sleeping.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]*memoryEntry),
		now:       now,
		lastSweep: now(),
	}
}

// lookup returns the live entry for key, dropping it when expired.
// The caller must hold s.mu.
func (s *MemoryStore) lookup(key string) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}

	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil
	}

	return e
}

// sweep drops every expired key at most once per sweepInterval.
// The caller must hold s.mu.
func (s *MemoryStore) sweep() {
	now := s.now()
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}

	s.lastSweep = now
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return nil, ErrNil
	}
	if e.hash != nil {
		return nil, ErrWrongType
	}

	return append([]byte(nil), e.value...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	s.entries[key] = &memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: s.expiry(ttl),
	}

	return nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return nil, ErrNil
	}
	if e.hash == nil {
		return nil, ErrWrongType
	}

	v, ok := e.hash[field]
	if !ok {
		return nil, ErrNil
	}

	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	e := s.lookup(key)
	if e == nil {
		e = &memoryEntry{hash: make(map[string][]byte)}
		s.entries[key] = e
	}
	if e.hash == nil {
		return ErrWrongType
	}

	e.hash[field] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return map[string][]byte{}, nil
	}
	if e.hash == nil {
		return nil, ErrWrongType
	}

	return maps.Clone(e.hash), nil
}

func (s *MemoryStore) HDel(_ context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return nil
	}
	if e.hash == nil {
		return ErrWrongType
	}

	delete(e.hash, field)
	if len(e.hash) == 0 {
		// an empty hash does not exist, same as redis
		delete(s.entries, key)
	}

	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil {
		return nil
	}

	if ttl <= 0 {
		delete(s.entries, key)
		return nil
	}

	e.expiresAt = s.expiry(ttl)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.entries)
	return nil
}
