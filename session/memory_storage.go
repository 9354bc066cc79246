package session

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goOTP/clock"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStorage is an in-process [Storage]. Expiry is evaluated lazily
// against the injected clock.
type MemoryStorage struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry
}

// NewMemoryStorage returns an empty in-memory [Storage]. A nil clock uses
// [clock.Real].
func NewMemoryStorage(c clock.Clock) *MemoryStorage {
	if c == nil {
		c = clock.Real()
	}
	return &MemoryStorage{
		clock:   c,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !s.clock.Now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored keys, expired ones included.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
