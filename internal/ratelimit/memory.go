package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is the process-local store. Expired items are ignored on read
// and removed by Cleanup.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || !item.expiresAt.After(s.now()) {
		return "", false, nil
	}
	return item.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = memoryItem{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	item, ok := s.items[key]
	if !ok || !item.expiresAt.After(now) {
		item = memoryItem{value: "1", expiresAt: now.Add(ttl)}
		s.items[key] = item
		return Counter{Value: 1, ExpiresAt: item.expiresAt}, nil
	}

	n, err := strconv.ParseInt(item.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	item.value = strconv.FormatInt(n, 10)
	s.items[key] = item
	return Counter{Value: n, ExpiresAt: item.expiresAt}, nil
}

// Len returns the number of stored items, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Cleanup removes items that expired at or before now and returns how many were removed.
func (s *MemoryStore) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, item := range s.items {
		if !item.expiresAt.After(now) {
			delete(s.items, key)
			removed++
		}
	}
	return removed
}

// RunCleanup purges expired items every interval until ctx is cancelled.
func (s *MemoryStore) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Cleanup(s.now()); removed > 0 {
				slog.Debug("rate_limit_cleanup", "removed", removed)
			}
		}
	}
}
