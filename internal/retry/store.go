package retry

import (
	"context"
	"sort"
	"sync"

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/model"
)

// UpdateFunc receives the current context (nil when absent) and returns the
// context to store. Returning an error leaves the stored context untouched.
type UpdateFunc func(current *model.RetryContext) (*model.RetryContext, error)

// Store persists retry contexts keyed by payment intent ID.
// Update must serialize calls for the same key.
type Store interface {
	Get(ctx context.Context, paymentIntentID string) (model.RetryContext, bool, error)
	Update(ctx context.Context, paymentIntentID string, fn UpdateFunc) (model.RetryContext, error)
	List(ctx context.Context) ([]model.RetryContext, error)
}

type storeEntry struct {
	mu  sync.Mutex
	ctx *model.RetryContext
}

// MemoryStore keeps contexts in process memory with one lock per payment intent.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry
}

// NewMemoryStore creates an empty in-memory retry store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*storeEntry),
	}
}

func (s *MemoryStore) entry(id string) *storeEntry {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[id]; !ok {
		e = &storeEntry{}
		s.entries[id] = e
	}
	return e
}

// Get returns a copy of the stored context.
func (s *MemoryStore) Get(_ context.Context, id string) (model.RetryContext, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return model.RetryContext{}, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return model.RetryContext{}, false, nil
	}
	return e.ctx.Clone(), true, nil
}

// Update runs fn under the per-key lock and stores its result.
func (s *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (model.RetryContext, error) {
	e := s.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	var current *model.RetryContext
	if e.ctx != nil {
		c := e.ctx.Clone()
		current = &c
	}

	next, err := fn(current)
	if err != nil {
		return model.RetryContext{}, err
	}
	if next == nil {
		return model.RetryContext{}, nil
	}

	stored := next.Clone()
	e.ctx = &stored
	return stored.Clone(), nil
}

// List returns copies of every context ordered by creation time.
func (s *MemoryStore) List(_ context.Context) ([]model.RetryContext, error) {
	s.mu.RLock()
	entries := make([]*storeEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]model.RetryContext, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.ctx != nil {
			out = append(out, e.ctx.Clone())
		}
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].PaymentIntentID < out[j].PaymentIntentID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
