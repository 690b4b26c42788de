package featureflags

import (
	"context"
	"sync"
)

// InMemoryRepository keeps overrides in process memory. It backs the
// memory storage backend and tests.
type InMemoryRepository struct {
	mu        sync.RWMutex
	overrides map[string]Flag
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{overrides: make(map[string]Flag)}
}

func (r *InMemoryRepository) GetFlag(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	f, ok := r.overrides[key]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrFlagNotFound
	}
	return &f, nil
}

// GetAllFlags returns copies, so callers may keep or mutate the result.
func (r *InMemoryRepository) GetAllFlags(_ context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make(map[string]*Flag, len(r.overrides))
	for key, f := range r.overrides {
		all[key] = &f
	}
	return all, nil
}

// SetFlags stores every flag under one lock.
func (r *InMemoryRepository) SetFlags(_ context.Context, flags []*Flag) error {
	r.mu.Lock()
	for _, f := range flags {
		r.overrides[f.Key] = *f
	}
	r.mu.Unlock()
	return nil
}

func (r *InMemoryRepository) DeleteFlag(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.overrides, key)
	r.mu.Unlock()
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
