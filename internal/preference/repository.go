package preference

import (
	"context"
	"sync"
)

// Repository defines the interface for preference persistence.
type Repository interface {
	// Get retrieves the preferences of a user.
	// Returns ErrPreferencesNotFound if none were saved.
	Get(ctx context.Context, userID string) (*Preferences, error)

	// Upsert creates or replaces the preferences of a user.
	Upsert(ctx context.Context, p *Preferences) error

	// Delete removes the preferences of a user.
	Delete(ctx context.Context, userID string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

// NewInMemoryRepository creates a new in-memory preference repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		prefs: make(map[string]Preferences),
	}
}

// Get retrieves the preferences of a user.
func (r *InMemoryRepository) Get(_ context.Context, userID string) (*Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prefs[userID]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	return &p, nil
}

// Upsert creates or replaces the preferences of a user.
func (r *InMemoryRepository) Upsert(_ context.Context, p *Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs[p.UserID] = *p
	return nil
}

// Delete removes the preferences of a user.
func (r *InMemoryRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.prefs, userID)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
