package trip

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/commutetimely/leavetime/internal/routing"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	trips map[string]*Trip
}

// NewInMemoryRepository creates a new in-memory trip repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		trips: make(map[string]*Trip),
	}
}

func clone(t *Trip) *Trip {
	cpy := *t
	cpy.RepeatDays = slices.Clone(t.RepeatDays)
	if t.Origin != nil {
		o := *t.Origin
		cpy.Origin = &o
	}
	if t.BufferMinutes != nil {
		b := *t.BufferMinutes
		cpy.BufferMinutes = &b
	}
	if t.LastRoute != nil {
		r := *t.LastRoute
		r.Alternatives = slices.Clone(t.LastRoute.Alternatives)
		cpy.LastRoute = &r
	}
	return &cpy
}

// Get retrieves a trip by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.trips[id]
	if !ok {
		return nil, ErrTripNotFound
	}
	return clone(t), nil
}

// GetByUserAndID retrieves a trip by user ID and trip ID.
func (r *InMemoryRepository) GetByUserAndID(_ context.Context, userID, tripID string) (*Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.trips[tripID]
	if !ok || t.UserID != userID {
		return nil, ErrTripNotFound
	}
	return clone(t), nil
}

// List retrieves all trips for a user with pagination, newest first.
func (r *InMemoryRepository) List(_ context.Context, userID string, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var trips []*Trip
	for _, t := range r.trips {
		if t.UserID == userID {
			trips = append(trips, clone(t))
		}
	}
	sort.Slice(trips, func(i, j int) bool {
		if trips[i].CreatedAt.Equal(trips[j].CreatedAt) {
			return trips[i].ID > trips[j].ID
		}
		return trips[i].CreatedAt.After(trips[j].CreatedAt)
	})

	if opts.Cursor != "" {
		for i, t := range trips {
			if t.ID == opts.Cursor {
				trips = trips[i+1:]
				break
			}
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	result := &ListResult{Items: trips}
	if len(trips) > limit {
		result.Items = trips[:limit]
		result.NextCursor = trips[limit-1].ID
	}
	return result, nil
}

// ListActive retrieves every active trip.
func (r *InMemoryRepository) ListActive(_ context.Context) ([]*Trip, error) {
	return r.filter(func(t *Trip) bool { return t.Active }), nil
}

// ListActiveByUser retrieves the active trips of one user.
func (r *InMemoryRepository) ListActiveByUser(_ context.Context, userID string) ([]*Trip, error) {
	return r.filter(func(t *Trip) bool { return t.Active && t.UserID == userID }), nil
}

func (r *InMemoryRepository) filter(keep func(*Trip) bool) []*Trip {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Trip
	for _, t := range r.trips {
		if keep(t) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Create creates a new trip.
func (r *InMemoryRepository) Create(_ context.Context, t *Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trips[t.ID] = clone(t)
	return nil
}

// Update updates an existing trip.
func (r *InMemoryRepository) Update(_ context.Context, t *Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.trips[t.ID]; !ok {
		return ErrTripNotFound
	}
	r.trips[t.ID] = clone(t)
	return nil
}

// UpdateLastRoute stores the most recent route seen for a trip.
func (r *InMemoryRepository) UpdateLastRoute(_ context.Context, id string, route routing.RouteSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.trips[id]
	if !ok {
		return ErrTripNotFound
	}
	route.Alternatives = slices.Clone(route.Alternatives)
	t.LastRoute = &route
	return nil
}

// Delete deletes a trip by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.trips, id)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
