package trip

import (
	"context"

	"github.com/commutetimely/leavetime/internal/routing"
)

// ListOptions contains options for listing trips.
type ListOptions struct {
	Limit  int
	Cursor string
}

// ListResult contains the results of listing trips.
type ListResult struct {
	Items      []*Trip
	NextCursor string
}

// Repository defines the interface for trip persistence.
type Repository interface {
	// Get retrieves a trip by ID.
	Get(ctx context.Context, id string) (*Trip, error)

	// GetByUserAndID retrieves a trip by user ID and trip ID.
	// Returns ErrTripNotFound if the trip doesn't exist or doesn't belong to the user.
	GetByUserAndID(ctx context.Context, userID, tripID string) (*Trip, error)

	// List retrieves all trips for a user with pagination.
	List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error)

	// ListActive retrieves every active trip.
	ListActive(ctx context.Context) ([]*Trip, error)

	// ListActiveByUser retrieves the active trips of one user.
	ListActiveByUser(ctx context.Context, userID string) ([]*Trip, error)

	// Create creates a new trip.
	Create(ctx context.Context, t *Trip) error

	// Update updates an existing trip.
	Update(ctx context.Context, t *Trip) error

	// UpdateLastRoute stores the most recent route seen for a trip.
	UpdateLastRoute(ctx context.Context, id string, route routing.RouteSnapshot) error

	// Delete deletes a trip by ID.
	Delete(ctx context.Context, id string) error
}
